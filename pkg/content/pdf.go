package content

import (
	"bytes"
	"errors"
	"io"

	"github.com/ledongthuc/pdf"
)

var (
	errNilSourceReader = errors.New("pdf source reader is nil")
	errEmptyPDFContent = errors.New("pdf content is empty")
)

// ExtractTextFromPDFReader extracts text content from a PDF provided via an io.Reader.
// The PDF is buffered in memory; pdf.NewReader needs random access.
func ExtractTextFromPDFReader(r io.Reader) (string, error) {
	if r == nil {
		return "", errNilSourceReader
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errEmptyPDFContent
	}

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	textReader, err := doc.GetPlainText()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, textReader); err != nil {
		return "", err
	}

	return buf.String(), nil
}
