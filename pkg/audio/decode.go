package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned by Decode for containers other than WAV and MP3.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// PCM is decoded interleaved 16-bit audio.
type PCM struct {
	Format  Format
	Samples []int16
}

// Frames returns the number of sample frames, one sample per channel each.
func (p PCM) Frames() int {
	if p.Format.Channels == 0 {
		return 0
	}
	return len(p.Samples) / p.Format.Channels
}

// Duration returns the play time of the samples.
func (p PCM) Duration() time.Duration {
	if p.Format.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(p.Frames()) / float64(p.Format.SampleRate) * float64(time.Second))
}

// Decode decodes a WAV or MP3 file. The container is sniffed from the data;
// contentType decides when the data carries no recognizable header.
func Decode(data []byte, contentType string) (PCM, error) {
	switch sniff(data) {
	case "wav":
		return DecodeWAV(data)
	case "mp3":
		return DecodeMP3(data)
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch strings.ToLower(mediaType) {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return DecodeWAV(data)
	case "audio/mpeg", "audio/mp3", "audio/mpeg3", "audio/x-mpeg-3":
		return DecodeMP3(data)
	}
	if contentType == "" {
		return PCM{}, ErrUnsupportedFormat
	}
	return PCM{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, contentType)
}

func sniff(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav"
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}

// DecodeWAV reads all samples of a 16-bit WAV file.
func DecodeWAV(data []byte) (PCM, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return PCM{}, ErrInvalidWAV
	}
	if dec.BitDepth != 16 {
		return PCM{}, fmt.Errorf("%w: %d-bit wav", ErrUnsupportedFormat, dec.BitDepth)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return PCM{
		Format: Format{
			SampleRate: int(dec.SampleRate),
			Channels:   int(dec.NumChans),
			BitDepth:   16,
		},
		Samples: samples,
	}, nil
}

// DecodeMP3 decodes an MP3 file to 16-bit stereo PCM, the only layout the
// decoder produces.
func DecodeMP3(data []byte) (PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("decode mp3: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return PCM{}, fmt.Errorf("decode mp3: %w", err)
	}
	if len(raw) == 0 {
		return PCM{}, fmt.Errorf("decode mp3: %w", ErrEmptyPCM)
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
	}
	return PCM{
		Format:  Format{SampleRate: dec.SampleRate(), Channels: 2, BitDepth: 16},
		Samples: samples,
	}, nil
}
