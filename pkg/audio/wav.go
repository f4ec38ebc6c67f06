package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// MIMEType is the container type of every captured clip.
const MIMEType = "audio/wav"

// Extension is the file extension matching MIMEType.
const Extension = "wav"

var (
	ErrEmptyPCM   = errors.New("pcm data is empty")
	ErrInvalidWAV = errors.New("not a valid wav file")
)

// Format describes interleaved little-endian PCM samples.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultFormat is 16 kHz mono 16-bit, the capture format used by the microphone.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

// BytesPerSecond returns the PCM byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}

// Duration returns the play time of n bytes of PCM in this format.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(bps) * float64(time.Second))
}

// Info is what Inspect learns from a WAV container.
type Info struct {
	Format   Format
	Duration time.Duration
}

// EncodeWAV wraps 16-bit PCM samples in a WAV container.
func EncodeWAV(pcm []byte, f Format) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyPCM
	}
	if f.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d", f.BitDepth)
	}

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	out := &memFile{}
	enc := wav.NewEncoder(out, f.SampleRate, f.BitDepth, f.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           samples,
		SourceBitDepth: f.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	return out.Bytes(), nil
}

// Inspect validates a WAV container and reports its format and exact play time.
func Inspect(data []byte) (Info, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return Info{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return Info{}, ErrInvalidWAV
	}
	if err := dec.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}

	f := Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	return Info{Format: f, Duration: f.Duration(int(dec.PCMLen()))}, nil
}

// memFile is an in-memory io.WriteSeeker; the wav encoder seeks back to patch sizes.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("negative seek position")
	}
	m.pos = int(next)
	return next, nil
}

func (m *memFile) Bytes() []byte {
	return m.buf
}
