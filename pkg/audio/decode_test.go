package audio

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// silentMP3 builds frames MPEG-1 Layer III frames (128 kbit/s, 44.1 kHz,
// mono) whose side info and main data are all zero.
func silentMP3(frames int) []byte {
	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0xC0})
	return bytes.Repeat(frame, frames)
}

func TestDecodeWAV(t *testing.T) {
	pcm := make([]byte, DefaultFormat.BytesPerSecond())
	for i := 0; i < len(pcm); i += 2 {
		pcm[i] = 0xE8 // 1000
		pcm[i+1] = 0x03
	}
	data, err := EncodeWAV(pcm, DefaultFormat)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}

	got, err := Decode(data, "application/octet-stream")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Format != DefaultFormat {
		t.Errorf("Format = %+v, want %+v", got.Format, DefaultFormat)
	}
	if got.Duration() != time.Second {
		t.Errorf("Duration = %v, want 1s", got.Duration())
	}
	if len(got.Samples) != DefaultFormat.SampleRate || got.Samples[0] != 1000 {
		t.Errorf("samples = %d (first %d), want %d of 1000", len(got.Samples), got.Samples[0], DefaultFormat.SampleRate)
	}
}

func TestDecodeMP3(t *testing.T) {
	got, err := Decode(silentMP3(10), "audio/mpeg")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := Format{SampleRate: 44100, Channels: 2, BitDepth: 16}
	if got.Format != want {
		t.Errorf("Format = %+v, want %+v", got.Format, want)
	}
	if got.Frames() != 10*1152 {
		t.Errorf("Frames = %d, want %d", got.Frames(), 10*1152)
	}
	if d := got.Duration(); d < 250*time.Millisecond || d > 270*time.Millisecond {
		t.Errorf("Duration = %v, want about 261ms", d)
	}
}

func TestDecodeSniffsBeforeContentType(t *testing.T) {
	// Storage often serves audio as octet-stream or with a wrong type.
	if _, err := Decode(silentMP3(2), "audio/wav"); err != nil {
		t.Errorf("mp3 labelled wav: error = %v", err)
	}
}

func TestDecodeUnsupported(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		contentType string
	}{
		{"html page", []byte("<html>not audio</html>"), "text/html; charset=utf-8"},
		{"no type", []byte("plain bytes"), ""},
		{"ogg", []byte("OggS\x00\x02"), "audio/ogg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data, tt.contentType); !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("err = %v, want ErrUnsupportedFormat", err)
			}
		})
	}
}

func TestDecodeMP3Garbage(t *testing.T) {
	if _, err := DecodeMP3([]byte{0xFF, 0xFB, 0x00}); err == nil {
		t.Error("DecodeMP3() of a truncated header expected error")
	}
}
