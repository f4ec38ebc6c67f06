package speaker

import (
	"errors"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"

	"voice-dashboard/pkg/audio"
)

// capturingSink is a sink whose device writes are copied into writes.
func capturingSink(bufLen int, writes *[][]int16, result error) *sink {
	s := &sink{buf: make([]int16, bufLen)}
	s.write = func() error {
		*writes = append(*writes, append([]int16(nil), s.buf...))
		return result
	}
	return s
}

func TestSinkWritesBufferSizedSteps(t *testing.T) {
	var writes [][]int16
	s := capturingSink(4, &writes, nil)

	if err := s.Write([]int16{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(writes) != 2 {
		t.Fatalf("device writes = %d, want 2", len(writes))
	}
	want := [][]int16{{1, 2, 3, 4}, {5, 6, 0, 0}}
	for i := range want {
		for j := range want[i] {
			if writes[i][j] != want[i][j] {
				t.Fatalf("write %d = %v, want %v", i, writes[i], want[i])
			}
		}
	}
}

func TestSinkIgnoresUnderflow(t *testing.T) {
	var writes [][]int16
	s := capturingSink(2, &writes, portaudio.OutputUnderflowed)
	if err := s.Write([]int16{1, 2, 3}); err != nil {
		t.Fatalf("Write() error = %v, want underflow ignored", err)
	}
	if len(writes) != 2 {
		t.Errorf("device writes = %d, want 2", len(writes))
	}
}

func TestSinkWriteFailure(t *testing.T) {
	var writes [][]int16
	s := capturingSink(2, &writes, errors.New("device unplugged"))
	if err := s.Write([]int16{1, 2, 3}); err == nil {
		t.Fatal("Write() expected error")
	}
	if len(writes) != 1 {
		t.Errorf("device writes = %d, want to stop after the failure", len(writes))
	}
}

func TestSinkWriteAfterClose(t *testing.T) {
	var writes [][]int16
	s := capturingSink(2, &writes, nil)
	s.closed = true
	if err := s.Write([]int16{1}); err == nil {
		t.Error("Write() after close expected error")
	}
}

func TestOpenValidatesFormat(t *testing.T) {
	d := New(0)
	if _, err := d.Open(audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 24}); err == nil {
		t.Error("expected error for 24-bit format")
	}
	if _, err := d.Open(audio.Format{SampleRate: 44100, BitDepth: 16}); err == nil {
		t.Error("expected error for zero channels")
	}
}

func TestFramesPerBuffer(t *testing.T) {
	if got := framesPerBuffer(audio.DefaultFormat, DefaultBufferDuration); got != 800 {
		t.Errorf("framesPerBuffer = %d, want 800", got)
	}
	if got := framesPerBuffer(audio.DefaultFormat, time.Nanosecond); got != 1 {
		t.Errorf("framesPerBuffer = %d, want at least 1", got)
	}
	if d := New(0); d.bufferDuration != DefaultBufferDuration {
		t.Errorf("bufferDuration = %v, want %v", d.bufferDuration, DefaultBufferDuration)
	}
}
