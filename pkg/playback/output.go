package playback

import (
	"time"

	"voice-dashboard/pkg/audio"
)

// Output is an audio device that plays interleaved 16-bit PCM.
type Output interface {
	Open(format audio.Format) (Sink, error)
}

// Sink is an open output stream. Write blocks until the device has taken
// the samples, which paces playback.
type Sink interface {
	Write(samples []int16) error
	Close() error
}

// ClockOutput plays nothing but takes as long as the samples would play.
// It is the output of headless runs and tests.
type ClockOutput struct{}

func (ClockOutput) Open(format audio.Format) (Sink, error) {
	return &clockSink{format: format}, nil
}

type clockSink struct {
	format audio.Format
}

func (s *clockSink) Write(samples []int16) error {
	time.Sleep(s.format.Duration(len(samples) * 2))
	return nil
}

func (s *clockSink) Close() error { return nil }
