// Package speaker plays PCM on the default output device through PortAudio.
package speaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"voice-dashboard/pkg/audio"
	"voice-dashboard/pkg/playback"
)

// DefaultBufferDuration is the audio length of one device write.
const DefaultBufferDuration = 50 * time.Millisecond

// Device opens output streams on the default output device.
type Device struct {
	bufferDuration time.Duration

	initOnce sync.Once
	initErr  error
	ready    bool
}

// New creates a device writing buffers of bufferDuration; zero uses
// DefaultBufferDuration.
func New(bufferDuration time.Duration) *Device {
	if bufferDuration <= 0 {
		bufferDuration = DefaultBufferDuration
	}
	return &Device{bufferDuration: bufferDuration}
}

func (d *Device) init() error {
	d.initOnce.Do(func() {
		if err := portaudio.Initialize(); err != nil {
			d.initErr = fmt.Errorf("failed to initialize PortAudio: %w", err)
			return
		}
		d.ready = true
	})
	return d.initErr
}

// Open starts a blocking output stream in format.
func (d *Device) Open(format audio.Format) (playback.Sink, error) {
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d", format.BitDepth)
	}
	if format.Channels < 1 || format.SampleRate < 1 {
		return nil, fmt.Errorf("invalid format %+v", format)
	}
	if err := d.init(); err != nil {
		return nil, err
	}

	frames := framesPerBuffer(format, d.bufferDuration)
	s := &sink{buf: make([]int16, frames*format.Channels)}
	pa, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), frames, &s.buf)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := pa.Start(); err != nil {
		pa.Close()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}
	s.pa = pa
	s.write = pa.Write
	return s, nil
}

// Terminate releases PortAudio. Call once when no stream is open anymore.
func (d *Device) Terminate() error {
	if !d.ready {
		return nil
	}
	return portaudio.Terminate()
}

func framesPerBuffer(format audio.Format, d time.Duration) int {
	frames := int(float64(format.SampleRate) * d.Seconds())
	if frames < 1 {
		frames = 1
	}
	return frames
}

type sink struct {
	pa *portaudio.Stream
	// buf is registered with the stream; write plays its whole content.
	buf   []int16
	write func() error

	mu     sync.Mutex
	closed bool
}

// Write plays samples in buffer-sized steps, padding the last one with
// silence.
func (s *sink) Write(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("output stream closed")
	}

	for len(samples) > 0 {
		n := copy(s.buf, samples)
		clear(s.buf[n:])
		samples = samples[n:]
		if err := s.write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("failed to write output stream: %w", err)
		}
	}
	return nil
}

func (s *sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	stopErr := s.pa.Stop()
	closeErr := s.pa.Close()
	if stopErr != nil {
		return fmt.Errorf("failed to stop output stream: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output stream: %w", closeErr)
	}
	return nil
}

var _ playback.Output = (*Device)(nil)
