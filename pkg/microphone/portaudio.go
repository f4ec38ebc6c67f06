package microphone

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"voice-dashboard/pkg/audio"
	"voice-dashboard/pkg/capture"
	"voice-dashboard/pkg/domain"
)

// chunkBuffer is how many unread callbacks are kept before audio is dropped.
const chunkBuffer = 64

// Device records from the default input device through PortAudio.
type Device struct {
	format          audio.Format
	framesPerBuffer int

	initOnce sync.Once
	initErr  error
	ready    bool
}

// New creates a device capturing in format. Only 16-bit formats are supported.
func New(format audio.Format) (*Device, error) {
	if format == (audio.Format{}) {
		format = audio.DefaultFormat
	}
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d", format.BitDepth)
	}
	return &Device{
		format: format,
		// 100ms per callback.
		framesPerBuffer: format.SampleRate / 10,
	}, nil
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

// Open starts a stream on the default input device.
func (d *Device) Open(ctx context.Context) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.init(); err != nil {
		return nil, classifyOpenError(err)
	}

	s := &stream{chunks: make(chan []byte, chunkBuffer)}
	pa, err := portaudio.OpenDefaultStream(d.format.Channels, 0, float64(d.format.SampleRate), d.framesPerBuffer, s.onSamples)
	if err != nil {
		return nil, classifyOpenError(fmt.Errorf("failed to open stream: %w", err))
	}
	if err := pa.Start(); err != nil {
		pa.Close()
		return nil, classifyOpenError(fmt.Errorf("failed to start stream: %w", err))
	}
	s.pa = pa
	return s, nil
}

// Terminate releases PortAudio. Call once when no stream is open anymore.
func (d *Device) Terminate() error {
	if !d.ready {
		return nil
	}
	return portaudio.Terminate()
}

type stream struct {
	pa     *portaudio.Stream
	chunks chan []byte

	mu      sync.Mutex
	closed  bool
	dropped int
}

// onSamples runs on the PortAudio callback thread and must not block.
func (s *stream) onSamples(in []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.chunks <- encodeSamples(in):
	default:
		s.dropped++
	}
}

func (s *stream) Chunks() <-chan []byte { return s.chunks }

func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	dropped := s.dropped
	close(s.chunks)
	s.mu.Unlock()

	if dropped > 0 {
		log.Printf("microphone: dropped %d audio buffers", dropped)
	}

	stopErr := s.pa.Stop()
	closeErr := s.pa.Close()
	if stopErr != nil {
		return fmt.Errorf("failed to stop stream: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close stream: %w", closeErr)
	}
	return nil
}

// encodeSamples converts samples to little-endian PCM bytes.
func encodeSamples(in []int16) []byte {
	out := make([]byte, len(in)*2)
	for i, v := range in {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// classifyOpenError maps PortAudio failures onto the capture error kinds.
func classifyOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "not allowed") || strings.Contains(msg, "denied") {
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrDeviceError, err)
}

var _ capture.Device = (*Device)(nil)
