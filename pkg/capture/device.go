package capture

import (
	"context"
	"time"
)

// Device opens microphone streams.
type Device interface {
	// Open acquires the microphone. Errors wrapping domain.ErrPermissionDenied
	// are reported as permission problems, everything else as device errors.
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open microphone. Chunks carries raw little-endian PCM in the
// session format; it is closed once Close has released the device.
type Stream interface {
	Chunks() <-chan []byte
	// Close stops every track of the underlying device.
	Close() error
}

// Ticker delivers the elapsed-time ticks of a recording.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers. Tests inject a manual clock.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }
