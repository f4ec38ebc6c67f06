package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"voice-dashboard/pkg/audio"
	"voice-dashboard/pkg/domain"
	"voice-dashboard/pkg/gateway"
	"voice-dashboard/pkg/handle"
)

// MicrophoneMessage is shown when the microphone cannot be opened.
const MicrophoneMessage = "could not access microphone — check permissions"

// State is the lifecycle position of a capture session.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateRecording  State = "recording"
	StateStopped    State = "stopped"
	StateSaving     State = "saving"
)

var (
	ErrCaptureActive = errors.New("a capture is already in progress")
	ErrClipPending   = errors.New("an unsaved clip must be saved or discarded first")
	ErrNotRecording  = errors.New("not recording")
	ErrNoClip        = errors.New("no clip to save")
	ErrSaveInFlight  = errors.New("save already in progress")
	ErrEmptyClip     = errors.New("no audio was captured")
	ErrSignedOut     = errors.New("no signed-in identity")
	ErrClosed        = errors.New("capture session closed")
)

// MicrophoneError is returned by Start when the device cannot be acquired.
type MicrophoneError struct {
	// Kind is domain.ErrPermissionDenied or domain.ErrDeviceError.
	Kind error
	Err  error
}

func (e *MicrophoneError) Error() string { return MicrophoneMessage }

func (e *MicrophoneError) Unwrap() []error { return []error{e.Kind, e.Err} }

// Clip is a captured, not yet persisted recording.
type Clip struct {
	Data     []byte
	MIMEType string
	// Duration is the elapsed tick count in whole seconds.
	Duration int
	Handle   handle.Handle
}

// Sink receives recordings once they are persisted.
type Sink interface {
	Prepend(rec domain.Recording)
}

// IdentitySource exposes the signed-in user.
type IdentitySource interface {
	Current() (domain.Identity, bool)
}

// HandleStore allocates playback handles for clips.
type HandleStore interface {
	Create(data []byte, mimeType string) handle.Handle
	Revoke(url string)
}

// Config wires the session dependencies.
type Config struct {
	Device   Device
	Uploader gateway.UploadGateway
	Library  Sink
	Identity IdentitySource
	Handles  HandleStore

	// Optional.
	Clock  Clock
	Format audio.Format
	Now    func() time.Time
}

// SaveOptions are the optional upload fields of Save.
type SaveOptions struct {
	Description string
	IsPublic    bool
}

// Session turns start/stop intents into a single in-memory clip and hands it
// to the upload gateway. One session owns at most one microphone stream.
type Session struct {
	cfg Config

	mu      sync.Mutex
	state   State
	closed  bool
	stream  Stream
	pcm     bytes.Buffer
	drained chan struct{}
	ticker  Ticker
	tickEnd chan struct{}
	tickOut chan struct{}
	elapsed int
	clip    *Clip
}

// NewSession validates cfg and returns an idle session.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Device == nil {
		return nil, fmt.Errorf("capture device is required")
	}
	if cfg.Uploader == nil {
		return nil, fmt.Errorf("upload gateway is required")
	}
	if cfg.Library == nil {
		return nil, fmt.Errorf("recording library is required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("identity source is required")
	}
	if cfg.Handles == nil {
		return nil, fmt.Errorf("handle store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Format == (audio.Format{}) {
		cfg.Format = audio.DefaultFormat
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{cfg: cfg, state: StateIdle}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed returns the elapsed seconds of the running or last capture.
func (s *Session) Elapsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// Clip returns the pending clip, if any.
func (s *Session) Clip() (Clip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clip == nil {
		return Clip{}, false
	}
	return *s.clip, true
}

// Start acquires the microphone and begins buffering audio.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.clip != nil:
		s.mu.Unlock()
		return ErrClipPending
	case s.state != StateIdle:
		s.mu.Unlock()
		return ErrCaptureActive
	}
	s.state = StateRequesting
	s.mu.Unlock()

	stream, err := s.cfg.Device.Open(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = StateIdle
		kind := domain.ErrDeviceError
		if errors.Is(err, domain.ErrPermissionDenied) {
			kind = domain.ErrPermissionDenied
		}
		log.Printf("capture: open microphone: %v", err)
		return &MicrophoneError{Kind: kind, Err: err}
	}
	if s.closed {
		_ = stream.Close()
		return ErrClosed
	}

	s.stream = stream
	s.state = StateRecording
	s.elapsed = 0
	s.pcm.Reset()

	s.drained = make(chan struct{})
	go s.drain(stream, s.drained)

	s.ticker = s.cfg.Clock.NewTicker(time.Second)
	s.tickEnd = make(chan struct{})
	s.tickOut = make(chan struct{})
	go s.tick(s.ticker, s.tickEnd, s.tickOut)

	return nil
}

func (s *Session) drain(stream Stream, done chan struct{}) {
	defer close(done)
	for chunk := range stream.Chunks() {
		s.mu.Lock()
		s.pcm.Write(chunk)
		s.mu.Unlock()
	}
}

func (s *Session) tick(t Ticker, end <-chan struct{}, out chan<- struct{}) {
	defer close(out)
	for {
		select {
		case <-end:
			return
		case <-t.C():
			s.mu.Lock()
			s.elapsed++
			s.mu.Unlock()
		}
	}
}

// stopCapture releases the device and the tick. It must be called without s.mu held.
func (s *Session) stopCapture(stream Stream, t Ticker, tickEnd chan struct{}, tickOut, drained <-chan struct{}) error {
	err := stream.Close()
	t.Stop()
	close(tickEnd)
	<-tickOut
	<-drained
	return err
}

// Stop releases the microphone and materializes the captured audio as a clip.
func (s *Session) Stop() (Clip, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return Clip{}, ErrNotRecording
	}
	stream, t, tickEnd, tickOut, drained := s.stream, s.ticker, s.tickEnd, s.tickOut, s.drained
	s.stream, s.ticker = nil, nil
	s.state = StateStopped
	s.mu.Unlock()

	if err := s.stopCapture(stream, t, tickEnd, tickOut, drained); err != nil {
		log.Printf("capture: release microphone: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Clip{}, ErrClosed
	}
	pcm := append([]byte(nil), s.pcm.Bytes()...)
	s.pcm.Reset()
	if len(pcm) == 0 {
		s.state = StateIdle
		return Clip{}, ErrEmptyClip
	}

	data, err := audio.EncodeWAV(pcm, s.cfg.Format)
	if err != nil {
		s.state = StateIdle
		return Clip{}, fmt.Errorf("build clip: %w", err)
	}

	s.clip = &Clip{
		Data:     data,
		MIMEType: audio.MIMEType,
		Duration: s.elapsed,
		Handle:   s.cfg.Handles.Create(data, audio.MIMEType),
	}
	s.state = StateStopped
	return *s.clip, nil
}

// Discard drops the pending clip and revokes its playback handle.
func (s *Session) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateSaving {
		return ErrSaveInFlight
	}
	if s.clip == nil {
		return ErrNoClip
	}
	s.cfg.Handles.Revoke(s.clip.Handle.URL)
	s.clip = nil
	s.state = StateIdle
	return nil
}

// Save uploads the pending clip. The persisted recording is in the library
// before Save returns. On failure the clip is kept so the caller may retry.
func (s *Session) Save(ctx context.Context, title string, opts SaveOptions) (domain.Recording, error) {
	s.mu.Lock()
	if s.state == StateSaving {
		s.mu.Unlock()
		return domain.Recording{}, ErrSaveInFlight
	}
	if s.clip == nil {
		s.mu.Unlock()
		return domain.Recording{}, ErrNoClip
	}
	ident, ok := s.cfg.Identity.Current()
	if !ok {
		s.mu.Unlock()
		return domain.Recording{}, ErrSignedOut
	}
	clip := *s.clip
	s.state = StateSaving
	s.mu.Unlock()

	fileName := fmt.Sprintf("%s-%d.%s", ident.ID, s.cfg.Now().UnixNano(), audio.Extension)
	res, err := s.cfg.Uploader.Upload(ctx, gateway.UploadRequest{
		OwnerID:     ident.ID,
		File:        bytes.NewReader(clip.Data),
		Size:        int64(len(clip.Data)),
		FileName:    fileName,
		ContentType: clip.MIMEType,
		Title:       title,
		Description: opts.Description,
		IsPublic:    opts.IsPublic,
		Duration:    clip.Duration,
	})
	if err != nil {
		s.mu.Lock()
		if s.state == StateSaving {
			s.state = StateStopped
		}
		s.mu.Unlock()
		log.Printf("capture: save %q: %v", title, err)
		return domain.Recording{}, fmt.Errorf("save recording: %w", err)
	}

	s.cfg.Library.Prepend(res.Recording)

	s.mu.Lock()
	s.cfg.Handles.Revoke(clip.Handle.URL)
	s.clip = nil
	if s.state == StateSaving {
		s.state = StateIdle
	}
	s.mu.Unlock()

	return res.Recording, nil
}

// Close releases the microphone, the tick and any pending clip handle.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stream, t, tickEnd, tickOut, drained := s.stream, s.ticker, s.tickEnd, s.tickOut, s.drained
	s.stream, s.ticker = nil, nil
	if s.clip != nil {
		s.cfg.Handles.Revoke(s.clip.Handle.URL)
		s.clip = nil
	}
	s.state = StateIdle
	s.mu.Unlock()

	if stream != nil {
		return s.stopCapture(stream, t, tickEnd, tickOut, drained)
	}
	return nil
}
