package playback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"

	"voice-dashboard/pkg/domain"
)

// Status is the transport state of a player.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
	StatusError   Status = "error"
)

var (
	ErrNotReady   = errors.New("player is not ready")
	ErrNotInError = errors.New("retry is only possible after an error")
	ErrClosed     = errors.New("player closed")
)

// State is a snapshot of a player.
type State struct {
	Source   string
	Title    string
	Status   Status
	Loading  bool
	Playing  bool
	Muted    bool
	Elapsed  float64
	Duration float64
	Err      *Error
}

// Config wires the player dependencies.
type Config struct {
	Elements ElementFactory
	// Checker is optional; without it errors carry only the classified detail.
	Checker  SourceChecker
	// OnChange is optional and called after every state change, outside the lock.
	OnChange func(State)
}

// Player presents one audio source with transport controls and error reporting.
// Every Bind is paired with a release of the previous element and its subscriptions.
type Player struct {
	cfg Config

	mu     sync.Mutex
	state  State
	el     Element
	unsub  func()
	gen    int
	cancel context.CancelFunc
	closed bool
}

// New creates an idle player.
func New(cfg Config) (*Player, error) {
	if cfg.Elements == nil {
		return nil, fmt.Errorf("element factory is required")
	}
	return &Player{cfg: cfg, state: State{Status: StatusIdle}}, nil
}

// State returns a snapshot.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *Player) snapshot() State {
	s := p.state
	if s.Err != nil {
		e := *s.Err
		s.Err = &e
	}
	return s
}

// Bind attaches url, releasing whatever was bound before. An empty url puts
// the player in the error state without touching the network. The returned
// disposer releases this binding; it is a no-op once another Bind happened.
func (p *Player) Bind(ctx context.Context, url, title string) (func(), error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return func() {}, ErrClosed
	}
	old, oldUnsub, oldCancel := p.detachLocked()
	p.gen++
	gen := p.gen
	muted := p.state.Muted

	url = strings.TrimSpace(url)
	p.state = State{Source: url, Title: title, Muted: muted}

	if url == "" {
		p.state.Status = StatusError
		p.state.Err = &Error{Kind: domain.ErrPlaybackSourceInvalid, Message: MsgNoURL}
		err := p.state.Err
		p.mu.Unlock()
		release(old, oldUnsub, oldCancel)
		p.notify()
		return p.disposer(gen), err
	}

	p.state.Status = StatusLoading
	p.state.Loading = true
	bindCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	release(old, oldUnsub, oldCancel)

	el, err := p.cfg.Elements.NewElement(url)
	if err != nil {
		p.fail(gen, bindCtx, &MediaError{Code: MediaErrSrcNotSupported, Message: err.Error()})
		return p.disposer(gen), nil
	}

	unsub := el.Subscribe(func(ev Event) { p.handle(gen, ev) })

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		unsub()
		_ = el.Release()
		return func() {}, nil
	}
	p.el, p.unsub = el, unsub
	p.mu.Unlock()

	if muted {
		el.SetMuted(true)
	}
	p.notify()
	el.Load(bindCtx)
	return p.disposer(gen), nil
}

func (p *Player) disposer(gen int) func() {
	return func() {
		p.mu.Lock()
		if gen != p.gen {
			p.mu.Unlock()
			return
		}
		p.gen++
		el, unsub, cancel := p.detachLocked()
		p.state.Status = StatusIdle
		p.state.Loading, p.state.Playing = false, false
		p.mu.Unlock()
		release(el, unsub, cancel)
	}
}

// detachLocked takes ownership of the current element away from the player.
func (p *Player) detachLocked() (Element, func(), context.CancelFunc) {
	el, unsub, cancel := p.el, p.unsub, p.cancel
	p.el, p.unsub, p.cancel = nil, nil, nil
	return el, unsub, cancel
}

func release(el Element, unsub func(), cancel context.CancelFunc) {
	if cancel != nil {
		cancel()
	}
	if unsub != nil {
		unsub()
	}
	if el != nil {
		if err := el.Release(); err != nil {
			log.Printf("playback: release element: %v", err)
		}
	}
}

// handle applies an element event of binding gen.
func (p *Player) handle(gen int, ev Event) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	var rewind Element

	switch ev.Type {
	case EventLoadedMetadata:
		p.state.Status = StatusReady
		p.state.Loading = false
		p.state.Duration = ev.Duration
		p.state.Elapsed = 0
		p.state.Err = nil

	case EventTimeUpdate:
		if p.state.Status != StatusPlaying {
			p.mu.Unlock()
			return
		}
		p.state.Elapsed = ev.CurrentTime

	case EventEnded:
		p.state.Status = StatusPaused
		p.state.Playing = false
		p.state.Elapsed = 0
		rewind = p.el

	case EventError:
		ctx := context.Background()
		p.mu.Unlock()
		p.fail(gen, ctx, ev.Err)
		return

	default:
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if rewind != nil {
		rewind.Seek(0)
	}
	p.notify()
}

// fail enters the error state with the primary classification and starts the
// advisory existence check, whose result may only replace the detail.
func (p *Player) fail(gen int, ctx context.Context, mediaErr *MediaError) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	primary := Classify(mediaErr)
	p.state.Status = StatusError
	p.state.Loading = false
	p.state.Playing = false
	p.state.Err = primary
	src := p.state.Source
	p.mu.Unlock()

	log.Printf("playback: %s: %v", src, primary)
	p.notify()

	if p.cfg.Checker == nil || primary.Kind == domain.ErrPlaybackAborted {
		return
	}
	go func() {
		detail := p.cfg.Checker.Check(context.WithoutCancel(ctx), src)
		if detail == "" {
			return
		}
		p.mu.Lock()
		if gen != p.gen || p.state.Status != StatusError || p.state.Err != primary {
			p.mu.Unlock()
			return
		}
		enriched := *primary
		enriched.Detail = detail
		p.state.Err = &enriched
		p.mu.Unlock()
		p.notify()
	}()
}

// TogglePlay starts or pauses playback. A failing play attempt ends in the error state.
func (p *Player) TogglePlay(ctx context.Context) error {
	p.mu.Lock()
	el, gen, status := p.el, p.gen, p.state.Status
	if el == nil || (status != StatusReady && status != StatusPlaying && status != StatusPaused) {
		p.mu.Unlock()
		return ErrNotReady
	}

	if status == StatusPlaying {
		p.state.Status = StatusPaused
		p.state.Playing = false
		p.mu.Unlock()
		el.Pause()
		p.notify()
		return nil
	}

	p.state.Status = StatusPlaying
	p.state.Playing = true
	p.mu.Unlock()

	if err := el.Play(ctx); err != nil {
		failure := playFailure(err)
		p.mu.Lock()
		if gen == p.gen {
			p.state.Status = StatusError
			p.state.Playing = false
			p.state.Err = failure
		}
		p.mu.Unlock()
		log.Printf("playback: play: %v", err)
		p.notify()
		return failure
	}
	p.notify()
	return nil
}

// ToggleMute flips the mute flag without touching play/pause.
func (p *Player) ToggleMute() bool {
	p.mu.Lock()
	p.state.Muted = !p.state.Muted
	muted, el := p.state.Muted, p.el
	p.mu.Unlock()

	if el != nil {
		el.SetMuted(muted)
	}
	p.notify()
	return muted
}

// Seek moves to fraction of the duration; fraction is clamped to [0, 1].
func (p *Player) Seek(fraction float64) error {
	if math.IsNaN(fraction) {
		fraction = 0
	}
	fraction = math.Max(0, math.Min(1, fraction))

	p.mu.Lock()
	el, status := p.el, p.state.Status
	if el == nil || (status != StatusReady && status != StatusPlaying && status != StatusPaused) {
		p.mu.Unlock()
		return ErrNotReady
	}
	target := fraction * p.state.Duration
	p.state.Elapsed = target
	p.mu.Unlock()

	el.Seek(target)
	p.notify()
	return nil
}

// Retry re-binds the same source. Only valid in the error state.
func (p *Player) Retry(ctx context.Context) error {
	p.mu.Lock()
	if p.state.Status != StatusError {
		p.mu.Unlock()
		return ErrNotInError
	}
	src, title := p.state.Source, p.state.Title
	p.mu.Unlock()

	_, err := p.Bind(ctx, src, title)
	return err
}

// Close releases the element and every subscription, whatever the state.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.gen++
	el, unsub, cancel := p.detachLocked()
	p.state.Status = StatusIdle
	p.state.Loading, p.state.Playing = false, false
	p.mu.Unlock()

	release(el, unsub, cancel)
	return nil
}

func (p *Player) notify() {
	if p.cfg.OnChange == nil {
		return
	}
	p.cfg.OnChange(p.State())
}
