package playback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"voice-dashboard/pkg/domain"
)

type fakeElement struct {
	mu       sync.Mutex
	src      string
	subs     map[int]func(Event)
	nextSub  int
	loads    int
	plays    int
	pauses   int
	playErr  error
	muted    bool
	seeks    []float64
	released bool
}

func (e *fakeElement) Subscribe(fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

func (e *fakeElement) fire(ev Event) {
	e.mu.Lock()
	fns := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (e *fakeElement) subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

func (e *fakeElement) Load(ctx context.Context) {
	e.mu.Lock()
	e.loads++
	e.mu.Unlock()
}

func (e *fakeElement) Play(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plays++
	return e.playErr
}

func (e *fakeElement) Pause() {
	e.mu.Lock()
	e.pauses++
	e.mu.Unlock()
}

func (e *fakeElement) SetMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	e.mu.Unlock()
}

func (e *fakeElement) Seek(seconds float64) {
	e.mu.Lock()
	e.seeks = append(e.seeks, seconds)
	e.mu.Unlock()
}

func (e *fakeElement) Release() error {
	e.mu.Lock()
	e.released = true
	e.mu.Unlock()
	return nil
}

type fakeFactory struct {
	mu       sync.Mutex
	elements []*fakeElement
	playErr  error
}

func (f *fakeFactory) NewElement(src string) (Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	el := &fakeElement{src: src, subs: make(map[int]func(Event)), playErr: f.playErr}
	f.elements = append(f.elements, el)
	return el, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.elements)
}

func (f *fakeFactory) last() *fakeElement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elements[len(f.elements)-1]
}

type mockChecker struct {
	mu        sync.Mutex
	callCount int
	detail    string
}

func (m *mockChecker) Check(ctx context.Context, url string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	return m.detail
}

func (m *mockChecker) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func newTestPlayer(t *testing.T, checker SourceChecker) (*Player, *fakeFactory) {
	t.Helper()
	factory := &fakeFactory{}
	p, err := New(Config{Elements: factory, Checker: checker})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, factory
}

func bindReady(t *testing.T, p *Player, f *fakeFactory, duration float64) *fakeElement {
	t.Helper()
	if _, err := p.Bind(context.Background(), "https://cdn.example.com/a.wav", "A"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	el := f.last()
	el.fire(Event{Type: EventLoadedMetadata, Duration: duration})
	if got := p.State().Status; got != StatusReady {
		t.Fatalf("status = %s, want ready", got)
	}
	return el
}

func TestNewRequiresFactory(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without element factory")
	}
}

func TestBindEmptyURL(t *testing.T) {
	p, factory := newTestPlayer(t, nil)

	_, err := p.Bind(context.Background(), "  ", "nothing")
	if !errors.Is(err, domain.ErrPlaybackSourceInvalid) {
		t.Fatalf("Bind() error = %v, want source invalid", err)
	}
	if factory.count() != 0 {
		t.Errorf("created %d elements, want none", factory.count())
	}

	s := p.State()
	if s.Status != StatusError {
		t.Errorf("status = %s, want error", s.Status)
	}
	if s.Err == nil || s.Err.Message != MsgNoURL {
		t.Errorf("err = %v, want %q", s.Err, MsgNoURL)
	}
}

func TestBindReportsDuration(t *testing.T) {
	p, factory := newTestPlayer(t, nil)

	if _, err := p.Bind(context.Background(), "https://cdn.example.com/a.wav", "A"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	s := p.State()
	if s.Status != StatusLoading || !s.Loading {
		t.Fatalf("state = %+v, want loading", s)
	}

	el := factory.last()
	if el.loads != 1 {
		t.Errorf("loads = %d, want 1", el.loads)
	}
	el.fire(Event{Type: EventLoadedMetadata, Duration: 12.5})

	s = p.State()
	if s.Status != StatusReady || s.Loading {
		t.Errorf("state = %+v, want ready", s)
	}
	if s.Duration != 12.5 || s.Elapsed != 0 {
		t.Errorf("duration/elapsed = %v/%v, want 12.5/0", s.Duration, s.Elapsed)
	}
}

func TestSeekFraction(t *testing.T) {
	p, factory := newTestPlayer(t, nil)
	el := bindReady(t, p, factory, 40)

	tests := []struct {
		fraction float64
		want     float64
	}{
		{0.5, 20},
		{2, 40},
		{-1, 0},
		{0.25, 10},
	}
	for _, tt := range tests {
		if err := p.Seek(tt.fraction); err != nil {
			t.Fatalf("Seek(%v) error = %v", tt.fraction, err)
		}
		if got := p.State().Elapsed; got != tt.want {
			t.Errorf("Seek(%v): elapsed = %v, want %v", tt.fraction, got, tt.want)
		}
	}
	if got := el.seeks[0]; got != 20 {
		t.Errorf("element seek = %v, want 20", got)
	}
}

func TestSeekBeforeReady(t *testing.T) {
	p, _ := newTestPlayer(t, nil)
	if err := p.Seek(0.5); !errors.Is(err, ErrNotReady) {
		t.Errorf("Seek() error = %v, want ErrNotReady", err)
	}
}

func TestTogglePlayAndPause(t *testing.T) {
	p, factory := newTestPlayer(t, nil)
	el := bindReady(t, p, factory, 10)

	if err := p.TogglePlay(context.Background()); err != nil {
		t.Fatalf("TogglePlay() error = %v", err)
	}
	if s := p.State(); s.Status != StatusPlaying || !s.Playing {
		t.Fatalf("state = %+v, want playing", s)
	}

	el.fire(Event{Type: EventTimeUpdate, CurrentTime: 3})
	if got := p.State().Elapsed; got != 3 {
		t.Errorf("elapsed = %v, want 3", got)
	}

	if err := p.TogglePlay(context.Background()); err != nil {
		t.Fatalf("TogglePlay() error = %v", err)
	}
	if s := p.State(); s.Status != StatusPaused || s.Playing {
		t.Errorf("state = %+v, want paused", s)
	}
	if el.plays != 1 || el.pauses != 1 {
		t.Errorf("plays/pauses = %d/%d, want 1/1", el.plays, el.pauses)
	}

	// position updates while paused are ignored
	el.fire(Event{Type: EventTimeUpdate, CurrentTime: 7})
	if got := p.State().Elapsed; got != 3 {
		t.Errorf("elapsed = %v, want 3", got)
	}
}

func TestPlayFailure(t *testing.T) {
	p, factory := newTestPlayer(t, nil)
	factory.playErr = errors.New("NotAllowedError: autoplay blocked")
	bindReady(t, p, factory, 10)

	err := p.TogglePlay(context.Background())
	if err == nil {
		t.Fatal("TogglePlay() expected error")
	}

	s := p.State()
	if s.Status != StatusError || s.Playing {
		t.Errorf("state = %+v, want error", s)
	}
	if s.Err.Message != MsgPlayFailed {
		t.Errorf("message = %q, want %q", s.Err.Message, MsgPlayFailed)
	}
	if !strings.Contains(s.Err.Detail, "autoplay blocked") {
		t.Errorf("detail = %q, want underlying reason", s.Err.Detail)
	}
}

func TestToggleMuteKeepsPlayback(t *testing.T) {
	p, factory := newTestPlayer(t, nil)
	el := bindReady(t, p, factory, 10)
	p.TogglePlay(context.Background())

	if !p.ToggleMute() {
		t.Fatal("ToggleMute() = false, want true")
	}
	s := p.State()
	if !s.Muted || s.Status != StatusPlaying {
		t.Errorf("state = %+v, want muted and playing", s)
	}
	if !el.muted {
		t.Error("element not muted")
	}

	if p.ToggleMute() {
		t.Error("second ToggleMute() = true, want false")
	}
	if s := p.State(); s.Status != StatusPlaying {
		t.Errorf("status = %s, want playing", s.Status)
	}
}

func TestEndedRewinds(t *testing.T) {
	p, factory := newTestPlayer(t, nil)
	el := bindReady(t, p, factory, 10)
	p.TogglePlay(context.Background())
	el.fire(Event{Type: EventTimeUpdate, CurrentTime: 9.9})
	el.fire(Event{Type: EventEnded})

	s := p.State()
	if s.Status != StatusPaused || s.Playing {
		t.Errorf("state = %+v, want paused", s)
	}
	if s.Elapsed != 0 {
		t.Errorf("elapsed = %v, want 0", s.Elapsed)
	}
	if n := len(el.seeks); n == 0 || el.seeks[n-1] != 0 {
		t.Errorf("seeks = %v, want rewind to 0", el.seeks)
	}
}

func TestRebindReleasesPrevious(t *testing.T) {
	p, factory := newTestPlayer(t, nil)
	first := bindReady(t, p, factory, 10)

	if _, err := p.Bind(context.Background(), "https://cdn.example.com/b.wav", "B"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if !first.released || first.subscribers() != 0 {
		t.Errorf("first element released=%v subscribers=%d", first.released, first.subscribers())
	}

	// late events of the old element are ignored
	first.fire(Event{Type: EventLoadedMetadata, Duration: 99})
	s := p.State()
	if s.Source != "https://cdn.example.com/b.wav" || s.Status != StatusLoading {
		t.Errorf("state = %+v, want loading b.wav", s)
	}
}

func TestDisposerReleasesBinding(t *testing.T) {
	p, factory := newTestPlayer(t, nil)
	dispose, err := p.Bind(context.Background(), "https://cdn.example.com/a.wav", "A")
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	el := factory.last()
	dispose()

	if !el.released || el.subscribers() != 0 {
		t.Errorf("element released=%v subscribers=%d", el.released, el.subscribers())
	}
	if got := p.State().Status; got != StatusIdle {
		t.Errorf("status = %s, want idle", got)
	}
}

func TestStaleDisposerIsNoop(t *testing.T) {
	p, factory := newTestPlayer(t, nil)
	dispose, _ := p.Bind(context.Background(), "https://cdn.example.com/a.wav", "A")
	p.Bind(context.Background(), "https://cdn.example.com/b.wav", "B")
	current := factory.last()

	dispose()
	if current.released {
		t.Error("stale disposer released the current element")
	}
}

func TestRetry(t *testing.T) {
	checker := &mockChecker{}
	p, factory := newTestPlayer(t, checker)

	if err := p.Retry(context.Background()); !errors.Is(err, ErrNotInError) {
		t.Fatalf("Retry() before error = %v, want ErrNotInError", err)
	}

	p.Bind(context.Background(), "https://cdn.example.com/a.wav", "A")
	first := factory.last()
	first.fire(Event{Type: EventError, Err: &MediaError{Code: MediaErrNetwork}})
	if got := p.State().Status; got != StatusError {
		t.Fatalf("status = %s, want error", got)
	}

	if err := p.Retry(context.Background()); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	s := p.State()
	if s.Status != StatusLoading || s.Err != nil {
		t.Errorf("state = %+v, want loading without error", s)
	}
	if factory.count() != 2 || !first.released {
		t.Errorf("elements = %d first released = %v", factory.count(), first.released)
	}

	// a second retry while loading does nothing
	if err := p.Retry(context.Background()); !errors.Is(err, ErrNotInError) {
		t.Errorf("second Retry() = %v, want ErrNotInError", err)
	}
	if factory.count() != 2 {
		t.Errorf("elements = %d, want 2", factory.count())
	}

	factory.last().fire(Event{Type: EventLoadedMetadata, Duration: 4})
	if got := p.State().Status; got != StatusReady {
		t.Errorf("status = %s, want ready", got)
	}
}

func TestErrorClassification(t *testing.T) {
	p, factory := newTestPlayer(t, nil)
	p.Bind(context.Background(), "https://cdn.example.com/a.wav", "A")
	factory.last().fire(Event{Type: EventError, Err: &MediaError{Code: MediaErrDecode}})

	s := p.State()
	if !errors.Is(s.Err, domain.ErrPlaybackDecode) {
		t.Errorf("err = %v, want decode", s.Err)
	}
	if s.Err.Message != MsgDecode {
		t.Errorf("message = %q, want %q", s.Err.Message, MsgDecode)
	}
}

func TestSourceCheckEnrichesDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	p, factory := newTestPlayer(t, NewHTTPSourceChecker(nil))
	p.Bind(context.Background(), server.URL+"/missing.wav", "missing")
	factory.last().fire(Event{Type: EventError, Err: &MediaError{Code: MediaErrSrcNotSupported}})

	s := waitFor(t, p, func(s State) bool { return s.Err != nil && strings.Contains(s.Err.Detail, "404") })
	if s.Err.Message != MsgSrcUnsupported {
		t.Errorf("message = %q, want primary classification kept", s.Err.Message)
	}
	if s.Err.Detail != "Server returned 404: Not Found" {
		t.Errorf("detail = %q", s.Err.Detail)
	}
}

func TestSourceCheckSkippedWhenAborted(t *testing.T) {
	checker := &mockChecker{detail: "should not appear"}
	p, factory := newTestPlayer(t, checker)
	p.Bind(context.Background(), "https://cdn.example.com/a.wav", "A")
	factory.last().fire(Event{Type: EventError, Err: &MediaError{Code: MediaErrAborted}})

	time.Sleep(50 * time.Millisecond)
	if checker.calls() != 0 {
		t.Errorf("check calls = %d, want 0", checker.calls())
	}
	if s := p.State(); s.Err == nil || s.Err.Message != MsgAborted {
		t.Errorf("err = %v, want %q", s.Err, MsgAborted)
	}
}

func TestCloseDuringLoad(t *testing.T) {
	factory := &fakeFactory{}
	p, _ := New(Config{Elements: factory})
	p.Bind(context.Background(), "https://cdn.example.com/a.wav", "A")
	el := factory.last()

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !el.released || el.subscribers() != 0 {
		t.Errorf("element released=%v subscribers=%d", el.released, el.subscribers())
	}

	el.fire(Event{Type: EventLoadedMetadata, Duration: 3})
	if got := p.State().Status; got != StatusIdle {
		t.Errorf("status = %s, want idle", got)
	}
	if _, err := p.Bind(context.Background(), "https://cdn.example.com/b.wav", "B"); !errors.Is(err, ErrClosed) {
		t.Errorf("Bind() after Close = %v, want ErrClosed", err)
	}
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	var mu sync.Mutex
	var seen []Status
	factory := &fakeFactory{}
	p, _ := New(Config{Elements: factory, OnChange: func(s State) {
		mu.Lock()
		seen = append(seen, s.Status)
		mu.Unlock()
	}})
	defer p.Close()

	p.Bind(context.Background(), "https://cdn.example.com/a.wav", "A")
	factory.last().fire(Event{Type: EventLoadedMetadata, Duration: 1})

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 2 || seen[0] != StatusLoading || seen[len(seen)-1] != StatusReady {
		t.Errorf("statuses = %v, want loading then ready", seen)
	}
}

func waitFor(t *testing.T, p *Player, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := p.State(); cond(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met, state = %+v", p.State())
	return State{}
}
