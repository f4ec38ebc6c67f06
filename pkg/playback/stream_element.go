package playback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"voice-dashboard/pkg/audio"
	"voice-dashboard/pkg/handle"
	"voice-dashboard/pkg/httpclient"
)

// DefaultTimeUpdateInterval is how often a playing element reports its position.
const DefaultTimeUpdateInterval = 250 * time.Millisecond

// StreamFactory creates elements that fetch WAV or MP3 sources over HTTP or
// from the local handle registry, decode them and play them on an Output.
type StreamFactory struct {
	client   *httpclient.HTTPClient
	handles  *handle.Registry
	output   Output
	interval time.Duration
}

// NewStreamFactory creates a factory playing on ClockOutput. handles may be
// nil when only remote sources are played.
func NewStreamFactory(client *httpclient.HTTPClient, handles *handle.Registry) *StreamFactory {
	if client == nil {
		client = httpclient.NewClient(httpclient.MediaClient)
	}
	return &StreamFactory{client: client, handles: handles, output: ClockOutput{}, interval: DefaultTimeUpdateInterval}
}

// SetOutput changes the device of elements created afterwards.
func (f *StreamFactory) SetOutput(out Output) {
	if out != nil {
		f.output = out
	}
}

// SetInterval changes the time update interval of elements created afterwards.
// It is also the length of audio handed to the output per write.
func (f *StreamFactory) SetInterval(d time.Duration) {
	if d > 0 {
		f.interval = d
	}
}

func (f *StreamFactory) NewElement(src string) (Element, error) {
	return &streamElement{
		src:      src,
		client:   f.client,
		handles:  f.handles,
		output:   f.output,
		interval: f.interval,
		subs:     make(map[int]func(Event)),
	}, nil
}

type streamElement struct {
	src      string
	client   *httpclient.HTTPClient
	handles  *handle.Registry
	output   Output
	interval time.Duration

	mu      sync.Mutex
	subs    map[int]func(Event)
	nextSub int
	loaded  bool
	pcm     audio.PCM
	// offset is the next sample handed to the output, always frame aligned.
	offset     int
	muted      bool
	stopPlay   chan struct{}
	loadCancel context.CancelFunc
	released   bool
}

func (e *streamElement) Subscribe(fn func(Event)) func() {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

func (e *streamElement) emit(ev Event) {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return
	}
	fns := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (e *streamElement) Load(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		cancel()
		return
	}
	e.loadCancel = cancel
	e.mu.Unlock()

	go func() {
		defer cancel()
		data, contentType, mediaErr := e.fetch(ctx)
		if mediaErr != nil {
			e.emit(Event{Type: EventError, Err: mediaErr})
			return
		}
		pcm, err := audio.Decode(data, contentType)
		if err != nil {
			e.emit(Event{Type: EventError, Err: &MediaError{Code: MediaErrDecode, Message: err.Error()}})
			return
		}

		e.mu.Lock()
		e.loaded = true
		e.pcm = pcm
		e.offset = 0
		e.mu.Unlock()

		e.emit(Event{Type: EventLoadedMetadata, Duration: pcm.Duration().Seconds()})
	}()
}

func (e *streamElement) fetch(ctx context.Context) ([]byte, string, *MediaError) {
	if handle.IsHandle(e.src) {
		if e.handles == nil {
			return nil, "", &MediaError{Code: MediaErrSrcNotSupported, Message: "no handle registry"}
		}
		data, mimeType, err := e.handles.Resolve(e.src)
		if err != nil {
			return nil, "", &MediaError{Code: MediaErrSrcNotSupported, Message: err.Error()}
		}
		return data, mimeType, nil
	}

	u, err := url.Parse(e.src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, "", &MediaError{Code: MediaErrSrcNotSupported, Message: fmt.Sprintf("unsupported source %q", e.src)}
	}

	resp, err := e.client.Get(ctx, e.src)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, "", &MediaError{Code: MediaErrAborted, Message: "fetch aborted"}
		}
		return nil, "", &MediaError{Code: MediaErrNetwork, Message: err.Error()}
	}
	defer httpclient.DrainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone,
		resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusBadRequest:
		return nil, "", &MediaError{Code: MediaErrSrcNotSupported, Message: resp.Status}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, "", &MediaError{Code: MediaErrNetwork, Message: resp.Status}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, "", &MediaError{Code: MediaErrAborted, Message: "fetch aborted"}
		}
		return nil, "", &MediaError{Code: MediaErrNetwork, Message: err.Error()}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (e *streamElement) Play(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return &MediaError{Code: MediaErrAborted, Message: "element released"}
	}
	if !e.loaded {
		return &MediaError{Code: MediaErrSrcNotSupported, Message: "source not loaded"}
	}
	if e.stopPlay != nil {
		return nil
	}
	if e.offset >= len(e.pcm.Samples) {
		e.offset = 0
	}
	sink, err := e.output.Open(e.pcm.Format)
	if err != nil {
		return &MediaError{Code: MediaErrDecode, Message: fmt.Sprintf("audio output: %v", err)}
	}
	stop := make(chan struct{})
	e.stopPlay = stop
	go e.run(ctx, stop, sink)
	return nil
}

// chunkLen is the number of samples written per step, one interval of audio.
func (e *streamElement) chunkLen() int {
	frames := int(float64(e.pcm.Format.SampleRate) * e.interval.Seconds())
	if frames < 1 {
		frames = 1
	}
	return frames * e.pcm.Format.Channels
}

// seconds converts a sample offset to a position in seconds.
func (e *streamElement) seconds(offset int) float64 {
	rate := e.pcm.Format.SampleRate * e.pcm.Format.Channels
	if rate == 0 {
		return 0
	}
	return float64(offset) / float64(rate)
}

// run writes the samples from the current offset to sink until the end of
// the clip, a pause or ctx ends. The sink is closed on return.
func (e *streamElement) run(ctx context.Context, stop chan struct{}, sink Sink) {
	defer sink.Close()
	chunk := e.chunkLen()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			e.Pause()
			return
		default:
		}

		e.mu.Lock()
		if e.stopPlay != stop {
			e.mu.Unlock()
			return
		}
		samples := e.pcm.Samples
		start := e.offset
		end := min(start+chunk, len(samples))
		buf := make([]int16, end-start)
		if !e.muted {
			copy(buf, samples[start:end])
		}
		e.offset = end
		e.mu.Unlock()

		if err := sink.Write(buf); err != nil {
			e.mu.Lock()
			current := e.stopPlay == stop
			if current {
				e.stopPlay = nil
			}
			e.mu.Unlock()
			if current {
				e.emit(Event{Type: EventError, Err: &MediaError{Code: MediaErrDecode, Message: fmt.Sprintf("audio output: %v", err)}})
			}
			return
		}

		e.mu.Lock()
		if e.stopPlay != stop {
			e.mu.Unlock()
			return
		}
		pos := e.seconds(e.offset)
		ended := e.offset >= len(samples)
		if ended {
			e.stopPlay = nil
		}
		e.mu.Unlock()

		e.emit(Event{Type: EventTimeUpdate, CurrentTime: pos})
		if ended {
			e.emit(Event{Type: EventEnded})
			return
		}
	}
}

func (e *streamElement) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopPlay != nil {
		close(e.stopPlay)
		e.stopPlay = nil
	}
}

// SetMuted silences the samples handed to the output from the next write on.
func (e *streamElement) SetMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	e.mu.Unlock()
}

// Seek moves the read offset to the frame at seconds.
func (e *streamElement) Seek(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	channels := e.pcm.Format.Channels
	if channels == 0 {
		return
	}
	frame := int(seconds * float64(e.pcm.Format.SampleRate))
	frame = max(0, min(frame, e.pcm.Frames()))
	e.offset = frame * channels
}

func (e *streamElement) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return nil
	}
	e.released = true
	if e.loadCancel != nil {
		e.loadCancel()
	}
	if e.stopPlay != nil {
		close(e.stopPlay)
		e.stopPlay = nil
	}
	e.subs = make(map[int]func(Event))
	return nil
}
