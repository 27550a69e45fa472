// Package controller implements the submission controller behind the creation
// page: it owns the page's view state, forwards one submission at a time to
// the generation backend, and turns the outcome into something renderable.
package controller

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/livetemplate/karigar/internal/config"
	"github.com/livetemplate/karigar/internal/generate"
	"github.com/livetemplate/karigar/internal/metrics"
	"github.com/livetemplate/karigar/internal/view"
)

// ImagePrefix is prepended to the backend's base64 image to form the image source.
const ImagePrefix = "data:image/png;base64,"

// FailureMessage is shown to the user for every kind of failure.
const FailureMessage = "An error occurred. Please check the console and try again."

var (
	// ErrInFlight is returned when a submission arrives while another is running.
	ErrInFlight = errors.New("submission already in progress")
	// ErrShowingResults is returned when a submission arrives before the results were reset.
	ErrShowingResults = errors.New("results are showing; reset before submitting again")
	// ErrAborted is returned by Submit when a reset cancelled the attempt.
	ErrAborted = errors.New("submission aborted by reset")
)

// Versions and notice IDs are drawn from process-wide sequences, so a page
// that moves to a fresh session after expiry still sees them increase.
var (
	versionSeq atomic.Uint64
	noticeSeq  atomic.Uint64
)

// Notice is a one-shot user notification. The browser raises one alert per ID.
type Notice struct {
	ID      uint64 `json:"id"`
	Message string `json:"message"`
	Kind    string `json:"kind"` // network, server, parse; diagnostics only
}

// View is everything the page needs to render the current state.
type View struct {
	Version  uint64            `json:"version"`
	State    view.State        `json:"state"`
	Sections view.Sections     `json:"sections"`
	Story    string            `json:"story"`
	Social   string            `json:"social"`
	ImageSrc string            `json:"image_src"`
	Values   map[string]string `json:"values"`
	Notice   *Notice           `json:"notice,omitempty"`
}

// Value returns the preserved value of a form field ("" when unset).
func (v View) Value(name string) string {
	return v.Values[name]
}

// Controller mediates between one form and the generation endpoint.
type Controller struct {
	gen      generate.Generator
	recorder metrics.Recorder

	mu      sync.Mutex
	state   view.State
	values  map[string]string
	result  *generate.Result
	notice  *Notice
	version uint64
	attempt uint64
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool

	subMu       sync.Mutex
	subscribers map[int]func(View)
	nextSub     int
}

// New creates a controller in the Form state. No request is made.
func New(gen generate.Generator, recorder metrics.Recorder) *Controller {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Controller{
		gen:         gen,
		recorder:    recorder,
		state:       view.Form,
		values:      map[string]string{},
		version:     versionSeq.Add(1),
		done:        make(chan struct{}),
		subscribers: make(map[int]func(View)),
	}
}

// State returns the current view state.
func (c *Controller) State() view.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// View returns a snapshot for rendering.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	v := View{
		Version:  c.version,
		State:    c.state,
		Sections: view.SectionsFor(c.state),
		Values:   make(map[string]string, len(c.values)),
	}
	for k, val := range c.values {
		v.Values[k] = val
	}
	if c.result != nil && c.state == view.Results {
		v.Story = c.result.Story
		v.Social = c.result.Social
		v.ImageSrc = ImagePrefix + c.result.MagicPhoto
	}
	if c.notice != nil {
		n := *c.notice
		v.Notice = &n
	}
	return v
}

// Subscribe registers fn to receive a View after every change.
// The returned function removes the subscription.
func (c *Controller) Subscribe(fn func(View)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subscribers, id)
	}
}

// Subscribed reports whether any subscriber is attached.
func (c *Controller) Subscribed() bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subscribers) > 0
}

// Done is closed when the controller is closed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) publish(v View) {
	c.subMu.Lock()
	subs := make([]func(View), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}

// Begin moves Form -> Loading for payload and returns the Loading view plus
// a function that performs the request. Splitting the two lets an HTTP
// handler answer with the Loading view before the backend call runs.
func (c *Controller) Begin(ctx context.Context, payload *generate.Payload) (View, func() error, error) {
	c.mu.Lock()
	next, err := view.Transition(c.state, view.Submit)
	if err != nil {
		from := c.state
		c.mu.Unlock()
		c.recorder.IncRejected(from.String())
		if from == view.Loading {
			return View{}, nil, ErrInFlight
		}
		return View{}, nil, ErrShowingResults
	}

	c.state = next
	if payload != nil {
		c.values = payload.Values()
	} else {
		c.values = map[string]string{}
	}
	c.result = nil
	c.notice = nil
	c.attempt++
	attempt := c.attempt
	reqCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.version = versionSeq.Add(1)
	v := c.viewLocked()
	c.mu.Unlock()

	c.publish(v)

	run := func() error {
		defer cancel()
		return c.run(reqCtx, attempt, payload)
	}
	return v, run, nil
}

// Submit runs one full submission: Form -> Loading -> Results or back to Form.
// It blocks until the backend answers. The returned error is the tagged
// generation error (already logged and turned into a notice), ErrInFlight or
// ErrShowingResults when the submission was refused, or ErrAborted.
func (c *Controller) Submit(ctx context.Context, payload *generate.Payload) error {
	_, run, err := c.Begin(ctx, payload)
	if err != nil {
		return err
	}
	return run()
}

func (c *Controller) run(ctx context.Context, attempt uint64, payload *generate.Payload) error {
	start := time.Now()
	c.recorder.IncInFlight()
	result, genErr := c.gen.Generate(ctx, payload)
	c.recorder.DecInFlight()
	elapsed := time.Since(start)

	c.mu.Lock()
	if attempt != c.attempt || c.state != view.Loading {
		c.mu.Unlock()
		c.recorder.ObserveAborted(elapsed)
		if config.IsDebug() {
			log.Printf("[Controller] Discarding outcome of superseded attempt %d", attempt)
		}
		return ErrAborted
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if genErr != nil {
		kind := generate.Kind(genErr)
		next, _ := view.Transition(c.state, view.Fail)
		c.state = next
		c.notice = &Notice{ID: noticeSeq.Add(1), Message: FailureMessage, Kind: kind}
		c.version = versionSeq.Add(1)
		v := c.viewLocked()
		c.mu.Unlock()

		log.Printf("[Controller] Submission failed (kind=%s) after %v: %v", kind, elapsed.Round(time.Millisecond), genErr)
		c.recorder.ObserveSubmission(kind, elapsed)
		c.publish(v)
		return genErr
	}

	next, _ := view.Transition(c.state, view.Succeed)
	c.state = next
	c.result = result
	c.version = versionSeq.Add(1)
	v := c.viewLocked()
	c.mu.Unlock()

	if config.IsDebug() {
		log.Printf("[Controller] Submission succeeded in %v", elapsed.Round(time.Millisecond))
	}
	c.recorder.ObserveSubmission("", elapsed)
	c.publish(v)
	return nil
}

// Reset returns to the Form state from any state with all fields at their
// defaults. An in-flight request is cancelled and its outcome ignored.
func (c *Controller) Reset() View {
	c.mu.Lock()
	c.resetLocked()
	v := c.viewLocked()
	c.mu.Unlock()

	c.publish(v)
	return v
}

func (c *Controller) resetLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	next, _ := view.Transition(c.state, view.Reset)
	c.state = next
	c.values = map[string]string{}
	c.result = nil
	c.notice = nil
	c.attempt++
	c.version = versionSeq.Add(1)
}

// Close cancels any in-flight request, returns the controller to the Form
// state and closes Done. Subscribers are not notified; they are expected to
// watch Done. Close is idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.resetLocked()
	close(c.done)
	return nil
}
