package patient

import (
	"sync"
	"time"

	"intake-relay/models"
)

// QuietPeriod is how long edits must pause before a draft is sent.
const QuietPeriod = 250 * time.Millisecond

// Sender delivers a named event to the relay.
type Sender interface {
	Emit(event string, v interface{}) error
}

// Timer is the part of *time.Timer the emitter needs.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall time so the debounce can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type Option func(*Emitter)

func WithClock(c Clock) Option {
	return func(e *Emitter) { e.clock = c }
}

func WithQuietPeriod(d time.Duration) Option {
	return func(e *Emitter) { e.quiet = d }
}

// WithErrorHandler receives errors from debounced sends, which have no caller
// to return them to.
func WithErrorHandler(fn func(error)) Option {
	return func(e *Emitter) { e.onError = fn }
}

// Emitter coalesces a stream of draft edits into patient:update events sent
// after QuietPeriod without further edits, and sends patient:submit at once.
type Emitter struct {
	sessionID string
	out       Sender
	clock     Clock
	quiet     time.Duration
	onError   func(error)

	mu      sync.Mutex
	pending Timer
	draft   models.Draft
	// bumped on every schedule or cancel so a timer that fired while being
	// stopped can tell it is stale
	gen    uint64
	status models.Status
	closed bool
}

func NewEmitter(sessionID string, out Sender, opts ...Option) *Emitter {
	e := &Emitter{
		sessionID: sessionID,
		out:       out,
		clock:     realClock{},
		quiet:     QuietPeriod,
		onError:   func(error) {},
		status:    models.StatusFilling,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Change records a local edit and (re)schedules an update carrying draft.
func (e *Emitter) Change(draft models.Draft) {
	snapshot := draft.Clone()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.cancelLocked()
	e.status = models.StatusFilling
	e.draft = snapshot
	gen := e.gen
	e.pending = e.clock.AfterFunc(e.quiet, func() { e.fire(gen, snapshot) })
}

func (e *Emitter) fire(gen uint64, draft models.Draft) {
	e.mu.Lock()
	if e.closed || gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.pending = nil
	e.draft = nil
	e.mu.Unlock()

	if err := e.sendUpdate(draft); err != nil {
		e.onError(err)
	}
}

// Flush sends a pending update now instead of waiting out the quiet period.
// It does nothing if no update is pending.
func (e *Emitter) Flush() error {
	e.mu.Lock()
	if e.closed || e.pending == nil {
		e.mu.Unlock()
		return nil
	}
	draft := e.draft
	e.cancelLocked()
	e.mu.Unlock()

	return e.sendUpdate(draft)
}

func (e *Emitter) sendUpdate(draft models.Draft) error {
	return e.out.Emit(models.EventPatientUpdate, models.UpdatePayload{
		SessionID:    e.sessionID,
		Draft:        draft,
		Status:       models.StatusFilling,
		LastActiveAt: e.clock.Now().UnixMilli(),
	})
}

// Submit cancels any pending update and sends draft as submitted right away.
func (e *Emitter) Submit(draft models.Draft) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.cancelLocked()
	e.status = models.StatusSubmitted
	e.mu.Unlock()

	return e.out.Emit(models.EventPatientSubmit, models.UpdatePayload{
		SessionID:    e.sessionID,
		Draft:        draft.Clone(),
		Status:       models.StatusSubmitted,
		LastActiveAt: e.clock.Now().UnixMilli(),
	})
}

// Status is the patient's own view of their state.
func (e *Emitter) Status() models.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Close cancels any pending update. Later calls are ignored.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
	e.closed = true
}

func (e *Emitter) cancelLocked() {
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
	e.draft = nil
	e.gen++
}
