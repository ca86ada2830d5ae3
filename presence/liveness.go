package presence

import (
	"context"
	"time"

	"intake-relay/models"
)

// InactiveAfter is how long a patient may go without an update before staff
// see them as inactive.
const InactiveAfter = 10 * time.Second

// DefaultInterval is how often a Monitor re-evaluates the label.
const DefaultInterval = time.Second

// Classify derives the label staff should see. SUBMITTED wins over any
// timestamp. A zero lastActiveAt means nothing was ever received. Elapsed time
// of exactly InactiveAfter still counts as filling. Both timestamps are epoch
// milliseconds on different clocks; skew is not corrected.
func Classify(status models.Status, lastActiveAt, now int64) models.Status {
	if status == models.StatusSubmitted {
		return models.StatusSubmitted
	}
	if lastActiveAt == 0 {
		return models.StatusInactive
	}
	if now-lastActiveAt > InactiveAfter.Milliseconds() {
		return models.StatusInactive
	}
	return models.StatusFilling
}

// Source supplies the latest observed status and activity time.
type Source interface {
	Latest() (status models.Status, lastActiveAt int64)
}

// Monitor re-classifies a Source on a fixed interval, since a patient turns
// inactive through the absence of events.
type Monitor struct {
	src      Source
	interval time.Duration
	now      func() time.Time
	wake     chan struct{}
}

func NewMonitor(src Source, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{src: src, interval: interval, now: time.Now, wake: make(chan struct{}, 1)}
}

// Poke makes Run re-evaluate without waiting for the next tick, e.g. after
// the source received an event. It never blocks.
func (m *Monitor) Poke() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Current classifies the source against the wall clock.
func (m *Monitor) Current() models.Status {
	status, last := m.src.Latest()
	return Classify(status, last, m.now().UnixMilli())
}

// Run calls fn with the current label immediately, then on every tick and
// every Poke, until ctx is done. fn is never called concurrently.
func (m *Monitor) Run(ctx context.Context, fn func(models.Status)) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	fn(m.Current())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(m.Current())
		case <-m.wake:
			fn(m.Current())
		}
	}
}
