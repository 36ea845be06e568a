package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultHistoryCapacity = 1000

// Dispatcher fans a ChangeRecord out to every enabled channel and logs
// the per-channel outcome. A channel failure never affects its siblings,
// per spec.md §4.9's delivery-independence rule.
type Dispatcher struct {
	channels []Channel
	history  *ring
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHistoryCapacity overrides the default 1,000-entry delivery log.
func WithHistoryCapacity(n int) Option {
	return func(d *Dispatcher) { d.history = newRing(n) }
}

// New creates a Dispatcher broadcasting to channels.
func New(channels []Channel, opts ...Option) *Dispatcher {
	d := &Dispatcher{channels: channels, history: newRing(defaultHistoryCapacity)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends change (rendered with template, if any channel wants it)
// to every enabled channel concurrently and returns once all have
// completed. Each channel's outcome is recorded in history and also
// returned as one DeliveryRecord per enabled channel.
func (d *Dispatcher) Dispatch(ctx context.Context, change ChangeRecord, template string) []DeliveryRecord {
	eventID := uuid.NewString()
	var wg sync.WaitGroup
	records := make([]DeliveryRecord, 0, len(d.channels))
	var mu sync.Mutex

	for _, ch := range d.channels {
		if !ch.Enabled() {
			continue
		}
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			outcome := ch.Send(ctx, change, template)
			rec := DeliveryRecord{EventID: eventID, Timestamp: time.Now(), Channel: ch.Name(), Change: change, Outcome: outcome}
			d.history.add(rec)
			mu.Lock()
			records = append(records, rec)
			mu.Unlock()
		}(ch)
	}
	wg.Wait()

	return records
}

// History returns up to n most-recently-delivered records, newest first.
// n <= 0 returns every retained record (capped at the configured
// capacity).
func (d *Dispatcher) History(n int) []DeliveryRecord {
	return d.history.recent(n)
}
