package progress

import (
	"log/slog"
	"sync"
	"time"
)

// Listener receives published events. A listener that panics is isolated:
// the bus recovers and other listeners still receive the event.
type Listener func(Event)

// DefaultThrottle is the default quiet-period window for non-critical
// events when a Bus is created with zero throttle.
const DefaultThrottle = 100 * time.Millisecond

// Bus is a single-producer, multi-subscriber progress event channel.
// Critical events (stage-start, stage-complete, stage-error, checkpoint,
// user-prompt) are delivered immediately. Non-critical events
// (stage-progress, token-stream) are rate-limited: the first event in a
// quiet period is delivered immediately, and subsequent events within the
// throttle window are queued and drained one per interval.
type Bus struct {
	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int

	queue    []Event
	draining bool
	epoch    int
	throttle time.Duration

	// lastImmediate is when an event was last delivered outside the queue
	// (either the fast path below or drainLoop's ticked delivery). It gates
	// the fast path: a queue that has just emptied doesn't reopen immediate
	// delivery until a full throttle window has passed.
	lastImmediate time.Time

	logger *slog.Logger
}

// NewBus creates a Bus with the given throttle window (DefaultThrottle if
// zero or negative).
func NewBus(throttle time.Duration, logger *slog.Logger) *Bus {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		listeners: make(map[int]Listener),
		throttle:  throttle,
		logger:    logger,
	}
}

// Subscribe registers listener and returns a function that unsubscribes it.
// Multiple concurrent subscribers are supported.
func (b *Bus) Subscribe(listener Listener) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = listener
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// Publish delivers e, either immediately (critical kinds, or the first
// non-critical event after a quiet period) or via the throttled queue.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Kind.IsCritical() {
		b.deliver(e)
		return
	}
	b.publishThrottled(e)
}

func (b *Bus) publishThrottled(e Event) {
	b.mu.Lock()
	now := time.Now()
	if !b.draining && len(b.queue) == 0 && (b.lastImmediate.IsZero() || now.Sub(b.lastImmediate) >= b.throttle) {
		b.lastImmediate = now
		b.mu.Unlock()
		b.deliver(e)
		return
	}

	b.queue = append(b.queue, e)
	epoch := b.epoch
	start := !b.draining
	if start {
		b.draining = true
	}
	b.mu.Unlock()

	if start {
		go b.drainLoop(epoch)
	}
}

func (b *Bus) drainLoop(epoch int) {
	ticker := time.NewTicker(b.throttle)
	defer ticker.Stop()

	for range ticker.C {
		b.mu.Lock()
		if b.epoch != epoch {
			b.mu.Unlock()
			return
		}
		if len(b.queue) == 0 {
			b.draining = false
			b.mu.Unlock()
			return
		}
		ev := b.queue[0]
		b.queue = b.queue[1:]
		b.lastImmediate = time.Now()
		b.mu.Unlock()

		b.deliver(ev)
	}
}

// deliver fans e out to a snapshot of current listeners, isolating panics
// per listener.
func (b *Bus) deliver(e Event) {
	b.mu.Lock()
	snapshot := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		snapshot = append(snapshot, l)
	}
	b.mu.Unlock()

	for _, l := range snapshot {
		b.invoke(l, e)
	}
}

func (b *Bus) invoke(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("progress listener panicked", "recovered", r)
		}
	}()
	l(e)
}

// Clear removes all listeners and drops the pending queue. Events already
// queued are never delivered after Clear returns; the bus remains usable
// for future Subscribe/Publish calls.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.listeners = make(map[int]Listener)
	b.queue = nil
	b.draining = false
	b.lastImmediate = time.Time{}
	b.epoch++
	b.mu.Unlock()
}

// PendingCount reports how many non-critical events are currently queued,
// for tests and diagnostics.
func (b *Bus) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
