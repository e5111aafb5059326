package securityevents

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Dispatcher forwards events to a Store from a background worker so that
// Record never blocks or fails the request path. When the buffer is full
// the event is dropped and counted; enforcement decisions never wait on
// the audit log.
type Dispatcher struct {
	store   Store
	ch      chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	once    sync.Once

	writeTimeout time.Duration
}

// NewDispatcher creates a dispatcher with the given buffer size and starts
// its worker goroutine
func NewDispatcher(store Store, bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}

	d := &Dispatcher{
		store:        store,
		ch:           make(chan Event, bufferSize),
		done:         make(chan struct{}),
		writeTimeout: 5 * time.Second,
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.append(event)
		case <-d.done:
			// drain whatever is buffered before exiting
			for {
				select {
				case event := <-d.ch:
					d.append(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) append(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.writeTimeout)
	defer cancel()

	if err := d.store.Append(ctx, event); err != nil {
		slog.Error("Failed to append security event",
			"event_type", event.EventType,
			"user_id", event.UserID,
			"err", err)
	}
}

// Record enqueues an event without blocking. Missing id/created_at fields
// are filled in here so callers only set what they know.
func (d *Dispatcher) Record(ctx context.Context, event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	select {
	case d.ch <- event:
	case <-d.done:
	default:
		d.dropped.Add(1)
		slog.Warn("Security event buffer full, dropping event",
			"event_type", event.EventType,
			"dropped_total", d.dropped.Load())
	}
}

// Dropped returns how many events were discarded because the buffer was full
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops the worker after draining buffered events
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}
