package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Notifier delivers one message. Implementations may fail; the dispatcher
// logs and drops failures.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// DispatcherConfig tunes the worker pool.
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Dispatcher queues events and delivers them from a fixed pool of workers.
type Dispatcher struct {
	notifier Notifier
	config   DispatcherConfig
	queue    chan Event

	startOnce sync.Once
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	group     *errgroup.Group
}

func NewDispatcher(notifier Notifier, config DispatcherConfig) *Dispatcher {
	if config.Workers < 1 {
		config.Workers = 2
	}
	if config.QueueSize < 1 {
		config.QueueSize = 256
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Dispatcher{
		notifier: notifier,
		config:   config,
		queue:    make(chan Event, config.QueueSize),
		group:    new(errgroup.Group),
	}
}

// Start launches the workers. They stop once Close drains the queue. Start
// after Close does nothing.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.closed {
			return
		}
		for i := 0; i < d.config.Workers; i++ {
			d.group.Go(func() error {
				for e := range d.queue {
					d.deliver(ctx, e)
				}
				return nil
			})
		}
	})
}

// Publish enqueues events without waiting for delivery. Events that do not
// fit in the queue are dropped with a warning.
func (d *Dispatcher) Publish(_ context.Context, events ...Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		slog.Warn("Dispatcher closed, dropping notifications.", "count", len(events))
		return
	}
	for _, e := range events {
		select {
		case d.queue <- e:
		default:
			slog.Warn("Notification queue full, dropping event.", "eventId", e.ID, "eventType", e.Type, "documentId", e.DocumentID)
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	return d.group.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	logCtx := slog.With("eventId", e.ID, "eventType", e.Type, "documentId", e.DocumentID, "recipientId", e.RecipientID)
	if e.RecipientID == "" {
		logCtx.Warn("Event has no recipient, skipping.")
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.config.Timeout)
	defer cancel()
	if err := d.notifier.Notify(sendCtx, Render(e)); err != nil {
		logCtx.Error("Notification failed, discarding.", "error", err)
		return
	}
	logCtx.Info("Notification delivered.")
}
