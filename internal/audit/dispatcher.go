package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	ActionBookingCreated    = "booking_created"
	ActionBookingUpdated    = "booking_updated"
	ActionBookingCancelled  = "booking_cancelled"
	ActionPaymentReceived   = "payment_received"
	ActionDeferredOverlap   = "deferred_overlap"
	ActionCheckoutAbandoned = "checkout_abandoned"

	EntityBooking = "booking"

	// ActorSystem marks actions taken by webhooks and background jobs.
	ActorSystem = "system"
)

type Event struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Metadata any
}

// Writer stores one event.
type Writer interface {
	Write(ctx context.Context, ev Event) error
}

// Dispatcher writes events off the request path. When the queue is full
// events are dropped; auditing never fails a booking operation.
type Dispatcher struct {
	writer Writer
	queue  chan Event
	log    *zap.Logger

	wg   sync.WaitGroup
	once sync.Once
}

func NewDispatcher(writer Writer, buffer int, log *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 100
	}
	d := &Dispatcher{
		writer: writer,
		queue:  make(chan Event, buffer),
		log:    log.With(zap.String("component", "audit")),
	}

	d.wg.Add(1)
	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.writer.Write(ctx, ev); err != nil {
			d.log.Warn("audit write failed",
				zap.String("action", ev.Action),
				zap.String("entity_id", ev.EntityID),
				zap.Error(err),
			)
		}
		cancel()
	}
}

func (d *Dispatcher) Dispatch(ev Event) {
	if d == nil {
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.log.Warn("audit queue full, dropping event",
			zap.String("action", ev.Action),
			zap.String("entity_id", ev.EntityID),
		)
	}
}

// Close drains queued events and stops the worker. Dispatch must not be
// called after Close.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() { close(d.queue) })
	d.wg.Wait()
}
