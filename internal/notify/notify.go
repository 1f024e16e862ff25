package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Kind string

const (
	KindBookingCreated   Kind = "booking_created"
	KindBookingConfirmed Kind = "booking_confirmed"
	KindBookingCancelled Kind = "booking_cancelled"
	KindPaymentAnomaly   Kind = "payment_anomaly"
)

type Audience string

const (
	AudienceAdmin  Audience = "admin"
	AudienceClient Audience = "client"
)

type Notification struct {
	Kind      Kind
	Audience  Audience
	BookingID string
	UserID    string
	Date      string
	StartTime string
	Message   string
}

func (n Notification) String() string {
	return fmt.Sprintf("%s to %s: booking %s on %s %s", n.Kind, n.Audience, n.BookingID, n.Date, n.StartTime)
}

// Sender delivers a notification to its audience.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes notifications to the log. Used when no mail or push
// channel is configured.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log.With(zap.String("sender", "log"))}
}

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.log.Info("notification",
		zap.String("kind", string(n.Kind)),
		zap.String("audience", string(n.Audience)),
		zap.String("booking_id", n.BookingID),
		zap.String("user_id", n.UserID),
		zap.String("date", n.Date),
		zap.String("start", n.StartTime),
		zap.String("message", n.Message),
	)
	return nil
}

// DropCounter is told about every notification that was not delivered.
type DropCounter interface {
	IncNotificationDropped(reason string)
}

// Dispatcher sends notifications asynchronously. A full queue or a failing
// sender never blocks or fails the caller.
type Dispatcher struct {
	sender  Sender
	queue   chan Notification
	dropped DropCounter
	timeout time.Duration
	log     *zap.Logger

	wg   sync.WaitGroup
	once sync.Once
}

func NewDispatcher(sender Sender, buffer int, dropped DropCounter, log *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 100
	}
	d := &Dispatcher{
		sender:  sender,
		queue:   make(chan Notification, buffer),
		dropped: dropped,
		timeout: 10 * time.Second,
		log:     log.With(zap.String("component", "notify")),
	}

	d.wg.Add(1)
	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("notification sender panicked", zap.Any("panic", r), zap.Stringer("notification", n))
			d.drop("panic")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sender.Send(ctx, n); err != nil {
		d.log.Warn("notification failed", zap.Stringer("notification", n), zap.Error(err))
		d.drop("send_error")
	}
}

func (d *Dispatcher) Notify(n Notification) {
	if d == nil {
		return
	}
	select {
	case d.queue <- n:
	default:
		d.log.Warn("notification queue full, dropping", zap.Stringer("notification", n))
		d.drop("queue_full")
	}
}

func (d *Dispatcher) drop(reason string) {
	if d.dropped != nil {
		d.dropped.IncNotificationDropped(reason)
	}
}

// Close flushes pending notifications and stops the worker.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() { close(d.queue) })
	d.wg.Wait()
}
