package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type recordingWriter struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (w *recordingWriter) Write(_ context.Context, ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("db down")
	}
	w.events = append(w.events, ev)
	return nil
}

func TestDispatcherDeliversBeforeClose(t *testing.T) {
	w := &recordingWriter{}
	d := NewDispatcher(w, 10, zap.NewNop())

	d.Dispatch(Event{Action: ActionBookingCreated, EntityID: "b1"})
	d.Dispatch(Event{Action: ActionBookingCancelled, EntityID: "b1"})
	d.Close()

	assert.Len(t, w.events, 2)
	assert.Equal(t, ActionBookingCreated, w.events[0].Action)
}

func TestDispatcherSurvivesWriterErrors(t *testing.T) {
	w := &recordingWriter{fail: true}
	d := NewDispatcher(w, 1, zap.NewNop())

	assert.NotPanics(t, func() {
		for i := 0; i < 20; i++ {
			d.Dispatch(Event{Action: ActionBookingUpdated})
		}
		d.Close()
		d.Close()
	})
	assert.Empty(t, w.events)
}

func TestNilDispatcher(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() {
		d.Dispatch(Event{Action: ActionBookingCreated})
		d.Close()
	})
}
