package events

import "context"

// Observer is notified of lifecycle events after they commit. Observers
// must not fail the write that produced the event, so Observe has no
// error return; implementations log their own failures.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) Observe(ctx context.Context, e Event) {
	f(ctx, e)
}

// Observers fans events out to every registered observer in order.
type Observers []Observer

// Notify delivers each event to every observer.
func (o Observers) Notify(ctx context.Context, evs ...Event) {
	for _, e := range evs {
		for _, obs := range o {
			obs.Observe(ctx, e)
		}
	}
}
