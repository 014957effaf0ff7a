package progress

import "context"

// Sink consumes batches of progress events. Implementations must be safe for
// repeated calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter accepts events without blocking. *Hub satisfies it.
type Emitter interface {
	Emit(evt Event)
}

// Nop is an Emitter that discards everything.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(Event) {}

// OrNop returns e, or Nop when e is nil.
func OrNop(e Emitter) Emitter {
	if e == nil {
		return Nop{}
	}
	if h, ok := e.(*Hub); ok && h == nil {
		return Nop{}
	}
	return e
}
