package joblog

import "context"

// Sink consumes batches of entries. Implementations must be safe for
// repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Entry) error
	Close(ctx context.Context) error
}

// Emitter publishes individual entries; Hub satisfies this interface so
// callers stay agnostic about buffering and persistence.
type Emitter interface {
	Emit(entry Entry)
}

// Discard is an Emitter that drops everything.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Entry) {}
