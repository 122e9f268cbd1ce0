package eventbus

import "context"

// Handler processes events on the bus. Handlers are called in priority
// order (lower value = earlier) for matching event types and must not
// block — long work belongs on a background queue the handler owns.
type Handler interface {
	ID() string
	Handles() []EventType
	Priority() int
	Handle(ctx context.Context, event *Event, result *Result) error
}
