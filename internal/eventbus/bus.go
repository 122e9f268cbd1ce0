// Package eventbus implements the process-wide publish/subscribe bus for
// task/knowledge lifecycle events (component C3), grounded on the
// teacher's internal/eventbus package: synchronous, priority-ordered
// dispatch where handler failures are logged but never propagated, plus
// a bounded in-memory history the teacher's bus didn't need (it relies on
// an external NATS JetStream for persistence, out of scope here per
// SPEC_FULL's domain-stack table).
package eventbus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/taskcore/taskcore/internal/corelog"
)

const defaultHistorySize = 1000

// Bus dispatches events to registered handlers in priority order and
// retains a bounded history for introspection.
type Bus struct {
	mu          sync.RWMutex
	handlers    []Handler
	history     []*Event
	historyMax  int
	logger      *corelog.Logger
}

// New creates a Bus with the default history size.
func New(logger *corelog.Logger) *Bus {
	if logger == nil {
		logger = corelog.Nop()
	}
	return &Bus{historyMax: defaultHistorySize, logger: logger}
}

// Register adds a handler to the bus. Handlers are sorted by priority on
// each Dispatch, so registration order does not matter.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Unregister removes a handler by ID, reporting whether one was removed.
func (b *Bus) Unregister(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.ID() == id {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Bus) matchingHandlers(t EventType) []Handler {
	var matched []Handler
	for _, h := range b.handlers {
		for _, et := range h.Handles() {
			if et == t {
				matched = append(matched, h)
				break
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority() < matched[j].Priority()
	})
	return matched
}

// Dispatch sends an event to all registered handlers for its type,
// synchronously within the calling worker so that ordering is
// preserved (spec §5). Handler errors are logged but do not stop the
// chain or affect the producer.
func (b *Bus) Dispatch(ctx context.Context, event *Event) (*Result, error) {
	if event == nil {
		return nil, fmt.Errorf("eventbus: nil event")
	}

	b.mu.Lock()
	matching := b.matchingHandlers(event.Type)
	b.history = append(b.history, event)
	if len(b.history) > b.historyMax {
		b.history = b.history[len(b.history)-b.historyMax:]
	}
	b.mu.Unlock()

	result := &Result{}
	for _, h := range matching {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("eventbus: context canceled: %w", err)
		}
		if err := h.Handle(ctx, event, result); err != nil {
			b.logger.Warn("eventbus handler failed", "handler", h.ID(), "event", event.Type, "error", err)
		}
	}
	return result, nil
}

// History returns a snapshot of the most recent events, oldest first.
func (b *Bus) History() []*Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Event, len(b.history))
	copy(out, b.history)
	return out
}
