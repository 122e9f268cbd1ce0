package eventbus

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	id       string
	handles  []EventType
	priority int
	mu       sync.Mutex
	seen     []EventType
	failOn   EventType
	calls    *[]string // shared log of handler ids in call order, if set
}

func (h *recordingHandler) ID() string            { return h.id }
func (h *recordingHandler) Handles() []EventType  { return h.handles }
func (h *recordingHandler) Priority() int         { return h.priority }
func (h *recordingHandler) Handle(_ context.Context, e *Event, _ *Result) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, e.Type)
	if h.calls != nil {
		*h.calls = append(*h.calls, h.id)
	}
	if h.failOn == e.Type {
		return fmt.Errorf("boom")
	}
	return nil
}

func TestDispatchOrdersByPriority(t *testing.T) {
	bus := New(nil)
	var order []string
	mk := func(id string, pri int) *recordingHandler {
		return &recordingHandler{id: id, priority: pri, handles: []EventType{EventTaskCreated}, calls: &order}
	}
	low := mk("low", 10)
	high := mk("high", 1)
	bus.Register(low)
	bus.Register(high)

	_, err := bus.Dispatch(context.Background(), &Event{Type: EventTaskCreated})
	require.NoError(t, err)

	assert.Equal(t, []string{"high", "low"}, order)
}

func TestDispatchHandlerErrorDoesNotStopChain(t *testing.T) {
	bus := New(nil)
	failing := &recordingHandler{id: "a", priority: 1, handles: []EventType{EventTaskUpdated}, failOn: EventTaskUpdated}
	ok := &recordingHandler{id: "b", priority: 2, handles: []EventType{EventTaskUpdated}}
	bus.Register(failing)
	bus.Register(ok)

	_, err := bus.Dispatch(context.Background(), &Event{Type: EventTaskUpdated})
	require.NoError(t, err)
	assert.Len(t, ok.seen, 1)
}

func TestHistoryBounded(t *testing.T) {
	bus := New(nil)
	bus.historyMax = 3
	for i := 0; i < 10; i++ {
		_, _ = bus.Dispatch(context.Background(), &Event{Type: EventTaskCreated})
	}
	assert.Len(t, bus.History(), 3)
}

func TestUnregister(t *testing.T) {
	bus := New(nil)
	h := &recordingHandler{id: "x", handles: []EventType{EventTaskCreated}}
	bus.Register(h)
	assert.True(t, bus.Unregister("x"))
	assert.False(t, bus.Unregister("x"))
}

func TestDispatchNilEvent(t *testing.T) {
	bus := New(nil)
	_, err := bus.Dispatch(context.Background(), nil)
	assert.Error(t, err)
}
