package trace

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func TestBusDeliversToAllHandlers(t *testing.T) {
	var a, b recorder
	bus := NewBus(a.handle, b.handle)

	bus.Emit(Event{Kind: KindTrace, Name: "process_message"})
	bus.Emit(Event{Kind: KindGeneration, Name: "completion", Model: "m1", LatencyMs: 42})
	bus.Close()

	require.Len(t, a.all(), 2)
	require.Len(t, b.all(), 2)
	assert.Equal(t, KindGeneration, a.all()[1].Kind)
	assert.Equal(t, "m1", a.all()[1].Model)
}

func TestEmitStampsTimestamp(t *testing.T) {
	var r recorder
	bus := NewBus(r.handle)

	bus.Emit(Event{Kind: KindTrace, Name: "op"})
	bus.Close()

	require.Len(t, r.all(), 1)
	assert.False(t, r.all()[0].Timestamp.IsZero())
}

func TestNilBusIsSafe(t *testing.T) {
	var bus *Bus
	bus.Emit(Event{Kind: KindTrace, Name: "noop"})
	bus.Close()
	assert.Equal(t, int64(0), bus.Dropped())
}

func TestInertBusIsSafe(t *testing.T) {
	bus := NewBus()
	bus.Emit(Event{Kind: KindTrace, Name: "noop"})
	bus.Close()
}

func TestHandlerPanicDoesNotStopDispatch(t *testing.T) {
	var r recorder
	bus := NewBus(func(Event) { panic("bad handler") }, r.handle)

	bus.Emit(Event{Kind: KindScore, Name: "quality"})
	bus.Emit(Event{Kind: KindScore, Name: "quality"})
	bus.Close()

	assert.Len(t, r.all(), 2)
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	var r recorder
	bus := NewBus(r.handle)
	bus.Close()

	bus.Emit(Event{Kind: KindTrace, Name: "late"})
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, r.all())
}
