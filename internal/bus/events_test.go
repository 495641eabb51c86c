package bus

import (
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func testEBLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn + 8}))
}

func TestEventBus_EmitAndReceive(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var got Event
	eb.On(EventTranscriptionCompleted, func(e Event) { got = e })

	eb.Emit(Event{Type: EventTranscriptionCompleted, Source: "whatsapp", Payload: map[string]any{KeyText: "hello"}})

	if got.Payload[KeyText] != "hello" || got.Source != "whatsapp" {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestEventBus_WildcardHandler(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var count int32
	eb.On("*", func(e Event) {
		atomic.AddInt32(&count, 1)
	})

	eb.Emit(Event{Type: EventMessageReceived})
	eb.Emit(Event{Type: EventReplyFailed})

	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("expected 2, got %d", count)
	}
}

func TestEventBus_Off(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var first, second int32
	id := eb.On("test.event", func(e Event) { atomic.AddInt32(&first, 1) })
	eb.On("test.event", func(e Event) { atomic.AddInt32(&second, 1) })

	eb.Emit(Event{Type: "test.event"})
	eb.Off("test.event", id)
	eb.Emit(Event{Type: "test.event"})

	if atomic.LoadInt32(&first) != 1 {
		t.Errorf("expected 1 after unsubscribe, got %d", first)
	}
	if atomic.LoadInt32(&second) != 2 {
		t.Errorf("remaining handler should still fire, got %d", second)
	}
}

func TestEventBus_UniqueIDsAfterOff(t *testing.T) {
	eb := NewEventBus(testEBLogger())
	a := eb.On("x", func(Event) {})
	eb.Off("x", a)
	b := eb.On("x", func(Event) {})
	if a == b {
		t.Fatalf("handler ids should not be reused, got %s twice", a)
	}
}

func TestEventBus_PanicRecovery(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var after int32
	eb.On("panic", func(e Event) {
		panic("test panic")
	})
	eb.On("panic", func(e Event) { atomic.AddInt32(&after, 1) })

	// Should not panic the caller
	eb.Emit(Event{Type: "panic"})
	if atomic.LoadInt32(&after) != 1 {
		t.Error("handlers after a panicking one should still run")
	}
}

func TestEventBus_TimestampAutoSet(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var got Event
	eb.On("test", func(e Event) { got = e })
	before := time.Now()
	eb.Emit(Event{Type: "test"})

	if got.Timestamp.Before(before) {
		t.Error("timestamp should be auto-set")
	}
}
