package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/bus"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
)

type recordingHandler struct {
	mu     sync.Mutex
	bodies map[string][]string // sender -> bodies in handling order
	delay  time.Duration
	ctxErr error
}

func (h *recordingHandler) Handle(ctx context.Context, ev domain.InboundEvent) {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bodies == nil {
		h.bodies = make(map[string][]string)
	}
	if err := ctx.Err(); err != nil {
		h.ctxErr = err
	}
	if te, ok := ev.(domain.TextEvent); ok {
		h.bodies[te.Sender] = append(h.bodies[te.Sender], te.Body)
	}
}

type panickyHandler struct{}

func (panickyHandler) Handle(context.Context, domain.InboundEvent) { panic("boom") }

func TestRunner_PerSenderOrder(t *testing.T) {
	q := bus.NewQueue(4, 100, testLogger())
	h := &recordingHandler{}
	r := NewRunner(RunnerConfig{
		Queue:    q,
		Handlers: map[string]Handler{"whatsapp": h},
		Logger:   testLogger(),
	})
	r.Start(context.Background())

	senders := []string{"+1", "+2", "+3"}
	for i := 0; i < 20; i++ {
		for _, s := range senders {
			q.Publish(textEvent(s, string(rune('a'+i))))
		}
	}
	q.Close()
	if err := r.Wait(5 * time.Second); err != nil {
		t.Fatalf("wait: %v", err)
	}

	for _, s := range senders {
		got := h.bodies[s]
		if len(got) != 20 {
			t.Fatalf("sender %s: expected 20 events, got %d", s, len(got))
		}
		for i, b := range got {
			if b != string(rune('a'+i)) {
				t.Errorf("sender %s: event %d out of order: %q", s, i, b)
			}
		}
	}
}

func TestRunner_DetachedContext(t *testing.T) {
	q := bus.NewQueue(1, 10, testLogger())
	h := &recordingHandler{delay: 20 * time.Millisecond}
	r := NewRunner(RunnerConfig{Queue: q, Handlers: map[string]Handler{"whatsapp": h}, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	q.Publish(textEvent("+1", "first"))
	cancel()
	q.Close()

	if err := r.Wait(5 * time.Second); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if h.ctxErr != nil {
		t.Errorf("handler saw cancelled context: %v", h.ctxErr)
	}
	if len(h.bodies["+1"]) != 1 {
		t.Errorf("queued event should still be handled after cancel")
	}
}

func TestRunner_UnknownChannelAndPanic(t *testing.T) {
	q := bus.NewQueue(1, 10, testLogger())
	h := &recordingHandler{}
	r := NewRunner(RunnerConfig{
		Queue: q,
		Handlers: map[string]Handler{
			"whatsapp": h,
			"telegram": panickyHandler{},
		},
		Logger: testLogger(),
	})
	r.Start(context.Background())

	tg := textEvent("42", "boom")
	tg.Channel = "telegram"
	other := textEvent("+1", "lost")
	other.Channel = "carrier-pigeon"

	q.Publish(tg)
	q.Publish(other)
	q.Publish(textEvent("+1", "kept"))
	q.Close()

	if err := r.Wait(5 * time.Second); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := h.bodies["+1"]; len(got) != 1 || got[0] != "kept" {
		t.Errorf("worker should survive panic and unknown channel, got %q", got)
	}
}

func TestRunner_WaitTimeout(t *testing.T) {
	q := bus.NewQueue(1, 10, testLogger())
	r := NewRunner(RunnerConfig{Queue: q, Handlers: map[string]Handler{}, Logger: testLogger()})
	r.Start(context.Background())
	defer q.Close()

	if err := r.Wait(10 * time.Millisecond); err != ErrShutdownTimeout {
		t.Errorf("expected ErrShutdownTimeout with open queue, got %v", err)
	}
}

// gatedHandler blocks events of one sender until release is closed.
type gatedHandler struct {
	blocked string
	release chan struct{}
	handled chan string
}

func (h *gatedHandler) Handle(_ context.Context, ev domain.InboundEvent) {
	te := ev.(domain.TextEvent)
	if te.Sender == h.blocked {
		<-h.release
	}
	h.handled <- te.Sender + ":" + te.Body
}

func TestRunner_SlowSenderDoesNotBlockOthers(t *testing.T) {
	q := bus.NewQueue(1, 10, testLogger()) // every sender on the same shard
	h := &gatedHandler{blocked: "+1", release: make(chan struct{}), handled: make(chan string, 10)}
	r := NewRunner(RunnerConfig{Queue: q, Handlers: map[string]Handler{"whatsapp": h}, Logger: testLogger()})
	r.Start(context.Background())

	q.Publish(textEvent("+1", "slow"))
	q.Publish(textEvent("+1", "after-slow"))
	q.Publish(textEvent("+2", "fast"))

	select {
	case got := <-h.handled:
		if got != "+2:fast" {
			t.Fatalf("expected +2 to finish first, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sender +2 was blocked behind sender +1")
	}

	close(h.release)
	for _, want := range []string{"+1:slow", "+1:after-slow"} {
		select {
		case got := <-h.handled:
			if got != want {
				t.Fatalf("expected %q, got %q", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	q.Close()
	if err := r.Wait(5 * time.Second); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if n := r.ActiveLanes(); n != 0 {
		t.Errorf("idle lanes should be reaped, %d left", n)
	}
}
