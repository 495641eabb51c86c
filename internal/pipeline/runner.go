package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/bus"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/metrics"
)

// ErrShutdownTimeout is returned by Wait when workers are still busy after
// the deadline.
var ErrShutdownTimeout = errors.New("pipeline workers did not finish before timeout")

// Handler processes a single inbound event. *Pipeline implements it.
type Handler interface {
	Handle(ctx context.Context, ev domain.InboundEvent)
}

// RunnerConfig holds the dependencies of a Runner.
type RunnerConfig struct {
	Queue    *bus.Queue
	Handlers map[string]Handler // keyed by channel name
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Runner consumes the sharded queue with one reader per shard. Each event is
// handed to a lane for its channel and sender: a lane handles that sender's
// events one at a time in arrival order, while lanes of different senders run
// concurrently. A lane exits as soon as it has nothing left to do.
type Runner struct {
	queue    *bus.Queue
	handlers map[string]Handler
	metrics  *metrics.Metrics
	logger   *slog.Logger
	wg       sync.WaitGroup

	mu    sync.Mutex
	lanes map[laneKey]*lane
}

type laneKey struct {
	channel string
	sender  string
}

// lane holds the events of one sender waiting behind the one being handled.
type lane struct {
	pending []domain.InboundEvent
}

func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		queue:    cfg.Queue,
		handlers: cfg.Handlers,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		lanes:    make(map[laneKey]*lane),
	}
}

// Start launches the shard readers. Handlers run under a context detached
// from ctx's cancellation, so an event already dequeued is always finished.
// Readers exit once the queue is closed and drained; lanes exit once their
// last event is handled.
func (r *Runner) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	r.logger.Info("pipeline workers started", "shards", r.queue.Shards())
	for i := 0; i < r.queue.Shards(); i++ {
		r.wg.Add(1)
		go r.read(ctx, i)
	}
}

func (r *Runner) read(ctx context.Context, shard int) {
	defer r.wg.Done()
	for ev := range r.queue.Subscribe(shard) {
		r.enqueue(ctx, ev)
		if r.metrics != nil {
			r.metrics.SetQueueDepth(r.queue.Depth())
		}
	}
}

// enqueue appends ev to its sender's lane, starting the lane if it is idle.
// It never blocks on a handler.
func (r *Runner) enqueue(ctx context.Context, ev domain.InboundEvent) {
	meta := ev.Meta()
	key := laneKey{channel: meta.Channel, sender: meta.Sender}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.lanes[key]; ok {
		l.pending = append(l.pending, ev)
		return
	}
	r.lanes[key] = &lane{}
	r.wg.Add(1)
	go r.runLane(ctx, key, ev)
}

// runLane handles ev and then every event queued behind it for the same
// sender. The lane is removed under the lock once it runs dry, so a later
// event always starts a fresh lane.
func (r *Runner) runLane(ctx context.Context, key laneKey, ev domain.InboundEvent) {
	defer r.wg.Done()
	for {
		r.dispatch(ctx, ev)

		r.mu.Lock()
		l := r.lanes[key]
		if len(l.pending) == 0 {
			delete(r.lanes, key)
			r.mu.Unlock()
			return
		}
		ev = l.pending[0]
		l.pending[0] = nil
		l.pending = l.pending[1:]
		r.mu.Unlock()
	}
}

// ActiveLanes returns the number of senders with events in flight.
func (r *Runner) ActiveLanes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lanes)
}

func (r *Runner) dispatch(ctx context.Context, ev domain.InboundEvent) {
	meta := ev.Meta()
	h, ok := r.handlers[meta.Channel]
	if !ok {
		r.logger.Warn("no pipeline for channel, dropping event", "channel", meta.Channel, "sender", meta.Sender)
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panic", "channel", meta.Channel, "panic", rec)
		}
	}()
	h.Handle(ctx, ev)
}

// Wait blocks until every shard reader and lane has exited or timeout
// elapses. Close the queue first, otherwise readers never exit.
func (r *Runner) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("pipeline workers stopped")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}
