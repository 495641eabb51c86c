package bus

import (
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
)

// Queue is a sharded in-memory queue of inbound events. Events of one sender
// on one channel always land on the same shard, so a single consumer per
// shard sees them in arrival order.
type Queue struct {
	shards []chan domain.InboundEvent
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

// NewQueue creates a queue with the given number of shards, each buffering
// bufferSize events.
func NewQueue(shards, bufferSize int, logger *slog.Logger) *Queue {
	if shards <= 0 {
		shards = 1
	}
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		shards: make([]chan domain.InboundEvent, shards),
		logger: logger,
	}
	for i := range q.shards {
		q.shards[i] = make(chan domain.InboundEvent, bufferSize)
	}
	return q
}

// Publish enqueues ev on its sender's shard without blocking. A full or
// closed queue rejects the event; the caller acknowledges the webhook either
// way, so it never waits on back-pressure.
func (q *Queue) Publish(ev domain.InboundEvent) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	meta := ev.Meta()
	if q.closed {
		q.logger.Warn("attempted to publish to closed queue", "channel", meta.Channel, "sender", meta.Sender)
		return false
	}

	select {
	case q.shards[q.ShardFor(meta)] <- ev:
		return true
	default:
		q.logger.Error("event dropped: shard full",
			"channel", meta.Channel,
			"sender", meta.Sender,
			"message_id", meta.MessageID,
		)
		return false
	}
}

// ShardFor returns the shard index for an event's channel and sender.
func (q *Queue) ShardFor(meta domain.EventMeta) int {
	h := fnv.New32a()
	h.Write([]byte(meta.Channel))
	h.Write([]byte{0})
	h.Write([]byte(meta.Sender))
	return int(h.Sum32() % uint32(len(q.shards)))
}

// Shards returns the number of shards.
func (q *Queue) Shards() int { return len(q.shards) }

// Subscribe returns the receive side of shard i. The channel is closed by Close.
func (q *Queue) Subscribe(i int) <-chan domain.InboundEvent {
	return q.shards[i]
}

// Depth returns the number of buffered events across all shards.
func (q *Queue) Depth() int {
	n := 0
	for _, s := range q.shards {
		n += len(s)
	}
	return n
}

// Close stops accepting events. Buffered events stay readable until drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		for _, s := range q.shards {
			close(s)
		}
	}
}
