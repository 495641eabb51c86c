package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/bus"
)

const publishTimeout = 10 * time.Second

// Forwarder copies bus events to a Publisher. Emit runs on pipeline workers,
// so events are buffered and published from a separate goroutine; when the
// buffer is full the event is dropped with a warning.
type Forwarder struct {
	pub    Publisher
	buf    chan bus.Event
	logger *slog.Logger
}

func NewForwarder(pub Publisher, bufferSize int, logger *slog.Logger) *Forwarder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		pub:    pub,
		buf:    make(chan bus.Event, bufferSize),
		logger: logger,
	}
}

// Attach subscribes to every event type on eb and returns the unsubscribe
// function.
func (f *Forwarder) Attach(eb *bus.EventBus) (detach func()) {
	id := eb.On("*", f.enqueue)
	return func() { eb.Off("*", id) }
}

func (f *Forwarder) enqueue(e bus.Event) {
	select {
	case f.buf <- e:
	default:
		f.logger.Warn("event forwarder buffer full, dropping", "event", e.Type)
	}
}

// Run publishes buffered events until ctx is cancelled, then publishes
// whatever is still buffered and returns.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case e := <-f.buf:
			f.publish(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-f.buf:
					f.publish(e)
				default:
					return
				}
			}
		}
	}
}

func (f *Forwarder) publish(e bus.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := f.pub.Publish(ctx, RoutingKey(e.Type), NewEnvelope(e)); err != nil {
		f.logger.Error("event publish failed", "event", e.Type, "err", err)
	}
}
