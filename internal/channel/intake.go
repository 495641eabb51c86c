// Package channel exposes the HTTP webhook front-ends. Each front-end checks
// the platform's authenticity header, hands the body to its normalizer,
// enqueues the resulting events and acknowledges immediately; the outcome of
// processing never changes the response.
package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/metrics"
)

// DefaultMaxBodyBytes caps webhook request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Publisher accepts events for asynchronous processing. *bus.Queue implements it.
type Publisher interface {
	Publish(ev domain.InboundEvent) bool
}

// Route is one HTTP endpoint of a front-end. Endpoint is the low-cardinality
// label used for request metrics.
type Route struct {
	Pattern  string
	Endpoint string
	Handler  http.Handler
}

// intake holds what every front-end needs to turn a request body into queued
// events.
type intake struct {
	channel    string
	normalizer domain.EventNormalizer
	queue      Publisher
	metrics    *metrics.Metrics
	maxBody    int64
	logger     *slog.Logger
}

func newIntake(channel string, n domain.EventNormalizer, q Publisher, m *metrics.Metrics, maxBody int64, logger *slog.Logger) intake {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return intake{
		channel:    channel,
		normalizer: n,
		queue:      q,
		metrics:    m,
		maxBody:    maxBody,
		logger:     logger.With("channel", channel),
	}
}

// readBody reads at most maxBody bytes. Oversized bodies fail with
// *http.MaxBytesError.
func (in *intake) readBody(rw http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(rw, r.Body, in.maxBody))
}

// dispatch normalizes body and enqueues every event. It returns the number of
// events accepted by the queue.
func (in *intake) dispatch(body []byte) int {
	events, errs := in.normalizer.Normalize(body)
	for _, err := range errs {
		in.logger.Warn("skipping malformed webhook entry", "err", err)
	}
	if in.metrics != nil && len(errs) > 0 {
		in.metrics.RecordMalformed(in.channel, len(errs))
	}

	accepted := 0
	for _, ev := range events {
		if in.queue.Publish(ev) {
			accepted++
			continue
		}
		meta := ev.Meta()
		in.logger.Error("event dropped", "sender", meta.Sender, "message_id", meta.MessageID)
		if in.metrics != nil {
			in.metrics.RecordDropped(in.channel)
		}
	}
	in.logger.Debug("webhook processed", "events", len(events), "accepted", accepted, "malformed", len(errs))
	return accepted
}

// recoverWith turns a panic in a handler into a logged error followed by the
// platform acknowledgement.
func (in *intake) recoverWith(rw http.ResponseWriter, ack func(http.ResponseWriter)) {
	if r := recover(); r != nil {
		in.logger.Error("webhook handler panic", "panic", r)
		ack(rw)
	}
}

func (in *intake) bodyError(rw http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		in.logger.Warn("webhook body too large", "limit", tooLarge.Limit)
		http.Error(rw, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
		return
	}
	in.logger.Warn("webhook body read failed", "err", err)
	http.Error(rw, "Bad Request", http.StatusBadRequest)
}

// verifyHMAC verifies a "sha256=<hex>" signature of body.
func verifyHMAC(body []byte, secret, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
