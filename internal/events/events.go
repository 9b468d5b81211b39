// Package events defines the typed event stream a request emits while it
// moves through the pipeline. Events flow from the pipeline stages to one
// sink per request (a WebSocket connection, or a collector for the
// synchronous HTTP path). The stream is nil-safe: sending on a nil
// *Stream is a no-op, so fast paths do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Event type constants. Every frame written to a client carries exactly
// one of these in its "type" field.
const (
	// TypeIntent reports the classifier verdict before generation.
	// Data: intent, confidence, score, complexity, requiresWeb.
	TypeIntent = "intent_classification"
	// TypePhase announces a reasoning phase banner.
	// Data: phase.
	TypePhase = "reasoning_phase"
	// TypeWebResults carries the web sources handed to the model.
	// Data: results ([{title, url, snippet}]).
	TypeWebResults = "web_search_results"
	// TypeToken carries one opaque chunk of generated text. Clients
	// concatenate tokens in arrival order.
	TypeToken = "token"
	// TypeModelFallback announces that the supervisor decided to switch
	// models. Data: from, to, reason.
	TypeModelFallback = "model_fallback"
	// TypeRetryStart marks the beginning of a retry attempt. All tokens
	// streamed before this frame are superseded; clients must reset
	// their buffer.
	TypeRetryStart = "model_retry_start"
	// TypeRetryDone marks a successful retry attempt.
	TypeRetryDone = "model_retry_done"
	// TypeRetryFailed marks a terminal retry failure.
	TypeRetryFailed = "model_retry_failed"
	// TypeDone is the final frame of a successful request. Meta carries
	// durationMs, model, tools, toolTimings, format.
	TypeDone = "done"
	// TypeError is the final frame of a failed request.
	// Data: error (kind), message.
	TypeError = "error"
)

// Event is a single frame in a request's stream.
type Event struct {
	Type      string         `json:"type"`
	RequestID string         `json:"requestId,omitempty"`
	Timestamp time.Time      `json:"ts"`
	Token     string         `json:"token,omitempty"`
	Phase     string         `json:"phase,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Terminal reports whether this event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == TypeDone || e.Type == TypeError
}

// Sink receives a request's events in write order. Implementations do
// not need to be safe for concurrent use; Stream serializes sends.
type Sink interface {
	Send(Event) error
}

// FuncSink adapts a function to the Sink interface.
type FuncSink func(Event) error

// Send implements Sink.
func (f FuncSink) Send(e Event) error { return f(e) }

// Stream wraps a Sink with the per-request ordering contract: sends are
// serialized, every frame is stamped with the request id, and nothing
// follows a done or error frame. Safe for concurrent use by the token
// pump and the phase emitter.
type Stream struct {
	mu     sync.Mutex
	sink   Sink
	reqID  string
	closed bool
}

// NewStream creates a stream for one request. A nil sink yields a
// stream that drops everything, which the local fast paths rely on.
func NewStream(requestID string, sink Sink) *Stream {
	return &Stream{sink: sink, reqID: requestID}
}

// Send writes one event. Events after a terminal frame are dropped.
// Safe to call on a nil receiver (no-op).
func (s *Stream) Send(e Event) error {
	if s == nil || s.sink == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if e.Terminal() {
		s.closed = true
	}
	e.RequestID = s.reqID
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return s.sink.Send(e)
}

// Closed reports whether a terminal frame has been sent.
func (s *Stream) Closed() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Token emits one generated text chunk.
func (s *Stream) Token(tok string) error {
	return s.Send(Event{Type: TypeToken, Token: tok})
}

// PhaseBanner emits a reasoning phase announcement.
func (s *Stream) PhaseBanner(phase string) error {
	return s.Send(Event{Type: TypePhase, Phase: phase})
}

// Intent emits the classifier verdict.
func (s *Stream) Intent(data map[string]any) error {
	return s.Send(Event{Type: TypeIntent, Data: data})
}

// WebResults emits the web sources handed to the model.
func (s *Stream) WebResults(results []map[string]any) error {
	return s.Send(Event{Type: TypeWebResults, Data: map[string]any{"results": results}})
}

// Fallback announces a model switch decision.
func (s *Stream) Fallback(from, to, reason string) error {
	return s.Send(Event{Type: TypeModelFallback, Data: map[string]any{
		"from":   from,
		"to":     to,
		"reason": reason,
	}})
}

// RetryStart marks the start of a retry attempt. Clients reset their
// token buffer on receipt.
func (s *Stream) RetryStart(model, reason string) error {
	return s.Send(Event{Type: TypeRetryStart, Data: map[string]any{
		"model":  model,
		"reason": reason,
	}})
}

// RetryDone marks a successful retry.
func (s *Stream) RetryDone(model string) error {
	return s.Send(Event{Type: TypeRetryDone, Data: map[string]any{"model": model}})
}

// RetryFailed marks a terminal retry failure.
func (s *Stream) RetryFailed(model, reason string) error {
	return s.Send(Event{Type: TypeRetryFailed, Data: map[string]any{
		"model":  model,
		"reason": reason,
	}})
}

// Done emits the final frame of a successful request.
func (s *Stream) Done(meta map[string]any) error {
	return s.Send(Event{Type: TypeDone, Meta: meta})
}

// Fail emits the final frame of a failed request.
func (s *Stream) Fail(kind, message string) error {
	return s.Send(Event{Type: TypeError, Data: map[string]any{
		"error":   kind,
		"message": message,
	}})
}

// Collector is a Sink that accumulates events in memory. The synchronous
// HTTP path and tests use it to reconstruct the final answer.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Send implements Sink.
func (c *Collector) Send(e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

// Events returns a copy of everything collected so far.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Text reconstructs the answer from the token frames, honoring the retry
// contract: a model_retry_start frame invalidates everything streamed
// before it.
func (c *Collector) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var buf []byte
	for _, e := range c.events {
		switch e.Type {
		case TypeRetryStart:
			buf = buf[:0]
		case TypeToken:
			buf = append(buf, e.Token...)
		}
	}
	return string(buf)
}

// Last returns the final event, or a zero Event if none were collected.
func (c *Collector) Last() Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return Event{}
	}
	return c.events[len(c.events)-1]
}
