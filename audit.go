package auth

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Security event types recorded by the engine. Events are immutable and
// append-only: the engine emits, never mutates or deletes.
const (
	// EventLogin records a completed sign-in for a registered user.
	EventLogin = "user.login"
	// EventLogout records a sign-out.
	EventLogout = "user.logout"
	// EventRequestReset records a forgot-password request.
	EventRequestReset = "user.request_password_reset"
	// EventResetPassword records a completed password reset.
	EventResetPassword = "user.reset_password"
	// EventVerifyEmail records a consumed email-verification link.
	EventVerifyEmail = "user.verify_email"
	// EventReplayDetected records a persistent-token replay and the mass
	// deletion it triggered.
	EventReplayDetected = "security.replay"
	// EventSignOutEverywhere records a bulk session invalidation.
	EventSignOutEverywhere = "user.sign_out_everywhere"
)

// SecurityEvent is one audit record.
type SecurityEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"`
	UserID      int64     `json:"user_id,omitempty"`
	IP          string    `json:"ip,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	Strategy    string    `json:"auth_strategy,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Sink receives security events. Implementations must be safe for concurrent
// use; a sink that persists to the application's audit table goes here.
type Sink interface {
	Emit(ctx context.Context, event SecurityEvent)
}

// NoopSink discards events.
type NoopSink struct{}

// Emit implements [Sink].
func (NoopSink) Emit(context.Context, SecurityEvent) {}

// ChannelSink delivers events to a channel, for tests and custom pipelines.
type ChannelSink struct {
	events chan SecurityEvent
}

// NewChannelSink returns a sink buffering up to buffer events.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan SecurityEvent, buffer)}
}

// Emit implements [Sink].
func (s *ChannelSink) Emit(ctx context.Context, event SecurityEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the delivery channel.
func (s *ChannelSink) Events() <-chan SecurityEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink returns a sink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

// Emit implements [Sink].
func (s *JSONWriterSink) Emit(_ context.Context, event SecurityEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
