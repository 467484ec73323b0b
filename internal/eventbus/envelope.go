package eventbus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const contextKeyEnvelope contextKey = "eventbus.envelope"

// Envelope carries delivery metadata alongside an event.
type Envelope struct {
	EventID    string
	EventType  string
	OccurredAt time.Time
}

// NewEnvelope stamps a fresh id and time for eventType.
func NewEnvelope(eventType string) Envelope {
	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
	}
}

// ContextWithEnvelope stores envelope metadata on context.
func ContextWithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, contextKeyEnvelope, env)
}

// EnvelopeFromContext returns envelope metadata if present.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	if ctx == nil {
		return Envelope{}, false
	}
	env, ok := ctx.Value(contextKeyEnvelope).(Envelope)
	return env, ok
}
