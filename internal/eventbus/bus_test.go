package eventbus

import (
	"context"
	"errors"
	"testing"
)

type sampleEvent struct {
	Value int
}

func TestInMemoryBus_DispatchesByType(t *testing.T) {
	bus := NewInMemoryBus()
	var got []int
	SubscribeTyped(bus, func(_ context.Context, evt sampleEvent) error {
		got = append(got, evt.Value)
		return nil
	})
	bus.Subscribe("other.Event", func(context.Context, any) error {
		t.Fatalf("unrelated handler called")
		return nil
	})

	if err := bus.Publish(context.Background(), sampleEvent{Value: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Publish(context.Background(), &sampleEvent{Value: 2}); err != nil {
		t.Fatalf("publish ptr: %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected deliveries: %v", got)
	}
}

func TestInMemoryBus_RunsAllHandlersAndReturnsFirstError(t *testing.T) {
	bus := NewInMemoryBus()
	first := errors.New("first")
	calls := 0
	bus.Subscribe(EventTypeOf[sampleEvent](), func(context.Context, any) error {
		calls++
		return first
	})
	bus.Subscribe(EventTypeOf[sampleEvent](), func(context.Context, any) error {
		calls++
		return errors.New("second")
	})

	err := bus.Publish(context.Background(), sampleEvent{})
	if !errors.Is(err, first) {
		t.Fatalf("expected first error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 handler calls, got %d", calls)
	}
}

func TestInMemoryBus_StampsEnvelope(t *testing.T) {
	bus := NewInMemoryBus()
	var env Envelope
	bus.Subscribe(EventTypeOf[sampleEvent](), func(ctx context.Context, _ any) error {
		env, _ = EnvelopeFromContext(ctx)
		return nil
	})
	if err := bus.Publish(context.Background(), sampleEvent{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if env.EventID == "" || env.EventType != EventTypeOf[sampleEvent]() || env.OccurredAt.IsZero() {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestInMemoryBus_NilEvent(t *testing.T) {
	if err := NewInMemoryBus().Publish(context.Background(), nil); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("expected ErrNilEvent, got %v", err)
	}
}
