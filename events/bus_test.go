package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kanephamphu/connex-agi/agierr"
)

type fakeEvent struct {
	Type string `json:"type"`
	Goal string `json:"goal"`
}

func (e fakeEvent) EventType() string { return e.Type }

func TestBusFanOutInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var seen []string
	sub1, err := bus.Register(SubscriberFunc(func(ctx context.Context, e Event) error {
		seen = append(seen, "sub1:"+e.EventType())
		return nil
	}))
	require.NoError(t, err)
	_, err = bus.Register(SubscriberFunc(func(ctx context.Context, e Event) error {
		seen = append(seen, "sub2:"+e.EventType())
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), fakeEvent{Type: "goal_started"}))
	require.Equal(t, []string{"sub1:goal_started", "sub2:goal_started"}, seen)

	require.NoError(t, sub1.Close())
	seen = nil
	require.NoError(t, bus.Publish(context.Background(), fakeEvent{Type: "goal_completed"}))
	require.Equal(t, []string{"sub2:goal_completed"}, seen)
}

func TestBusStopsAtFirstSubscriberError(t *testing.T) {
	bus := NewBus()
	called := false
	_, _ = bus.Register(SubscriberFunc(func(ctx context.Context, e Event) error {
		return agierr.New(agierr.KindExecution, "boom")
	}))
	_, _ = bus.Register(SubscriberFunc(func(ctx context.Context, e Event) error {
		called = true
		return nil
	}))
	err := bus.Publish(context.Background(), fakeEvent{Type: "x"})
	require.Error(t, err)
	require.False(t, called)
}

func TestRegisterRejectsNilSubscriber(t *testing.T) {
	bus := NewBus()
	_, err := bus.Register(nil)
	require.Error(t, err)
}

func TestEncodeDecodeSSERoundTrip(t *testing.T) {
	ev := fakeEvent{Type: "goal_started", Goal: "make coffee"}
	frame, err := EncodeSSE(ev)
	require.NoError(t, err)
	require.Contains(t, string(frame), "event: goal_started")

	dataLine := []byte(frame[len("event: goal_started\ndata: "):])
	dataLine = dataLine[:len(dataLine)-2] // trim trailing \n\n

	typ, payload, err := DecodeEnvelope(dataLine)
	require.NoError(t, err)
	require.Equal(t, "goal_started", typ)

	var decoded fakeEvent
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, ev, decoded)
}
