package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMessage carries a payload; the embedded interface panics if anything
// else is called.
type fakeMessage struct {
	mqtt.Message
	payload []byte
}

func (m fakeMessage) Payload() []byte { return m.payload }
func (m fakeMessage) Topic() string   { return "energy/pipeline/extraction.completed" }

func message(t *testing.T, e Event) mqtt.Message {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return fakeMessage{payload: b}
}

func TestInboxHandleDoesNotBlock(t *testing.T) {
	in := NewInbox(1, zerolog.Nop())

	var msgs []mqtt.Message
	for _, p := range []string{"a.csv", "b.csv", "c.csv"} {
		msgs = append(msgs, message(t, Event{Type: ExtractionCompleted, Path: p}))
	}
	msgs = append(msgs, fakeMessage{payload: []byte("not json")})

	done := make(chan struct{})
	go func() {
		defer close(done)
		// nothing drains the inbox; the second and third events are dropped
		for _, m := range msgs {
			in.Handle(nil, m)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Handle blocked on a full inbox")
	}
	require.Len(t, in.events, 1)
	assert.Equal(t, "a.csv", (<-in.events).Path)
}

func TestInboxRun(t *testing.T) {
	in := NewInbox(4, zerolog.Nop())
	in.Handle(nil, message(t, Event{Type: ExtractionCompleted, Path: "a.csv"}))
	in.Handle(nil, message(t, Event{Type: ExtractionCompleted, Path: "b.csv"}))

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu   sync.Mutex
		seen []string
	)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		in.Run(ctx, func(_ context.Context, e Event) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, e.Path)
			if len(seen) == 2 {
				cancel()
			}
			if e.Path == "a.csv" {
				return errors.New("no unit matches")
			}
			return nil
		})
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
	assert.Equal(t, []string{"a.csv", "b.csv"}, seen)
}
