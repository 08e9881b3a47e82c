package notify

import (
	"context"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Inbox decouples MQTT delivery from event handling. Paho handlers must not
// block, so Handle only decodes and queues; Run does the work.
type Inbox struct {
	events chan Event
	log    zerolog.Logger
}

func NewInbox(size int, log zerolog.Logger) *Inbox {
	if size < 1 {
		size = 1
	}
	return &Inbox{events: make(chan Event, size), log: log}
}

// Handle is an mqtt.MessageHandler. When the queue is full the event is
// dropped; the announced file stays in the data directory for the next
// directory load.
func (in *Inbox) Handle(_ mqtt.Client, msg mqtt.Message) {
	e, err := Decode(msg.Payload())
	if err != nil {
		in.log.Error().Err(err).Str("topic", msg.Topic()).Msg("bad event")
		return
	}
	select {
	case in.events <- e:
	default:
		in.log.Warn().Str("file", e.Path).Str("run_id", e.RunID).Msg("inbox full, event dropped")
	}
}

// Run hands queued events to fn one at a time until ctx is done.
func (in *Inbox) Run(ctx context.Context, fn func(context.Context, Event) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-in.events:
			log := in.log.With().Str("file", e.Path).Str("run_id", e.RunID).Logger()
			if err := fn(ctx, e); err != nil {
				log.Error().Err(err).Msg("event failed")
				continue
			}
			log.Info().Msg("event handled")
		}
	}
}
