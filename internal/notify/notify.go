// Package notify announces pipeline events to other processes and to
// operators.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type EventType string

const (
	ExtractionCompleted EventType = "extraction.completed"
	LoadCompleted       EventType = "load.completed"
	LoadFailed          EventType = "load.failed"
	RunCompleted        EventType = "run.completed"
)

type Event struct {
	Type    EventType `json:"type"`
	RunID   string    `json:"run_id"`
	Source  string    `json:"source,omitempty"`
	Path    string    `json:"path,omitempty"`
	MeterID int64     `json:"meter_id,omitempty"`
	Total   int       `json:"total,omitempty"`
	Failed  int       `json:"failed,omitempty"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// Decode parses an event published by MQTTNotifier.
func Decode(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return e, fmt.Errorf("invalid event payload: %w", err)
	}
	if e.Type == "" {
		return e, errors.New("invalid event payload: missing type")
	}
	return e, nil
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Topic returns the MQTT topic events of type t are published on.
func Topic(prefix string, t EventType) string {
	return strings.TrimSuffix(prefix, "/") + "/" + string(t)
}

// ConnectMQTT connects a client to broker.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	return client, nil
}

// MQTTNotifier publishes events as JSON at QoS 1.
type MQTTNotifier struct {
	client mqtt.Client
	prefix string
}

func NewMQTTNotifier(client mqtt.Client, prefix string) *MQTTNotifier {
	return &MQTTNotifier{client: client, prefix: prefix}
}

func (n *MQTTNotifier) Notify(ctx context.Context, e Event) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}

	topic := Topic(n.prefix, e.Type)
	token := n.client.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to publish %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Alerter is satisfied by *cloud.SNSClient.
type Alerter interface {
	SendAlert(ctx context.Context, subject, message string) (string, error)
}

// SNSNotifier forwards failures only.
type SNSNotifier struct {
	alerter Alerter
}

func NewSNSNotifier(a Alerter) *SNSNotifier { return &SNSNotifier{alerter: a} }

func (n *SNSNotifier) Notify(ctx context.Context, e Event) error {
	var subject string
	switch {
	case e.Type == LoadFailed:
		subject = "Energy warehouse: load failed"
	case e.Type == RunCompleted && e.Failed > 0:
		subject = fmt.Sprintf("Energy warehouse: %d of %d items failed", e.Failed, e.Total)
	default:
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\n", e.RunID)
	if e.Path != "" {
		fmt.Fprintf(&b, "File: %s\n", e.Path)
	}
	if e.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", e.Source)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", e.Message)
	}
	_, err := n.alerter.SendAlert(ctx, subject, b.String())
	return err
}
