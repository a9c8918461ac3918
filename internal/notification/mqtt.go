package notification

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/civicwatch/alertwatch/internal/errors"
	"github.com/civicwatch/alertwatch/internal/mqtt"
)

// MQTTProvider publishes each event as JSON to <topic>/<new state>.
type MQTTProvider struct {
	client mqtt.Client
	topic  string
}

// NewMQTTProvider returns a provider publishing through client.
func NewMQTTProvider(client mqtt.Client, topic string) *MQTTProvider {
	return &MQTTProvider{client: client, topic: strings.TrimRight(topic, "/")}
}

// Name returns "mqtt".
func (p *MQTTProvider) Name() string { return "mqtt" }

// Topic returns the topic an event is published to.
func (p *MQTTProvider) Topic(e Event) string {
	return p.topic + "/" + e.To
}

// Send publishes the event.
func (p *MQTTProvider) Send(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return providerError(err, p.Name(), errors.CategoryGeneric)
	}
	if err := p.client.Publish(ctx, p.Topic(e), payload); err != nil {
		return providerError(err, p.Name(), errors.CategoryNetwork)
	}
	return nil
}
