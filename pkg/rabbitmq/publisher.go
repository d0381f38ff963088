package rabbitmq

import (
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// IPublisher publishes to a default topic or to an explicit one.
type IPublisher interface {
	PublishMessage(message any) error
	PublishTo(topic string, qos byte, retained bool, message any) error
	Close()
}

type Publisher struct {
	client mqtt.Client
	topic  string
	lg     *zap.Logger
}

var _ IPublisher = (*Publisher)(nil)

func NewPublisher(client mqtt.Client, topic string, lg *zap.Logger) *Publisher {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Publisher{client: client, topic: topic, lg: lg.Named("publisher")}
}

func (p *Publisher) PublishMessage(message any) error {
	return p.PublishTo(p.topic, qosFor(p.topic), false, message)
}

func (p *Publisher) PublishTo(topic string, qos byte, retained bool, message any) error {
	payload, err := encodePayload(message)
	if err != nil {
		return err
	}
	token := p.client.Publish(topic, qos, retained, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish on %s: %w", topic, token.Error())
	}
	p.lg.Debug("published", zap.String("topic", topic), zap.Uint8("qos", qos), zap.Int("bytes", len(payload)))
	return nil
}

// Close is a no-op: the client is shared and closed by its owner.
func (p *Publisher) Close() {}

// FormatTopic replaces {key} placeholders in a topic template.
func FormatTopic(tmpl string, kv ...string) string {
	return strings.NewReplacer(kv...).Replace(tmpl)
}

func encodePayload(message any) ([]byte, error) {
	switch m := message.(type) {
	case string:
		return []byte(m), nil
	case []byte:
		return m, nil
	default:
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("invalid message format: %w", err)
		}
		return b, nil
	}
}
