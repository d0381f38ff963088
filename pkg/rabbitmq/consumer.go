package rabbitmq

import (
	"context"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type Handler func(topic string, message mqtt.Message) error

type IConsumer interface {
	ConsumeMessage(ctx context.Context)
	SetHandler(handler Handler)
}

// MultiConsumer subscribes to one or more topic filters with a shared handler and blocks
// until ctx is cancelled.
type MultiConsumer struct {
	client  mqtt.Client
	topics  []string
	handler Handler
	lg      *zap.Logger
}

var _ IConsumer = (*MultiConsumer)(nil)

func NewMultiConsumer(client mqtt.Client, topics []string, handler Handler, lg *zap.Logger) *MultiConsumer {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &MultiConsumer{client: client, topics: topics, handler: handler, lg: lg.Named("consumer")}
}

func (m *MultiConsumer) SetHandler(handler Handler) { m.handler = handler }

func (m *MultiConsumer) ConsumeMessage(ctx context.Context) {
	for _, topic := range m.topics {
		topic := topic
		token := m.client.Subscribe(topic, qosFor(topic), func(_ mqtt.Client, msg mqtt.Message) {
			if m.handler == nil {
				m.lg.Warn("no handler set", zap.String("topic", topic))
				return
			}
			if err := m.handler(msg.Topic(), msg); err != nil {
				m.lg.Warn("handler error", zap.String("topic", msg.Topic()), zap.Error(err))
			}
		})
		if token.Wait() && token.Error() != nil {
			m.lg.Error("subscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
			continue
		}
		m.lg.Info("subscribed", zap.String("topic", topic))
	}

	<-ctx.Done()

	for _, topic := range m.topics {
		m.client.Unsubscribe(topic).Wait()
	}
}

// qosFor returns 1 for topics whose loss would skew a control decision.
func qosFor(topic string) byte {
	t := strings.TrimSpace(topic)
	if strings.HasPrefix(t, "actuator/state") ||
		strings.HasPrefix(t, "event/") ||
		strings.HasPrefix(t, "sensor/snapshot") {
		return 1
	}
	return 0
}
