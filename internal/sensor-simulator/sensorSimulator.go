package sensor_simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/LeonardoBeccarini/climate_controller/internal/model/messages"
	"github.com/LeonardoBeccarini/climate_controller/pkg/dedup"
	"github.com/LeonardoBeccarini/climate_controller/pkg/rabbitmq"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	ReadingTopic = "sensor/data/{metric}"
	StateTopic   = "actuator/state/+"
)

// RoomSimulator publishes the readings of a simulated room and feeds the actuator states
// seen on the bus back into the model.
type RoomSimulator struct {
	sensorID  string
	model     *RoomModel
	publisher rabbitmq.IPublisher
	consumer  rabbitmq.IConsumer
	deduper   *dedup.Deduper
	clock     func() time.Time
	lg        *zap.Logger
}

func NewRoomSimulator(consumer rabbitmq.IConsumer, publisher rabbitmq.IPublisher, model *RoomModel,
	sensorID string, lg *zap.Logger) *RoomSimulator {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &RoomSimulator{
		sensorID:  sensorID,
		model:     model,
		publisher: publisher,
		consumer:  consumer,
		deduper:   dedup.New(2*time.Minute, 10000),
		clock:     time.Now,
		lg:        lg.Named("room-sim"),
	}
}

// Start publishes a reading set every interval until ctx is done.
func (s *RoomSimulator) Start(ctx context.Context, interval time.Duration) {
	if s.consumer != nil {
		s.consumer.SetHandler(s.handleMessage)
		go s.consumer.ConsumeMessage(ctx)
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.publisher.Close()
			return
		case <-t.C:
			s.PublishOnce()
		}
	}
}

// PublishOnce steps the model and publishes one reading per metric.
func (s *RoomSimulator) PublishOnce() {
	for _, r := range s.model.Next(s.sensorID, s.clock().UTC()) {
		topic := rabbitmq.FormatTopic(ReadingTopic, "{metric}", r.Metric)
		if err := s.publisher.PublishTo(topic, 0, false, r); err != nil {
			s.lg.Warn("publish reading", zap.String("topic", topic), zap.Error(err))
			continue
		}
		s.lg.Debug("reading", zap.String("metric", r.Metric), zap.Float64("value", r.Value))
	}
}

func (s *RoomSimulator) handleMessage(topic string, msg mqtt.Message) error {
	return s.HandlePayload(topic, msg.Payload())
}

// HandlePayload applies one actuator/state/{device} message to the model.
func (s *RoomSimulator) HandlePayload(topic string, payload []byte) error {
	if !s.deduper.ShouldProcessPayload(topic, payload) {
		return nil
	}
	var evt messages.ActuatorStateChanged
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("invalid ActuatorStateChanged: %w", err)
	}
	if evt.Device == "" {
		evt.Device = entities.Device(topic[strings.LastIndexByte(topic, '/')+1:])
	}
	s.model.ApplyState(evt)
	s.lg.Info("actuator state", zap.String("device", string(evt.Device)),
		zap.String("mode", evt.Mode), zap.Float64("power", evt.CurrentPower))
	return nil
}
