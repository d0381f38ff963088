package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/messages"
	"github.com/LeonardoBeccarini/climate_controller/pkg/rabbitmq"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	DefaultCycleTopic = "event/controlCycle/{room}/{stage}"
	DefaultKafkaTopic = "climate.cycles"
)

// Reporter receives the report of one control cycle.
type Reporter interface {
	Report(ctx context.Context, evt messages.CycleReportEvent) error
}

// MultiReporter fans a report out to every sink; one failing sink does not stop the others.
type MultiReporter []Reporter

func (m MultiReporter) Report(ctx context.Context, evt messages.CycleReportEvent) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Report(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MQTTReporter publishes reports on the bus at QoS 1.
type MQTTReporter struct {
	publisher rabbitmq.IPublisher
	topicTmpl string
}

var _ Reporter = (*MQTTReporter)(nil)

func NewMQTTReporter(p rabbitmq.IPublisher, topicTmpl string) *MQTTReporter {
	if strings.TrimSpace(topicTmpl) == "" {
		topicTmpl = DefaultCycleTopic
	}
	return &MQTTReporter{publisher: p, topicTmpl: topicTmpl}
}

func (r *MQTTReporter) Report(_ context.Context, evt messages.CycleReportEvent) error {
	topic := rabbitmq.FormatTopic(r.topicTmpl, "{room}", evt.Room, "{stage}", string(evt.Stage))
	if err := r.publisher.PublishTo(topic, 1, false, evt); err != nil {
		return fmt.Errorf("mqtt report: %w", err)
	}
	return nil
}

// MessageWriter is the part of *kafka.Writer the reporter needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter appends reports to a Kafka topic keyed by room.
type KafkaReporter struct {
	w       MessageWriter
	timeout time.Duration
}

var _ Reporter = (*KafkaReporter)(nil)

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

func NewKafkaReporter(w MessageWriter, timeout time.Duration) *KafkaReporter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaReporter{w: w, timeout: timeout}
}

func (r *KafkaReporter) Report(ctx context.Context, evt messages.CycleReportEvent) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.w.WriteMessages(ctx, kafka.Message{Key: []byte(evt.Room), Value: b, Time: evt.Timestamp}); err != nil {
		return fmt.Errorf("kafka report: %w", err)
	}
	return nil
}

func (r *KafkaReporter) Close() error { return r.w.Close() }

// InfluxReporter stores each report as a system_event point.
type InfluxReporter struct {
	writer *Writer
}

var _ Reporter = (*InfluxReporter)(nil)

func NewInfluxReporter(w *Writer) *InfluxReporter { return &InfluxReporter{writer: w} }

func (r *InfluxReporter) Report(_ context.Context, evt messages.CycleReportEvent) error {
	ce := FromCycleReport(evt)
	r.writer.Write(EventToPoint(ce), ce.EventType)
	return nil
}

// LogReporter logs a one-line summary; the fallback when no bus is configured.
type LogReporter struct{ lg *zap.Logger }

func NewLogReporter(lg *zap.Logger) *LogReporter {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &LogReporter{lg: lg.Named("report")}
}

func (r *LogReporter) Report(_ context.Context, evt messages.CycleReportEvent) error {
	executed, failed, skipped := evt.Counts()
	recs := make([]string, 0, len(evt.Recommendations))
	for _, a := range evt.Recommendations {
		recs = append(recs, a.String())
	}
	r.lg.Info("cycle report",
		zap.String("cycle_id", evt.CycleID),
		zap.Int("problems", len(evt.Problems)),
		zap.Int("executed", executed),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
		zap.Strings("recommendations", recs))
	return nil
}
