package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/LeonardoBeccarini/climate_controller/internal/model/messages"
	"github.com/LeonardoBeccarini/climate_controller/pkg/dedup"
	"github.com/LeonardoBeccarini/climate_controller/pkg/rabbitmq"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	MetricTemperature = "temperature"
	MetricHumidity    = "humidity"
	MetricVPD         = "vpd"

	SensorTopicPrefix   = "sensor/data/"
	ActuatorTopicPrefix = "actuator/state/"
)

var ErrUnknownState = errors.New("actuator state unknown")

type reading struct {
	value float64
	at    time.Time
}

// SnapshotAggregator keeps the latest room readings and actuator states received on the bus
// and serves them to the controller. Readings expire after staleAfter; actuator states do not.
// Between aggregation ticks the last raw reading wins; at each tick the readings buffered
// since the previous one are averaged and the resulting snapshot is published.
type SnapshotAggregator struct {
	consumer  rabbitmq.IConsumer
	publisher rabbitmq.IPublisher
	deduper   *dedup.Deduper

	mu        sync.RWMutex
	buffer    map[string][]float64
	latest    map[string]reading
	actuators entities.ActuatorStates

	aggregationInterval time.Duration
	staleAfter          time.Duration
	clock               func() time.Time
	lg                  *zap.Logger
}

// NewSnapshotAggregator: consumer and publisher may be nil (tests, or state fed directly).
func NewSnapshotAggregator(consumer rabbitmq.IConsumer, publisher rabbitmq.IPublisher,
	aggregationInterval, staleAfter time.Duration, lg *zap.Logger) *SnapshotAggregator {
	if lg == nil {
		lg = zap.NewNop()
	}
	if aggregationInterval <= 0 {
		aggregationInterval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &SnapshotAggregator{
		consumer:            consumer,
		publisher:           publisher,
		deduper:             dedup.New(10*time.Minute, 20000),
		buffer:              make(map[string][]float64),
		latest:              make(map[string]reading),
		actuators:           make(entities.ActuatorStates),
		aggregationInterval: aggregationInterval,
		staleAfter:          staleAfter,
		clock:               time.Now,
		lg:                  lg.Named("aggregator"),
	}
}

// Start consumes the bus and aggregates on every tick until ctx is done.
func (d *SnapshotAggregator) Start(ctx context.Context) {
	if d.consumer != nil {
		d.consumer.SetHandler(d.messageHandler)
		go d.consumer.ConsumeMessage(ctx)
	}

	ticker := time.NewTicker(d.aggregationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if d.publisher != nil {
				d.publisher.Close()
			}
			return
		case <-ticker.C:
			d.aggregateAndPublish()
		}
	}
}

func (d *SnapshotAggregator) messageHandler(topic string, message mqtt.Message) error {
	if !d.deduper.ShouldProcessPayload(topic, message.Payload()) {
		return nil
	}
	return d.HandlePayload(topic, message.Payload())
}

// HandlePayload routes one bus payload by topic.
func (d *SnapshotAggregator) HandlePayload(topic string, payload []byte) error {
	switch {
	case strings.HasPrefix(topic, SensorTopicPrefix):
		var r messages.SensorReading
		if err := json.Unmarshal(payload, &r); err != nil {
			return fmt.Errorf("bad reading on %s: %w", topic, err)
		}
		if r.Metric == "" {
			r.Metric = strings.TrimPrefix(topic, SensorTopicPrefix)
		}
		return d.AddReading(r)
	case strings.HasPrefix(topic, ActuatorTopicPrefix):
		var s messages.ActuatorStateChanged
		if err := json.Unmarshal(payload, &s); err != nil {
			return fmt.Errorf("bad actuator state on %s: %w", topic, err)
		}
		if s.Device == "" {
			s.Device = entities.Device(strings.TrimPrefix(topic, ActuatorTopicPrefix))
		}
		d.SetActuatorState(s)
		return nil
	}
	return fmt.Errorf("unexpected topic %s", topic)
}

func (d *SnapshotAggregator) AddReading(r messages.SensorReading) error {
	metric := strings.ToLower(strings.TrimSpace(r.Metric))
	switch metric {
	case MetricTemperature, MetricHumidity, MetricVPD:
	default:
		return fmt.Errorf("unknown metric %q", r.Metric)
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("invalid %s value", metric)
	}
	at := r.Timestamp
	if at.IsZero() {
		at = d.clock()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.latest[metric]; ok && at.Before(prev.at) {
		return nil // out of order
	}
	d.latest[metric] = reading{value: r.Value, at: at}
	d.buffer[metric] = append(d.buffer[metric], r.Value)
	return nil
}

func (d *SnapshotAggregator) SetActuatorState(s messages.ActuatorStateChanged) {
	at := s.Timestamp
	if at.IsZero() {
		at = d.clock()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.actuators[s.Device]; ok && at.Before(prev.ReportedAt) {
		return
	}
	d.actuators[s.Device] = entities.ActuatorState{
		Device:       s.Device,
		Mode:         s.Mode,
		CurrentPower: s.CurrentPower,
		Setpoint:     s.Setpoint,
		ReportedAt:   at,
	}
}

// Snapshot returns the current readings. Stale readings are unknown; a missing VPD is
// derived from temperature and humidity.
func (d *SnapshotAggregator) Snapshot() entities.SensorSnapshot {
	now := d.clock()
	d.mu.RLock()
	defer d.mu.RUnlock()

	snap := entities.SensorSnapshot{
		Temperature: d.fresh(MetricTemperature, now),
		Humidity:    d.fresh(MetricHumidity, now),
		VPD:         d.fresh(MetricVPD, now),
		Timestamp:   now,
	}
	if snap.VPD == nil && snap.Temperature != nil && snap.Humidity != nil {
		snap.VPD = entities.Known(VPD(*snap.Temperature, *snap.Humidity))
	}
	return snap
}

func (d *SnapshotAggregator) fresh(metric string, now time.Time) *float64 {
	r, ok := d.latest[metric]
	if !ok || now.Sub(r.at) > d.staleAfter {
		return nil
	}
	return entities.Known(r.value)
}

// ActuatorStates returns the last reported state of every actuator. Devices publish on change
// (retained), so a state holds until a newer one replaces it and the reading TTL does not apply.
func (d *SnapshotAggregator) ActuatorStates() entities.ActuatorStates {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(entities.ActuatorStates, len(d.actuators))
	for dev, st := range d.actuators {
		out[dev] = st
	}
	return out
}

// ReadActuatorState serves the executor's idempotence check from the bus state.
func (d *SnapshotAggregator) ReadActuatorState(_ context.Context, device entities.Device) (entities.ActuatorState, error) {
	st, ok := d.ActuatorStates()[device]
	if !ok {
		return entities.ActuatorState{Device: device}, fmt.Errorf("%w: %s", ErrUnknownState, device)
	}
	return st, nil
}

// Ready reports whether every metric needed for a snapshot is fresh.
func (d *SnapshotAggregator) Ready() error {
	s := d.Snapshot()
	var missing []string
	if s.Temperature == nil {
		missing = append(missing, MetricTemperature)
	}
	if s.Humidity == nil {
		missing = append(missing, MetricHumidity)
	}
	if len(missing) > 0 {
		return fmt.Errorf("no fresh readings for %s", strings.Join(missing, ", "))
	}
	return nil
}

func (d *SnapshotAggregator) aggregateAndPublish() {
	now := d.clock()
	d.mu.Lock()
	for metric, values := range d.buffer {
		if len(values) == 0 {
			continue
		}
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		r := d.latest[metric]
		r.value = sum / float64(len(values))
		d.latest[metric] = r
		d.buffer[metric] = values[:0]
	}
	d.mu.Unlock()

	snap := d.Snapshot()
	d.lg.Debug("aggregated",
		zap.Any("temperature", snap.Temperature),
		zap.Any("humidity", snap.Humidity),
		zap.Any("vpd", snap.VPD),
		zap.Time("at", now))
	if d.publisher == nil {
		return
	}
	if err := d.publisher.PublishMessage(snap); err != nil {
		d.lg.Warn("publish snapshot failed", zap.Error(err))
	}
}

// VPD is the air vapour pressure deficit in kPa for a temperature in °F and a relative
// humidity in %, using the Tetens saturation pressure.
func VPD(tempF, rh float64) float64 {
	c := (tempF - 32) * 5 / 9
	svp := 0.6108 * math.Exp(17.27*c/(c+237.3))
	rh = math.Max(0, math.Min(100, rh))
	return svp * (1 - rh/100)
}
