package device

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/LeonardoBeccarini/climate_controller/internal/model/messages"
	"github.com/LeonardoBeccarini/climate_controller/pkg/actuator"
	"github.com/LeonardoBeccarini/climate_controller/pkg/rabbitmq"
	"go.uber.org/zap"
)

const DefaultStateTopic = "actuator/state/{device}"

var (
	ErrUnknownEntity  = errors.New("unknown entity")
	ErrUnknownService = errors.New("unknown service")
	ErrRateLimited    = errors.New("rate limit exceeded, try again later")
	ErrBadParams      = errors.New("invalid service data")
)

// EntityState is the provider view of one entity, as served on GET /api/states/{entity}.
type EntityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastUpdated time.Time      `json:"last_updated"`
}

// DeviceService simulates the provider bridge: it owns the entity states of one grow room,
// applies service calls to them and announces every change on actuator/state/{device}.
type DeviceService struct {
	mu        sync.Mutex
	ents      actuator.Entities
	states    map[string]*EntityState
	lastSlow  time.Time
	rateLimit time.Duration

	publisher rabbitmq.IPublisher
	topicTmpl string

	Clock func() time.Time
	lg    *zap.Logger
}

// NewDeviceService starts with every device off. rateLimit is the minimum spacing between two
// humidifier intensity changes; zero disables the limit. publisher may be nil.
func NewDeviceService(ents actuator.Entities, rateLimit time.Duration, publisher rabbitmq.IPublisher,
	topicTmpl string, lg *zap.Logger) *DeviceService {
	if lg == nil {
		lg = zap.NewNop()
	}
	if strings.TrimSpace(topicTmpl) == "" {
		topicTmpl = DefaultStateTopic
	}
	d := &DeviceService{
		ents:      ents,
		states:    make(map[string]*EntityState),
		rateLimit: rateLimit,
		publisher: publisher,
		topicTmpl: topicTmpl,
		Clock:     time.Now,
		lg:        lg.Named("device"),
	}
	for _, id := range []string{ents.Humidifier, ents.Heater} {
		d.states[id] = &EntityState{EntityID: id, State: entities.ModeOff, Attributes: map[string]any{}}
	}
	for _, id := range []string{ents.HumidifierIntensity, ents.ExhaustFan, ents.Light} {
		d.states[id] = &EntityState{EntityID: id, State: "0", Attributes: map[string]any{}}
	}
	d.states[ents.Heater].Attributes["temperature"] = 70.0
	return d
}

// State returns a copy of the entity state.
func (d *DeviceService) State(entity string) (EntityState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.states[entity]
	if !ok {
		return EntityState{}, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	cp := *st
	cp.Attributes = make(map[string]any, len(st.Attributes))
	for k, v := range st.Attributes {
		cp.Attributes[k] = v
	}
	return cp, nil
}

// Call applies one service call, e.g. ("number", "set_value", {"entity_id": ..., "value": 4}).
func (d *DeviceService) Call(domain, service string, data map[string]any) (EntityState, error) {
	entity, _ := data["entity_id"].(string)
	d.mu.Lock()
	st, ok := d.states[entity]
	if !ok || actuator.DomainOf(entity, "") != domain {
		d.mu.Unlock()
		return EntityState{}, fmt.Errorf("%w: %s.%s on %q", ErrUnknownEntity, domain, service, entity)
	}
	now := d.Clock()

	switch service {
	case "turn_on", "turn_off":
		if domain != "humidifier" && domain != "climate" {
			d.mu.Unlock()
			return EntityState{}, fmt.Errorf("%w: %s.%s", ErrUnknownService, domain, service)
		}
		st.State = entities.ModeOff
		if service == "turn_on" {
			st.State = entities.ModeOn
			if domain == "climate" {
				st.State = "heat"
			}
		}
	case "set_value":
		v, ok := data["value"].(float64)
		if !ok || v < 0 || v > entities.MaxPower {
			d.mu.Unlock()
			return EntityState{}, fmt.Errorf("%w: value %v", ErrBadParams, data["value"])
		}
		st.State = strconv.FormatFloat(v, 'f', -1, 64)
	case "select_option":
		opt, _ := data["option"].(string)
		n, err := strconv.Atoi(opt)
		if err != nil || n < 0 || n > int(entities.MaxPower) {
			d.mu.Unlock()
			return EntityState{}, fmt.Errorf("%w: option %q", ErrBadParams, opt)
		}
		if d.rateLimit > 0 && !d.lastSlow.IsZero() && now.Sub(d.lastSlow) < d.rateLimit {
			d.mu.Unlock()
			return EntityState{}, ErrRateLimited
		}
		d.lastSlow = now
		st.State = opt
	case "set_temperature":
		v, ok := data["temperature"].(float64)
		if !ok || domain != "climate" {
			d.mu.Unlock()
			return EntityState{}, fmt.Errorf("%w: temperature %v", ErrBadParams, data["temperature"])
		}
		st.Attributes["temperature"] = v
		if st.State == entities.ModeOff {
			st.State = "heat"
		}
	default:
		d.mu.Unlock()
		return EntityState{}, fmt.Errorf("%w: %s.%s", ErrUnknownService, domain, service)
	}
	st.LastUpdated = now
	dev, change := d.deviceChangeLocked(entity, now)
	d.mu.Unlock()

	d.lg.Info("service call", zap.String("service", domain+"."+service), zap.String("entity", entity))
	d.publish(dev, change)
	return d.State(entity)
}

// deviceChangeLocked folds the entities of a device into one state message.
func (d *DeviceService) deviceChangeLocked(entity string, now time.Time) (entities.Device, messages.ActuatorStateChanged) {
	power := func(id string) float64 {
		f, _ := strconv.ParseFloat(d.states[id].State, 64)
		return f
	}
	var dev entities.Device
	msg := messages.ActuatorStateChanged{Timestamp: now}
	switch entity {
	case d.ents.Humidifier, d.ents.HumidifierIntensity:
		dev = entities.DeviceHumidifier
		msg.Mode = d.states[d.ents.Humidifier].State
		msg.CurrentPower = power(d.ents.HumidifierIntensity)
	case d.ents.ExhaustFan, d.ents.Light:
		dev = entities.DeviceExhaustFan
		if entity == d.ents.Light {
			dev = entities.DeviceLight
		}
		msg.CurrentPower = power(entity)
		msg.Mode = entities.ModeOff
		if msg.CurrentPower > 0 {
			msg.Mode = entities.ModeOn
		}
	case d.ents.Heater:
		dev = entities.DeviceHeater
		st := d.states[entity]
		msg.Mode = st.State
		if v, ok := st.Attributes["temperature"].(float64); ok {
			msg.Setpoint = &v
		}
	}
	msg.Device = dev
	return dev, msg
}

func (d *DeviceService) publish(dev entities.Device, msg messages.ActuatorStateChanged) {
	if d.publisher == nil || dev == "" {
		return
	}
	topic := rabbitmq.FormatTopic(d.topicTmpl, "{device}", string(dev))
	if err := d.publisher.PublishTo(topic, 1, true, msg); err != nil {
		d.lg.Warn("publish state", zap.String("topic", topic), zap.Error(err))
	}
}

// PublishAll announces every device state, e.g. at startup so the aggregator starts warm.
func (d *DeviceService) PublishAll() {
	d.mu.Lock()
	now := d.Clock()
	msgs := make(map[entities.Device]messages.ActuatorStateChanged, 4)
	for _, id := range []string{d.ents.Humidifier, d.ents.ExhaustFan, d.ents.Heater, d.ents.Light} {
		dev, m := d.deviceChangeLocked(id, now)
		msgs[dev] = m
	}
	d.mu.Unlock()
	for _, dev := range entities.Devices {
		d.publish(dev, msgs[dev])
	}
}
