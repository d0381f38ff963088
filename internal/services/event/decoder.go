package event

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/messages"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	TypeControlCycle     = "climate.control_cycle"
	TypeAutonomousAction = "guardrail.autonomous_action"
	TypeActuatorState    = "actuator.state_change"

	cyclePrefix      = "event/controlCycle/"
	autonomousPrefix = "event/autonomousAction/"
	actuatorPrefix   = "actuator/state/"
)

type CommonEvent struct {
	EventType     string // climate.control_cycle | guardrail.autonomous_action | actuator.state_change
	SourceService string
	Room          string
	Subject       string // stage, entity or device depending on the type
	Severity      string // info|warning|error
	Fields        map[string]interface{}
	Timestamp     time.Time
}

// MQTTHandler turns bus messages into CommonEvents and hands them to sink.
type MQTTHandler struct{ sink func(CommonEvent) }

func NewMQTTHandler(sink func(CommonEvent)) *MQTTHandler { return &MQTTHandler{sink: sink} }

func (h *MQTTHandler) Handle(_ string, m mqtt.Message) error {
	evt, ok, err := Decode(m.Topic(), m.Payload())
	if err != nil || !ok {
		return err
	}
	if h.sink != nil {
		h.sink(evt)
	}
	return nil
}

// Decode maps a payload by topic; ok is false for topics that carry no event.
func Decode(topic string, payload []byte) (CommonEvent, bool, error) {
	switch {
	case strings.HasPrefix(topic, cyclePrefix):
		var r messages.CycleReportEvent
		if err := json.Unmarshal(payload, &r); err != nil {
			return CommonEvent{}, false, err
		}
		if r.CycleID == "" {
			return CommonEvent{}, false, errors.New("control cycle: missing cycle id")
		}
		return FromCycleReport(r), true, nil
	case strings.HasPrefix(topic, autonomousPrefix):
		var a messages.AutonomousActionEvent
		if err := json.Unmarshal(payload, &a); err != nil {
			return CommonEvent{}, false, err
		}
		return FromAutonomousAction(a), true, nil
	case strings.HasPrefix(topic, actuatorPrefix):
		var s messages.ActuatorStateChanged
		if err := json.Unmarshal(payload, &s); err != nil {
			return CommonEvent{}, false, err
		}
		dev := string(s.Device)
		if dev == "" {
			dev = strings.TrimPrefix(topic, actuatorPrefix)
		}
		fields := map[string]interface{}{"mode": s.Mode, "current_power": s.CurrentPower}
		if s.Setpoint != nil {
			fields["setpoint"] = *s.Setpoint
		}
		return CommonEvent{
			EventType:     TypeActuatorState,
			SourceService: "provider-bridge",
			Subject:       dev,
			Severity:      "info",
			Fields:        fields,
			Timestamp:     s.Timestamp,
		}, true, nil
	}
	return CommonEvent{}, false, nil
}

func FromCycleReport(r messages.CycleReportEvent) CommonEvent {
	executed, failed, skipped := r.Counts()
	maxSev := 0
	for _, p := range r.Problems {
		if p.Severity > maxSev {
			maxSev = p.Severity
		}
	}
	sev := "info"
	switch {
	case failed > 0 || r.Aborted:
		sev = "warning"
	case maxSev >= 75:
		sev = "warning"
	}
	fields := map[string]interface{}{
		"cycle_id":        r.CycleID,
		"trigger":         r.Trigger,
		"problems":        int64(len(r.Problems)),
		"max_severity":    int64(maxSev),
		"actions":         int64(len(r.Actions)),
		"recommendations": int64(len(r.Recommendations)),
		"executed":        int64(executed),
		"failed":          int64(failed),
		"skipped":         int64(skipped),
		"aborted":         r.Aborted,
	}
	if v := r.Snapshot.Temperature; v != nil {
		fields["temperature"] = *v
	}
	if v := r.Snapshot.Humidity; v != nil {
		fields["humidity"] = *v
	}
	if v := r.Snapshot.VPD; v != nil {
		fields["vpd"] = *v
	}
	return CommonEvent{
		EventType:     TypeControlCycle,
		SourceService: "climate-controller",
		Room:          r.Room,
		Subject:       string(r.Stage),
		Severity:      sev,
		Fields:        fields,
		Timestamp:     r.Timestamp,
	}
}

func FromAutonomousAction(a messages.AutonomousActionEvent) CommonEvent {
	sev := "info"
	if !a.Accepted {
		sev = "warning"
	} else if !a.Executed {
		sev = "error"
	}
	return CommonEvent{
		EventType:     TypeAutonomousAction,
		SourceService: "guardrail",
		Subject:       a.Request.Entity,
		Severity:      sev,
		Fields: map[string]interface{}{
			"request_id":    a.RequestID,
			"current_value": a.Request.CurrentValue,
			"new_value":     a.Request.NewValue,
			"accepted":      a.Accepted,
			"executed":      a.Executed,
			"reason":        a.Reason,
		},
		Timestamp: a.Timestamp,
	}
}
