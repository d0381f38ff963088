package guardrail

import (
	"context"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/LeonardoBeccarini/climate_controller/internal/model/messages"
	"github.com/LeonardoBeccarini/climate_controller/pkg/actuator"
	"github.com/LeonardoBeccarini/climate_controller/pkg/rabbitmq"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const DefaultEventTopic = "event/autonomousAction/{entity}"

// LimitsSource supplies the current hard-limit table.
type LimitsSource interface {
	HardLimits() entities.HardLimits
}

// StaticLimits is a fixed table.
type StaticLimits entities.HardLimits

func (l StaticLimits) HardLimits() entities.HardLimits { return entities.HardLimits(l) }

// Outcome is what happened to one proposed change.
type Outcome struct {
	RequestID string            `json:"request_id"`
	Decision  entities.Decision `json:"decision"`
	Executed  bool              `json:"executed"`
	Reason    string            `json:"reason"`
	ErrorCode string            `json:"error_code,omitempty"`
}

type Service struct {
	limits    LimitsSource
	invoker   actuator.Invoker
	publisher rabbitmq.IPublisher
	topicTmpl string

	decisions *prometheus.CounterVec
	dispatch  *prometheus.CounterVec

	Clock func() time.Time
	lg    *zap.Logger
}

// NewService wires the validator to the dispatch primitive. publisher may be nil.
func NewService(limits LimitsSource, inv actuator.Invoker, pub rabbitmq.IPublisher, topicTmpl string,
	reg prometheus.Registerer, lg *zap.Logger) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	if strings.TrimSpace(topicTmpl) == "" {
		topicTmpl = DefaultEventTopic
	}
	s := &Service{
		limits:    limits,
		invoker:   inv,
		publisher: pub,
		topicTmpl: topicTmpl,
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guardrail_decisions_total",
			Help: "Proposed changes by validation result.",
		}, []string{"result"}),
		dispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guardrail_dispatch_total",
			Help: "Dispatches of accepted changes by result.",
		}, []string{"result"}),
		Clock: time.Now,
		lg:    lg.Named("guardrail"),
	}
	if reg != nil {
		reg.MustRegister(s.decisions, s.dispatch)
	}
	return s
}

// Apply validates req and, when accepted, dispatches it. It never returns an error:
// rejections and dispatch failures are both reported in the Outcome.
func (s *Service) Apply(ctx context.Context, req entities.AutonomousActionRequest) Outcome {
	var limits entities.HardLimits
	if s.limits != nil {
		limits = s.limits.HardLimits()
	}
	d := Validate(req, limits)
	out := Outcome{RequestID: uuid.NewString(), Decision: d, Reason: d.Reason}
	lg := s.lg.With(zap.String("request_id", out.RequestID), zap.String("entity", req.Entity),
		zap.Float64("current", req.CurrentValue), zap.Float64("new", req.NewValue))

	if !d.Accepted {
		s.decisions.WithLabelValues("rejected").Inc()
		lg.Info("rejected", zap.String("reason", d.Reason))
		s.publish(out, req)
		return out
	}
	s.decisions.WithLabelValues("accepted").Inc()

	cmd := commandFor(req.Entity, req.NewValue)
	o := actuator.Dispatch(ctx, s.invoker, cmd.Domain, cmd.Service, cmd.Params)
	out.Executed = o.Success
	if o.Success {
		s.dispatch.WithLabelValues("success").Inc()
		lg.Info("applied", zap.String("proposal_reason", req.Reason))
	} else {
		s.dispatch.WithLabelValues("failure").Inc()
		out.Reason = "dispatch failed: " + o.Error
		out.ErrorCode = o.ErrorCode
		lg.Warn("dispatch failed", zap.String("error", o.Error), zap.String("code", o.ErrorCode))
	}
	s.publish(out, req)
	return out
}

// commandFor maps "<domain>.<name>" to a provider call; climate entities take a
// temperature, everything else a numeric value.
func commandFor(entity string, v float64) actuator.Command {
	if actuator.DomainOf(entity, "") == "climate" {
		return actuator.Command{
			Domain:  "climate",
			Service: "set_temperature",
			Params:  map[string]any{"entity_id": entity, "temperature": v},
		}
	}
	return actuator.SetValue(entity, v)
}

func (s *Service) publish(out Outcome, req entities.AutonomousActionRequest) {
	if s.publisher == nil {
		return
	}
	evt := messages.AutonomousActionEvent{
		RequestID: out.RequestID,
		Request:   req,
		Accepted:  out.Decision.Accepted,
		Executed:  out.Executed,
		Reason:    out.Reason,
		ErrorCode: out.ErrorCode,
		Timestamp: s.Clock().UTC(),
	}
	topic := rabbitmq.FormatTopic(s.topicTmpl, "{entity}", req.Entity)
	if err := s.publisher.PublishTo(topic, 1, false, evt); err != nil {
		s.lg.Warn("publish event failed", zap.String("topic", topic), zap.Error(err))
	}
}
