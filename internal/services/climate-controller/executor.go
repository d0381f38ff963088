package climate_controller

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/LeonardoBeccarini/climate_controller/internal/model/messages"
	"github.com/LeonardoBeccarini/climate_controller/pkg/actuator"
	"github.com/LeonardoBeccarini/climate_controller/pkg/cooldown"
	"go.uber.org/zap"
)

const (
	errCooldownActive = "cooldown active"
	codeCooldownStore = "cooldown_store"
	codeUnroutable    = "unroutable"
	setpointTolerance = 0.05
)

// StateReader reads the live state of one actuator.
type StateReader interface {
	ReadActuatorState(ctx context.Context, device entities.Device) (entities.ActuatorState, error)
}

// Executor dispatches plan actions one at a time through the actuator invoker,
// honouring cooldowns and skipping actions whose target state already holds.
type Executor struct {
	invoker   actuator.Invoker
	states    StateReader
	store     cooldown.Store
	policy    cooldown.Policy
	entities  actuator.Entities
	rateLimit actuator.RateLimitSignature

	// Enabled is checked before each action; a false stops the remaining ones.
	Enabled func() bool
	Clock   func() time.Time
	Metrics *Metrics

	lg *zap.Logger
}

func NewExecutor(inv actuator.Invoker, states StateReader, store cooldown.Store, policy cooldown.Policy,
	ents actuator.Entities, lg *zap.Logger) *Executor {
	if store == nil {
		store = cooldown.NewMemoryStore()
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Executor{
		invoker:   inv,
		states:    states,
		store:     store,
		policy:    policy,
		entities:  ents,
		rateLimit: actuator.DefaultRateLimitSignature(),
		Clock:     time.Now,
		lg:        lg.Named("executor"),
	}
}

// WithRateLimitSignature overrides the vendor rate-limit detection.
func (e *Executor) WithRateLimitSignature(sig actuator.RateLimitSignature) *Executor {
	e.rateLimit = sig
	return e
}

// Store exposes the cooldown store for inspection.
func (e *Executor) Store() cooldown.Store { return e.store }

// Execute runs actions sequentially in ascending priority order. It returns one result per
// attempted action; fewer results than actions means the executor was disabled or ctx
// was cancelled mid-plan. A failure never stops the remaining actions.
func (e *Executor) Execute(ctx context.Context, actions []entities.Action) []messages.ExecutionResult {
	ordered := make([]entities.Action, len(actions))
	copy(ordered, actions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	results := make([]messages.ExecutionResult, 0, len(ordered))
	for _, a := range ordered {
		if e.Enabled != nil && !e.Enabled() {
			e.lg.Info("disabled, stopping plan", zap.Int("remaining", len(ordered)-len(results)))
			break
		}
		if ctx.Err() != nil {
			e.lg.Info("context done, stopping plan", zap.Error(ctx.Err()))
			break
		}
		results = append(results, e.executeOne(ctx, a))
	}
	return results
}

func (e *Executor) executeOne(ctx context.Context, a entities.Action) messages.ExecutionResult {
	lg := e.lg.With(zap.String("action", a.String()))
	key := cooldown.KeyFor(a)
	keys := []string{key}
	if cooldown.IsIntensity(a) {
		keys = append(keys, cooldown.IntensityKey)
	}

	// 1. cooldown
	now := e.now()
	for _, k := range keys {
		active, remaining, err := cooldown.Active(ctx, e.store, k, now)
		if err != nil {
			lg.Warn("cooldown lookup failed", zap.String("key", k), zap.Error(err))
			e.Metrics.action(string(a.Device), OutcomeSkippedCooldown)
			return messages.ExecutionResult{Action: a, Skipped: true, Error: err.Error(), ErrorCode: codeCooldownStore}
		}
		if active {
			lg.Debug("skip: cooldown", zap.String("key", k), zap.Duration("remaining", remaining))
			e.Metrics.action(string(a.Device), OutcomeSkippedCooldown)
			return messages.ExecutionResult{Action: a, Skipped: true, Error: errCooldownActive}
		}
	}

	// 2. idempotence
	if e.states != nil {
		st, err := e.states.ReadActuatorState(ctx, a.Device)
		if err != nil {
			lg.Debug("state unknown, dispatching", zap.Error(err))
		} else if Satisfied(a, st) {
			lg.Debug("skip: already in target state", zap.String("mode", st.Mode), zap.Float64("power", st.CurrentPower))
			e.Metrics.action(string(a.Device), OutcomeSkippedNoop)
			return messages.ExecutionResult{Action: a, Success: true, Skipped: true}
		}
	}

	// 3. dispatch
	cmd, err := actuator.Route(a, e.entities)
	if err != nil {
		lg.Warn("no route", zap.Error(err))
		e.Metrics.action(string(a.Device), OutcomeFailed)
		return messages.ExecutionResult{Action: a, Error: err.Error(), ErrorCode: codeUnroutable}
	}
	out := actuator.Dispatch(ctx, e.invoker, cmd.Domain, cmd.Service, cmd.Params)
	at := e.now()

	// 4./5. cooldown bookkeeping
	switch {
	case out.Success:
		e.record(ctx, lg, key, at, e.policy.BaseFor(a.Device))
		if cooldown.IsIntensity(a) {
			e.record(ctx, lg, cooldown.IntensityKey, at, e.policy.IntensityWindow())
		}
		lg.Info("executed", zap.String("domain", cmd.Domain), zap.String("service", cmd.Service))
		e.Metrics.action(string(a.Device), OutcomeExecuted)
	case e.rateLimit.Match(out):
		ext := e.policy.ExtendedWindow()
		for _, k := range keys {
			if _, err := e.store.Extend(ctx, k, at, ext); err != nil {
				lg.Warn("cooldown extend failed", zap.String("key", k), zap.Error(err))
			}
		}
		lg.Warn("rate limited, cooldown extended", zap.Duration("window", ext), zap.String("error", out.Error))
		e.Metrics.action(string(a.Device), OutcomeRateLimited)
	default:
		e.record(ctx, lg, key, at, e.policy.BaseFor(a.Device))
		lg.Warn("dispatch failed", zap.String("error", out.Error), zap.String("code", out.ErrorCode))
		e.Metrics.action(string(a.Device), OutcomeFailed)
	}

	return messages.ExecutionResult{Action: a, Success: out.Success, Error: out.Error, ErrorCode: out.ErrorCode}
}

func (e *Executor) record(ctx context.Context, lg *zap.Logger, key string, at time.Time, d time.Duration) {
	if _, err := e.store.Record(ctx, key, at, d); err != nil {
		lg.Warn("cooldown record failed", zap.String("key", key), zap.Error(err))
	}
}

func (e *Executor) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock()
}

// Satisfied reports whether st already is the state action a asks for.
func Satisfied(a entities.Action, st entities.ActuatorState) bool {
	near := func(x, y float64) bool { return math.Abs(x-y) < setpointTolerance }
	switch a.Verb {
	case entities.VerbSetIntensity:
		return a.Params.TargetIntensity != nil && st.IsOn() && near(st.CurrentPower, *a.Params.TargetIntensity)
	case entities.VerbSetPower:
		return a.Params.ToPower != nil && st.Mode != "" && near(st.CurrentPower, *a.Params.ToPower)
	case entities.VerbSetTemperature:
		return a.Params.ToTemp != nil && st.Setpoint != nil && near(*st.Setpoint, *a.Params.ToTemp)
	case entities.VerbTurnOff:
		return st.Mode == entities.ModeOff
	case entities.VerbTurnOn:
		return st.IsOn()
	}
	return false
}
