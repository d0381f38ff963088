package climate_controller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/LeonardoBeccarini/climate_controller/internal/model/messages"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TriggerTimer  = "timer"
	TriggerManual = "manual"
)

var (
	ErrCycleInProgress    = errors.New("control cycle already in progress")
	ErrControllerDisabled = errors.New("controller disabled")
)

// SnapshotSource supplies the latest sensor snapshot and actuator states.
type SnapshotSource interface {
	Snapshot() entities.SensorSnapshot
	ActuatorStates() entities.ActuatorStates
}

// PolicySource supplies the room stage schedule; it may change between cycles.
type PolicySource interface {
	Policy() entities.ClimatePolicy
}

// PolicyFunc adapts a function to PolicySource.
type PolicyFunc func() entities.ClimatePolicy

func (f PolicyFunc) Policy() entities.ClimatePolicy { return f() }

// Reporter receives the report of every completed cycle.
type Reporter interface {
	Report(ctx context.Context, evt messages.CycleReportEvent) error
}

type Controller struct {
	source    SnapshotSource
	policies  PolicySource
	executor  *Executor
	reporter  Reporter
	ownership OwnershipMap
	interval  time.Duration

	running atomic.Bool
	enabled atomic.Bool

	metrics *Metrics
	clock   func() time.Time
	lg      *zap.Logger
}

func NewController(src SnapshotSource, policies PolicySource, exec *Executor, rep Reporter,
	own OwnershipMap, interval time.Duration, m *Metrics, lg *zap.Logger) (*Controller, error) {
	if src == nil {
		return nil, errors.New("snapshot source is nil")
	}
	if policies == nil {
		return nil, errors.New("policy source is nil")
	}
	if exec == nil {
		return nil, errors.New("executor is nil")
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	if own == nil {
		own = DefaultOwnership()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	c := &Controller{
		source:    src,
		policies:  policies,
		executor:  exec,
		reporter:  rep,
		ownership: own,
		interval:  interval,
		metrics:   m,
		clock:     exec.now,
		lg:        lg.Named("controller"),
	}
	c.enabled.Store(true)
	exec.Enabled = c.Enabled
	if exec.Metrics == nil {
		exec.Metrics = m
	}
	return c, nil
}

func (c *Controller) Enabled() bool { return c.enabled.Load() }

// SetEnabled takes effect before the next action of a running cycle.
func (c *Controller) SetEnabled(v bool) {
	if c.enabled.Swap(v) != v {
		c.lg.Info("controller toggled", zap.Bool("enabled", v))
	}
}

// Running reports whether a cycle is executing.
func (c *Controller) Running() bool { return c.running.Load() }

// Executor returns the executor used for the controller-owned actions.
func (c *Controller) Executor() *Executor { return c.executor }

// Start runs a cycle immediately and then on every tick until ctx is done.
func (c *Controller) Start(ctx context.Context) {
	c.lg.Info("control loop started", zap.Duration("interval", c.interval))
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		if _, err := c.RunCycle(ctx, TriggerTimer); err != nil {
			c.lg.Debug("timer cycle not run", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			c.lg.Info("control loop stopped")
			return
		case <-t.C:
		}
	}
}

// Trigger is the manual path; it shares the guard with the timer.
func (c *Controller) Trigger(ctx context.Context) (messages.CycleReportEvent, error) {
	return c.RunCycle(ctx, TriggerManual)
}

// RunCycle runs analyze, plan and execute once. An overlapping call returns
// ErrCycleInProgress immediately without queuing.
func (c *Controller) RunCycle(ctx context.Context, trigger string) (messages.CycleReportEvent, error) {
	if !c.running.CompareAndSwap(false, true) {
		c.metrics.cycle(trigger, "busy")
		return messages.CycleReportEvent{}, ErrCycleInProgress
	}
	defer c.running.Store(false)

	if !c.Enabled() {
		c.metrics.cycle(trigger, "disabled")
		return messages.CycleReportEvent{}, ErrControllerDisabled
	}

	started := c.clock()
	pol := c.policies.Policy()
	snap, problems, plan, err := c.prepare(pol)
	if err != nil {
		c.metrics.cycle(trigger, "error")
		c.lg.Error("cycle aborted", zap.String("trigger", trigger), zap.Error(err))
		return messages.CycleReportEvent{}, err
	}

	results := c.executor.Execute(ctx, plan.Actions)

	evt := messages.CycleReportEvent{
		CycleID:         uuid.NewString(),
		Room:            pol.Room,
		Stage:           pol.Stage,
		Trigger:         trigger,
		Snapshot:        snap,
		Problems:        problems,
		Actions:         plan.Actions,
		Recommendations: plan.Recommendations,
		Results:         results,
		Aborted:         len(results) < len(plan.Actions),
		StartedAt:       started,
		Timestamp:       c.clock(),
	}

	outcome := "ok"
	if evt.Aborted {
		outcome = "aborted"
	}
	c.metrics.cycle(trigger, outcome)
	c.metrics.observeCycle(evt.Timestamp.Sub(started))
	sev := make(map[string]int, len(problems))
	for _, p := range problems {
		sev[string(p.Type)] = p.Severity
	}
	c.metrics.setProblems(sev)

	executed, failed, skipped := evt.Counts()
	c.lg.Info("cycle done",
		zap.String("cycle_id", evt.CycleID),
		zap.String("trigger", trigger),
		zap.String("stage", string(pol.Stage)),
		zap.Int("problems", len(problems)),
		zap.Int("actions", len(plan.Actions)),
		zap.Int("recommendations", len(plan.Recommendations)),
		zap.Int("executed", executed),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
		zap.Bool("aborted", evt.Aborted))

	if c.reporter != nil {
		if err := c.reporter.Report(ctx, evt); err != nil {
			c.lg.Warn("report failed", zap.String("cycle_id", evt.CycleID), zap.Error(err))
		}
	}
	return evt, nil
}

// Preview analyzes and plans against the current snapshot without dispatching anything.
func (c *Controller) Preview() (entities.SensorSnapshot, []entities.Problem, Plan, error) {
	return c.prepare(c.policies.Policy())
}

func (c *Controller) prepare(pol entities.ClimatePolicy) (entities.SensorSnapshot, []entities.Problem, Plan, error) {
	target, err := pol.Current()
	if err != nil {
		return entities.SensorSnapshot{}, nil, Plan{}, fmt.Errorf("room %s: %w", pol.Room, err)
	}
	snap := c.source.Snapshot()
	states := c.source.ActuatorStates()
	problems := Analyze(snap, target)
	return snap, problems, BuildPlan(problems, snap, target, states, c.ownership), nil
}
