package climate_controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/LeonardoBeccarini/climate_controller/pkg/actuator"
	"github.com/LeonardoBeccarini/climate_controller/pkg/cooldown"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeInvoker struct {
	mu       sync.Mutex
	calls    []string
	respond  func(domain, command string) (actuator.Response, error)
	onInvoke func()
}

func (f *fakeInvoker) Invoke(_ context.Context, domain, command string, _ map[string]any) (actuator.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, domain+"."+command)
	f.mu.Unlock()
	if f.onInvoke != nil {
		f.onInvoke()
	}
	if f.respond != nil {
		return f.respond(domain, command)
	}
	return actuator.Response{Success: true}, nil
}

func (f *fakeInvoker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeStates struct {
	states entities.ActuatorStates
	err    error
}

func (f fakeStates) ReadActuatorState(_ context.Context, d entities.Device) (entities.ActuatorState, error) {
	if f.err != nil {
		return entities.ActuatorState{}, f.err
	}
	st, ok := f.states[d]
	if !ok {
		return entities.ActuatorState{}, errors.New("no state")
	}
	return st, nil
}

func newTestExecutor(inv actuator.Invoker, st StateReader) (*Executor, *cooldown.MemoryStore, *fakeClock) {
	store := cooldown.NewMemoryStore()
	clk := &fakeClock{now: t0}
	e := NewExecutor(inv, st, store, cooldown.DefaultPolicy(), actuator.DefaultEntities(), nil)
	e.Clock = clk.Now
	return e, store, clk
}

func heaterTo(v float64) entities.Action {
	return entities.Action{Device: entities.DeviceHeater, Verb: entities.VerbSetTemperature,
		Params: entities.ActionParams{ToTemp: entities.Known(v)}, Priority: 1, Ownership: entities.ControllerOwned}
}

func humidifierMax() entities.Action {
	return entities.Action{Device: entities.DeviceHumidifier, Verb: entities.VerbSetIntensity,
		Params: entities.ActionParams{TargetIntensity: entities.Known(10)}, Priority: 1, Ownership: entities.ControllerOwned}
}

func fanTo(v float64, prio int) entities.Action {
	return entities.Action{Device: entities.DeviceExhaustFan, Verb: entities.VerbSetPower,
		Params: entities.ActionParams{ToPower: entities.Known(v)}, Priority: prio, Ownership: entities.ControllerOwned}
}

func TestExecuteCooldownSkipsSecondCall(t *testing.T) {
	inv := &fakeInvoker{}
	e, _, clk := newTestExecutor(inv, nil)
	ctx := context.Background()

	res := e.Execute(ctx, []entities.Action{heaterTo(76)})
	require.Len(t, res, 1)
	assert.True(t, res[0].Success)
	assert.False(t, res[0].Skipped)

	clk.Advance(10 * time.Second)
	res = e.Execute(ctx, []entities.Action{heaterTo(75)})
	require.Len(t, res, 1)
	assert.False(t, res[0].Success)
	assert.True(t, res[0].Skipped)
	assert.Equal(t, "cooldown active", res[0].Error)
	assert.Equal(t, 1, inv.count())

	clk.Advance(20 * time.Second) // heater base window is 30s
	res = e.Execute(ctx, []entities.Action{heaterTo(75)})
	assert.True(t, res[0].Success)
	assert.Equal(t, 2, inv.count())
}

func TestExecuteRateLimitExtendsCooldown(t *testing.T) {
	inv := &fakeInvoker{respond: func(string, string) (actuator.Response, error) {
		return actuator.Response{Success: false, Data: map[string]any{"message": `{"code":429,"msg":"Too Many Requests"}`}}, nil
	}}
	e, store, clk := newTestExecutor(inv, nil)
	ctx := context.Background()

	res := e.Execute(ctx, []entities.Action{humidifierMax()})
	require.Len(t, res, 1)
	assert.False(t, res[0].Success)
	assert.False(t, res[0].Skipped)

	for _, k := range []string{"humidifier:set_intensity", cooldown.IntensityKey} {
		entry, ok, err := store.Get(ctx, k)
		require.NoError(t, err)
		require.True(t, ok, k)
		assert.True(t, entry.Extended, k)
		assert.GreaterOrEqual(t, entry.Duration(), 30*time.Minute, k)
	}

	// past both the 120s base and the 5m intensity window, still cooling down
	clk.Advance(6 * time.Minute)
	inv.respond = nil
	res = e.Execute(ctx, []entities.Action{humidifierMax()})
	assert.True(t, res[0].Skipped)
	assert.Equal(t, 1, inv.count())

	clk.Advance(25 * time.Minute)
	res = e.Execute(ctx, []entities.Action{humidifierMax()})
	assert.True(t, res[0].Success)
	assert.False(t, res[0].Skipped)
	assert.Equal(t, 2, inv.count())
}

func TestExecuteIntensitySuccessRecordsSharedKey(t *testing.T) {
	e, store, _ := newTestExecutor(&fakeInvoker{}, nil)
	ctx := context.Background()
	e.Execute(ctx, []entities.Action{humidifierMax()})

	base, ok, _ := store.Get(ctx, "humidifier:set_intensity")
	require.True(t, ok)
	assert.Equal(t, 120*time.Second, base.Duration())
	shared, ok, _ := store.Get(ctx, cooldown.IntensityKey)
	require.True(t, ok)
	assert.Equal(t, 5*time.Minute, shared.Duration())
	assert.False(t, shared.Extended)
}

func TestExecuteSharedIntensityKeyBlocks(t *testing.T) {
	inv := &fakeInvoker{}
	e, store, _ := newTestExecutor(inv, nil)
	store.Seed(cooldown.Entry{Key: cooldown.IntensityKey, LastInvokedAt: t0.Add(-time.Minute), DurationMs: (5 * time.Minute).Milliseconds()})

	res := e.Execute(context.Background(), []entities.Action{humidifierMax()})
	assert.True(t, res[0].Skipped)
	assert.Equal(t, 0, inv.count())
}

func TestExecuteIdempotentSkip(t *testing.T) {
	inv := &fakeInvoker{}
	st := fakeStates{states: entities.ActuatorStates{
		entities.DeviceHeater:     {Device: entities.DeviceHeater, Mode: "heat", Setpoint: entities.Known(76)},
		entities.DeviceExhaustFan: {Device: entities.DeviceExhaustFan, Mode: entities.ModeOn, CurrentPower: 2},
	}}
	e, store, _ := newTestExecutor(inv, st)

	res := e.Execute(context.Background(), []entities.Action{heaterTo(76), fanTo(2, 2)})
	require.Len(t, res, 2)
	for _, r := range res {
		assert.True(t, r.Success)
		assert.True(t, r.Skipped)
	}
	assert.Equal(t, 0, inv.count())
	entries, _ := store.Snapshot(context.Background())
	assert.Empty(t, entries)
}

func TestExecuteStateErrorStillDispatches(t *testing.T) {
	inv := &fakeInvoker{}
	e, _, _ := newTestExecutor(inv, fakeStates{err: errors.New("provider down")})
	res := e.Execute(context.Background(), []entities.Action{heaterTo(76)})
	assert.True(t, res[0].Success)
	assert.Equal(t, 1, inv.count())
}

func TestExecuteFailureDoesNotAbortPlan(t *testing.T) {
	inv := &fakeInvoker{respond: func(domain, _ string) (actuator.Response, error) {
		if domain == "climate" {
			return actuator.Response{}, &actuator.CallError{Code: "503", Msg: "upstream unavailable"}
		}
		return actuator.Response{Success: true}, nil
	}}
	e, store, _ := newTestExecutor(inv, nil)
	ctx := context.Background()

	res := e.Execute(ctx, []entities.Action{fanTo(4, 2), heaterTo(76)})
	require.Len(t, res, 2)
	assert.Equal(t, entities.DeviceHeater, res[0].Action.Device, "priority order")
	assert.False(t, res[0].Success)
	assert.Equal(t, "503", res[0].ErrorCode)
	assert.True(t, res[1].Success)

	entry, ok, _ := store.Get(ctx, "heater:set_temperature")
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, entry.Duration())
	assert.False(t, entry.Extended)
}

func TestExecutePanicIsNormalized(t *testing.T) {
	inv := &fakeInvoker{respond: func(string, string) (actuator.Response, error) { panic("boom") }}
	e, _, _ := newTestExecutor(inv, nil)
	res := e.Execute(context.Background(), []entities.Action{heaterTo(76)})
	assert.False(t, res[0].Success)
	assert.Equal(t, actuator.CodePanic, res[0].ErrorCode)
}

func TestExecuteUnroutable(t *testing.T) {
	inv := &fakeInvoker{}
	e, _, _ := newTestExecutor(inv, nil)
	bad := entities.Action{Device: entities.DeviceHumidifier, Verb: entities.VerbSetPower, Priority: 1}
	res := e.Execute(context.Background(), []entities.Action{bad})
	assert.False(t, res[0].Success)
	assert.Equal(t, "unroutable", res[0].ErrorCode)
	assert.Equal(t, 0, inv.count())
}

func TestExecuteStopsWhenDisabled(t *testing.T) {
	var enabled sync.Map
	enabled.Store("on", true)
	inv := &fakeInvoker{onInvoke: func() { enabled.Store("on", false) }}
	e, _, _ := newTestExecutor(inv, nil)
	e.Enabled = func() bool { v, _ := enabled.Load("on"); return v.(bool) }

	res := e.Execute(context.Background(), []entities.Action{heaterTo(76), fanTo(4, 2)})
	assert.Len(t, res, 1)
	assert.Equal(t, 1, inv.count())
}

func TestSatisfied(t *testing.T) {
	on := func(p float64) entities.ActuatorState { return entities.ActuatorState{Mode: entities.ModeOn, CurrentPower: p} }
	cases := []struct {
		name string
		a    entities.Action
		st   entities.ActuatorState
		want bool
	}{
		{"intensity reached", humidifierMax(), on(10), true},
		{"intensity off", humidifierMax(), entities.ActuatorState{Mode: entities.ModeOff, CurrentPower: 10}, false},
		{"intensity lower", humidifierMax(), on(6), false},
		{"power reached", fanTo(2, 1), on(2), true},
		{"power unknown mode", fanTo(0, 1), entities.ActuatorState{}, false},
		{"setpoint reached", heaterTo(76), entities.ActuatorState{Mode: "heat", Setpoint: entities.Known(76.02)}, true},
		{"setpoint unknown", heaterTo(76), entities.ActuatorState{Mode: "heat"}, false},
		{"already off", entities.Action{Verb: entities.VerbTurnOff}, entities.ActuatorState{Mode: entities.ModeOff}, true},
		{"off unknown", entities.Action{Verb: entities.VerbTurnOff}, entities.ActuatorState{}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Satisfied(tc.a, tc.st), tc.name)
	}
}
