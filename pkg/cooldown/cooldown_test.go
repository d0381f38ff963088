package cooldown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestActiveWithinWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Record(ctx, "heater:set_temperature", t0, 30*time.Second)
	require.NoError(t, err)

	active, rem, err := Active(ctx, s, "heater:set_temperature", t0.Add(10*time.Second))
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, 20*time.Second, rem)

	active, _, err = Active(ctx, s, "heater:set_temperature", t0.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, active, "window is half-open")

	active, _, err = Active(ctx, s, "unknown", t0)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestExtendedWindowSurvivesBaseRecord(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Extend(ctx, IntensityKey, t0, 30*time.Minute)
	require.NoError(t, err)

	e, err := s.Record(ctx, IntensityKey, t0.Add(time.Minute), 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, e.Extended)
	assert.Equal(t, t0.Add(30*time.Minute), e.ExpiresAt())

	// once the extension has run out a base record starts a plain window again
	e, err = s.Record(ctx, IntensityKey, t0.Add(31*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, e.Extended)
	assert.Equal(t, 5*time.Minute, e.Duration())
}

func TestSnapshotAndReset(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Seed(
		Entry{Key: "b", LastInvokedAt: t0, DurationMs: 1000},
		Entry{Key: "a", LastInvokedAt: t0, DurationMs: 1000},
	)
	got, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Key)

	require.NoError(t, s.Reset(ctx))
	got, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStoresAreIndependent(t *testing.T) {
	ctx := context.Background()
	a, b := NewMemoryStore(), NewMemoryStore()
	_, err := a.Record(ctx, "k", t0, time.Minute)
	require.NoError(t, err)
	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPolicyDefaults(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 120*time.Second, p.BaseFor(entities.DeviceHumidifier))
	assert.Equal(t, 60*time.Second, p.BaseFor(entities.DeviceExhaustFan))
	assert.Equal(t, 30*time.Second, p.BaseFor(entities.DeviceHeater))
	assert.Equal(t, 10*time.Second, p.BaseFor(entities.DeviceLight))
	assert.Equal(t, 5*time.Minute, p.IntensityWindow())
	assert.Equal(t, 30*time.Minute, p.ExtendedWindow())

	var empty Policy
	assert.Equal(t, 30*time.Second, empty.BaseFor(entities.DeviceHeater))

	a := entities.Action{Device: entities.DeviceHumidifier, Verb: entities.VerbSetIntensity}
	assert.Equal(t, "humidifier:set_intensity", KeyFor(a))
	assert.True(t, IsIntensity(a))
	assert.False(t, IsIntensity(entities.Action{Device: entities.DeviceHumidifier, Verb: entities.VerbTurnOff}))
}
