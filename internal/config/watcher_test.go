package config

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWatcherReloadsAndKeepsLastGood(t *testing.T) {
	path := writeFile(t, t.TempDir(), sample)
	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	assert.Equal(t, entities.StageFlowering, w.Policy().Stage)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, w.Run(ctx))
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	// give the watcher time to register the directory
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("stage: Seedling\n"), 0o644))
	require.Eventually(t, func() bool { return w.Policy().Stage == entities.StageSeedling }, 2*time.Second, 10*time.Millisecond)

	before := w.Reloads()
	require.NoError(t, os.WriteFile(path, []byte("stage: Harvest\n"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, entities.StageSeedling, w.Policy().Stage)
	assert.Equal(t, before, w.Reloads())
	assert.Len(t, w.HardLimits(), 1, "limits stay as loaded at startup")
}

func TestReloadKeepsStartupOnlySections(t *testing.T) {
	path := writeFile(t, t.TempDir(), sample)
	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	startLimits := w.HardLimits()
	start := w.Current()

	require.NoError(t, os.WriteFile(path, []byte(`
stage: Seedling
hard_limits:
  - entity: number.target_vpd
    min: 0
    max: 5
    max_change_per_invocation: 5
  - entity: number.exhaust_fan_power
    min: 0
    max: 10
    max_change_per_invocation: 10
cooldowns:
  extended: 1m
ownership:
  heater: external_app
entities:
  heater: climate.other
`), 0o644))
	w.reload()

	assert.EqualValues(t, 1, w.Reloads())
	assert.Equal(t, entities.StageSeedling, w.Policy().Stage)
	assert.Equal(t, startLimits, w.HardLimits())
	assert.Equal(t, start.Cooldowns, w.Current().Cooldowns)
	assert.Equal(t, start.Ownership, w.Current().Ownership)
	assert.Equal(t, start.Entities, w.Current().Entities)
}

func TestStartupOnlyChanges(t *testing.T) {
	a, b := Default(), Default()
	b.Stage = entities.StageSeedling
	assert.Empty(t, startupOnlyChanges(a, b))

	b.HardLimits = b.HardLimits[:1]
	b.Entities.Heater = "climate.other"
	assert.Equal(t, []string{"hard_limits", "entities"}, startupOnlyChanges(a, b))
}

func TestStoreSwap(t *testing.T) {
	s := NewStore(Default())
	f := Default()
	f.Stage = entities.StageLateFlower
	s.Swap(f)
	assert.Equal(t, entities.StageLateFlower, s.Policy().Stage)
}
