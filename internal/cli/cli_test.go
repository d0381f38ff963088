package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONFIG_PATH", "")
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAnalyzeTemperatureLowPlansHeater(t *testing.T) {
	out, err := execute(t, "analyze", "--stage", "Flowering", "--temp", "60", "--rh", "50", "--vpd", "1.2")
	require.NoError(t, err)

	var got analyzeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, entities.StageFlowering, got.Stage)
	require.Len(t, got.Problems, 1)
	assert.Equal(t, entities.ProblemTempLow, got.Problems[0].Type)

	require.Len(t, got.Plan.Actions, 1)
	a := got.Plan.Actions[0]
	assert.Equal(t, entities.DeviceHeater, a.Device)
	assert.Equal(t, entities.VerbSetTemperature, a.Verb)
	require.NotNil(t, a.Params.ToTemp)
	assert.Equal(t, 76.0, *a.Params.ToTemp)
	assert.Empty(t, got.Plan.Recommendations)
}

func TestAnalyzeDerivesVPD(t *testing.T) {
	out, err := execute(t, "analyze", "--temp", "78", "--rh", "60")
	require.NoError(t, err)

	var got analyzeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.NotNil(t, got.Snapshot.VPD)
	assert.InDelta(t, 1.31, *got.Snapshot.VPD, 0.02)
	assert.Equal(t, entities.StageVegetative, got.Stage)
}

func TestAnalyzeUnknownReadingsYieldNothing(t *testing.T) {
	out, err := execute(t, "analyze")
	require.NoError(t, err)

	var got analyzeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Empty(t, got.Problems)
	assert.Empty(t, got.Plan.Actions)
	assert.Nil(t, got.Snapshot.Temperature)
}

func TestAnalyzeUnknownStage(t *testing.T) {
	_, err := execute(t, "analyze", "--stage", "Harvest", "--temp", "70")
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrUnknownStage)
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "validate", "--entity", "number.target_vpd", "--current", "0.6", "--new", "0.7")
	require.NoError(t, err)
	var d entities.Decision
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.True(t, d.Accepted)

	out, err = execute(t, "validate", "--entity", "number.target_vpd", "--current", "0.6", "--new", "1.0")
	require.ErrorIs(t, err, ErrRejected)
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.False(t, d.Accepted)
	assert.Contains(t, d.Reason, "exceeds max change")

	_, err = execute(t, "validate", "--entity", "light.unknown", "--current", "1", "--new", "2")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestValidateReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "climate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
hard_limits:
  - entity: number.target_vpd
    min: 0.3
    max: 1.5
    max_change_per_invocation: 0.5
`), 0o600))

	_, err := execute(t, "validate", "--config", path, "--entity", "number.target_vpd", "--current", "0.6", "--new", "1.0")
	assert.NoError(t, err)
}

func TestValidateRequiresFlags(t *testing.T) {
	_, err := execute(t, "validate", "--entity", "number.target_vpd")
	assert.Error(t, err)
}
