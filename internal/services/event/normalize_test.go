package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventToPoint(t *testing.T) {
	p := EventToPoint(FromCycleReport(sampleReport()))
	assert.Equal(t, "system_event", p.Name())
	assert.True(t, p.Time().Equal(t0))

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{
		"event_type":     TypeControlCycle,
		"source_service": "climate-controller",
		"severity":       "warning",
		"room":           "room1",
		"subject":        "Flowering",
	}, tags)

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, "c-1", fields["cycle_id"])
	assert.Equal(t, int64(1), fields["count"])
}

func TestEventToPointDefaults(t *testing.T) {
	before := time.Now().UTC()
	p := EventToPoint(CommonEvent{EventType: TypeActuatorState, SourceService: "provider-bridge", Severity: "info"})
	assert.False(t, p.Time().Before(before))
	for _, tag := range p.TagList() {
		assert.NotEqual(t, "room", tag.Key)
	}
	assert.Len(t, p.FieldList(), 1)
}
