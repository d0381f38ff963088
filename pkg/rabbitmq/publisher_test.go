package rabbitmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePayload(t *testing.T) {
	b, err := encodePayload("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encodePayload(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))

	_, err = encodePayload(make(chan int))
	assert.Error(t, err)
}

func TestQosFor(t *testing.T) {
	assert.Equal(t, byte(1), qosFor("actuator/state/#"))
	assert.Equal(t, byte(1), qosFor("event/controlCycle/Flowering"))
	assert.Equal(t, byte(0), qosFor("sensor/data/+"))
}

func TestFormatTopic(t *testing.T) {
	assert.Equal(t, "event/controlCycle/room1/Flowering",
		FormatTopic("event/controlCycle/{room}/{stage}", "{room}", "room1", "{stage}", "Flowering"))
}
