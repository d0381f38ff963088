package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	for _, lvl := range []string{"", "debug", "INFO", " warn ", "error"} {
		lg, err := New(lvl, "json")
		require.NoError(t, err, "level %q", lvl)
		require.NotNil(t, lg)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("chatty", "console")
	require.Error(t, err)
}
