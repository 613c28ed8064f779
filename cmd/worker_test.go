package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xamero/smartdocs/config"
)

func TestParseRunAt(t *testing.T) {
	_, err := parseRunAt("02:00")
	require.NoError(t, err)

	_, err = parseRunAt("23:59")
	require.NoError(t, err)

	for _, bad := range []string{"", "2am", "25:00", "02:60"} {
		_, err := parseRunAt(bad)
		assert.Error(t, err, bad)
	}
}

func TestSetupLoggingAcceptsUnknownLevel(t *testing.T) {
	assert.NotPanics(t, func() {
		setupLogging(config.Config{Logging: config.LoggingConfig{Level: "verbose", Format: "json"}})
	})
}
