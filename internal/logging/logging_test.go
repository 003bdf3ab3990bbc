package logging

import (
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	t.Cleanup(func() { _ = Configure("info", "text", false) })

	require.NoError(t, Configure("warn", "json", false))
	require.Equal(t, log.WarnLevel, log.GetLevel())

	require.NoError(t, Configure("error", "logfmt", true))
	require.Equal(t, log.DebugLevel, log.GetLevel())
}

func TestConfigure_RejectsUnknownValues(t *testing.T) {
	t.Cleanup(func() { _ = Configure("info", "text", false) })

	require.Error(t, Configure("loud", "text", false))
	require.Error(t, Configure("info", "yaml", false))
}

func TestGorm(t *testing.T) {
	require.NotNil(t, Gorm(false))
	require.NotNil(t, Gorm(true))
}
