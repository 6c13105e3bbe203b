// Package testlog provides a logger for tests: silent by default,
// switchable to console output via CANWIRE_LOG_LEVEL.
package testlog

import (
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tarnhill/canwire/internal/observability"
)

func Logger(t *testing.T) zerolog.Logger {
	t.Helper()
	if os.Getenv(observability.EnvLogLevel) != "" {
		return observability.InitLogger(t.Name())
	}
	return zerolog.Nop()
}
