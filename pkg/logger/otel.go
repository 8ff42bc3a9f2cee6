package logger

import (
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// OTel returns a logger that forwards records to the global OpenTelemetry
// LoggerProvider under the given instrumentation scope. It drops everything
// until a provider is installed.
func OTel(scope string) *slog.Logger {
	return otelslog.NewLogger(scope)
}
