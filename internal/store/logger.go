package store

// Logger is the minimal logging interface the stores need.
// Satisfied by *slog.Logger and by the infrastructure logging wrapper.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is provided.
type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// TelemetrySink receives normalized records for long-term storage.
// Implementations must not block; the sink is called from the message
// dispatch path. The influxdb infrastructure package provides one backed
// by a non-blocking write API. A nil sink disables export.
type TelemetrySink interface {
	WriteHealth(rec HealthRecord)
	WriteLocation(rec LocationRecord)
}
