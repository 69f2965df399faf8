// Package domain defines the value types and collaborator interfaces shared
// across the trading session runtime: candles and ticks ingested from a
// Provider, the Order contract handed in by the (external) strategy, the
// Position/Lot/WorkingOrder state owned exclusively by the broker, and the
// structured logger interface implementations plug into.
package domain

// Logger is the structured logging interface every session component is
// constructed with. Implementations wrap zap (see pkg/logging).
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}
