// Package logging defines a minimal structured-logging interface used
// across the project, with an slog-backed implementation and a no-op
// logger for tests.
package logging

// Logger is a structured logger. The variadic args are key–value pairs:
//
//	log.Info("publishing", "domain", domain, "relays", n)
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a child logger that always includes the given
	// key–value pairs.
	With(args ...any) Logger
}
