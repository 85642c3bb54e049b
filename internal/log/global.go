package log

// Discard returns a logger that drops every record. Handy as a default for
// library types that accept an optional logger.
func Discard() *Logger {
	return &Logger{slog: slogDiscard, config: Config{Level: LevelError}}
}
