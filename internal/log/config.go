package log

import (
	"io"
	"os"
	"strings"
)

// Format is the encoding used for log records.
type Format int

const (
	// FormatText renders key=value records, suited to a terminal.
	FormatText Format = iota
	// FormatJSON renders one JSON object per record.
	FormatJSON
)

// String returns the config-file spelling of the format.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	default:
		return "text"
	}
}

// ParseFormat parses a format name. Unknown names fall back to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	default:
		return FormatText
	}
}

// Config holds configuration for the logger
type Config struct {
	// Level is the minimum level that is emitted
	Level Level

	// Format selects the handler encoding
	Format Format

	// Output receives log records. Nil means stderr.
	Output io.Writer

	// AddSource includes file:line in records
	AddSource bool

	// ServiceName and ServiceVersion are attached to every record
	ServiceName    string
	ServiceVersion string
}

// DefaultConfig logs at INFO in text format to stderr, keeping stdout free
// for command output.
func DefaultConfig() Config {
	return Config{
		Level:          LevelInfo,
		Format:         FormatText,
		Output:         os.Stderr,
		ServiceName:    "oncare",
		ServiceVersion: "dev",
	}
}

// DebugConfig logs everything, with source locations.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = LevelDebug
	cfg.AddSource = true
	return cfg
}

// QuietConfig only reports errors. Used by the interactive UI so log lines
// do not tear the rendered screen.
func QuietConfig(w io.Writer) Config {
	cfg := DefaultConfig()
	cfg.Level = LevelError
	cfg.Output = w
	return cfg
}

func (c Config) writer() io.Writer {
	if c.Output == nil {
		return os.Stderr
	}
	return c.Output
}
