package log

import (
	"bytes"
	"os"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{" json ", FormatJSON},
		{"text", FormatText},
		{"", FormatText},
		{"logfmt", FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseFormat(tt.input); got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatString(t *testing.T) {
	if FormatJSON.String() != "json" {
		t.Errorf("FormatJSON.String() = %q", FormatJSON.String())
	}
	if Format(42).String() != "text" {
		t.Errorf("unknown format should render as text, got %q", Format(42).String())
	}
}

func TestConfigs(t *testing.T) {
	def := DefaultConfig()
	if def.Level != LevelInfo || def.Format != FormatText || def.Output != os.Stderr {
		t.Errorf("unexpected default config: %+v", def)
	}
	if def.ServiceName != "oncare" {
		t.Errorf("ServiceName = %q, want oncare", def.ServiceName)
	}

	dbg := DebugConfig()
	if dbg.Level != LevelDebug || !dbg.AddSource {
		t.Errorf("unexpected debug config: %+v", dbg)
	}

	var buf bytes.Buffer
	quiet := QuietConfig(&buf)
	if quiet.Level != LevelError || quiet.Output != &buf {
		t.Errorf("unexpected quiet config: %+v", quiet)
	}
}

func TestConfigWriterDefaultsToStderr(t *testing.T) {
	if (Config{}).writer() != os.Stderr {
		t.Error("nil Output should write to stderr")
	}
}
