package log

import (
	"context"
	"testing"
)

func TestDiscard(t *testing.T) {
	l := Discard()
	if l.Enabled(context.Background(), LevelError) {
		t.Error("discard logger should not be enabled")
	}
	l.Error("dropped", "k", "v")
}
