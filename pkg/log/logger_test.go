package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bft-labs/mapkit/internal/domain"
)

type recordingLogger struct {
	entries [][]Field
}

func (r *recordingLogger) Debug(msg string, fields ...Field) { r.entries = append(r.entries, fields) }
func (r *recordingLogger) Info(msg string, fields ...Field)  { r.entries = append(r.entries, fields) }
func (r *recordingLogger) Warn(msg string, fields ...Field)  { r.entries = append(r.entries, fields) }
func (r *recordingLogger) Error(msg string, fields ...Field) { r.entries = append(r.entries, fields) }

func TestZerologAdapter_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewZerologAdapterWithLogger(zerolog.New(&buf))

	adapter.Error("acquire failed", Kind(domain.KindToken), Err(errors.New("boom")), Int("attempt", 2))

	out := buf.String()
	for _, want := range []string{`"resource":"token"`, `"error":"boom"`, `"attempt":2`, `"message":"acquire failed"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %s", out, want)
		}
	}
}

func TestNamed_Zerolog(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewZerologAdapterWithLogger(zerolog.New(&buf))

	Named(adapter, "rollback").Info("checkpoint")

	if !strings.Contains(buf.String(), `"component":"rollback"`) {
		t.Errorf("output %q missing component", buf.String())
	}
}

func TestNamed_WrapsCustomLogger(t *testing.T) {
	rec := &recordingLogger{}
	Named(rec, "state").Warn("dropped", String("to", "ready"))

	if len(rec.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(rec.entries))
	}
	got := rec.entries[0]
	if len(got) != 2 || got[0].Key != "component" || got[0].Value != "state" {
		t.Errorf("fields = %+v, want component first", got)
	}
}

func TestNamed_NilReturnsNoop(t *testing.T) {
	if _, ok := Named(nil, "x").(*NoopLogger); !ok {
		t.Error("Named(nil) should return a NoopLogger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
