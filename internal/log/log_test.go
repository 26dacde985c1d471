package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Component: ComponentLedger, Output: &buf})
	l.Info("saved", FieldStudentID, "s-1")

	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "student_id=s-1") {
		t.Fatalf("unexpected log line %q", out)
	}
	if l.WithComponent(ComponentHTTP).Component() != ComponentHTTP {
		t.Fatalf("component not switched")
	}
}

func TestLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelWarn, Output: &buf})
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %q", buf.String())
	}
}

func TestFieldsToSlice(t *testing.T) {
	got := NewFields().
		WithStudent("s-1", "").
		WithError(errors.New("boom")).
		WithRejection("").
		WithChangeSet([]string{"upsert_payment"}).
		ToSlice()

	want := []any{FieldApplied, 1, FieldError, "boom", FieldOperation, []string{"upsert_payment"}, FieldStudentID, "s-1"}
	if len(got) != len(want) {
		t.Fatalf("unexpected fields %v", got)
	}
	for i := 0; i < len(want); i += 2 {
		if got[i] != want[i] {
			t.Fatalf("key %d = %v, want %v", i/2, got[i], want[i])
		}
	}
}

func TestContextLogger(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatalf("expected fallback logger")
	}
	l := New(Config{Component: ComponentWorker, Output: &bytes.Buffer{}})
	if FromContext(WithLogger(context.Background(), l)) != l {
		t.Fatalf("logger not stored in context")
	}
}
