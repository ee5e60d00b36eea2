package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestWriterLoggerEmitsJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, LevelDebug)

	log.Info("hello", String("comp", "test"), Int("n", 3), Duration("d", 2*time.Second))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if m["message"] != "hello" {
		t.Fatalf("message = %v, want hello", m["message"])
	}
	if m["comp"] != "test" {
		t.Fatalf("comp = %v, want test", m["comp"])
	}
	if m["n"] != float64(3) {
		t.Fatalf("n = %v, want 3", m["n"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, LevelWarn)

	log.Debug("dropped")
	log.Info("dropped too")
	log.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("below-level lines were written: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn line missing: %s", out)
	}
	if !log.Enabled(LevelError) {
		t.Fatal("Enabled(error) = false, want true")
	}
	if log.Enabled(LevelDebug) {
		t.Fatal("Enabled(debug) = true, want false")
	}
}

func TestWithFieldsStick(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, LevelDebug).With(String("comp", "scheduler"))

	log.Error("boom", Err(errors.New("bad state")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if m["comp"] != "scheduler" {
		t.Fatalf("comp = %v, want scheduler", m["comp"])
	}
	if m["err"] != "bad state" {
		t.Fatalf("err = %v, want bad state", m["err"])
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	log.Info("must not panic")
	Nop().Warn("must not panic either")
}
