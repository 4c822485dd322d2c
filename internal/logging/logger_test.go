package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestInitJSONWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	log := With("cache")
	log.Debug().Str("key", "prs::alice").Msg("cache miss")

	out := buf.String()
	if !strings.Contains(out, `"component":"cache"`) {
		t.Errorf("Expected component field, got %s", out)
	}
	if !strings.Contains(out, `"key":"prs::alice"`) {
		t.Errorf("Expected key field, got %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Msg("hidden")
	Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected info line to be filtered, got %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("Expected warn line, got %s", out)
	}
}

func TestCtxAddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	id := NewCorrelationID()
	if len(id) != 8 {
		t.Fatalf("Expected 8 char id, got %q", id)
	}
	ctx := ContextWithCorrelationID(context.Background(), id)
	if CorrelationIDFromContext(ctx) != id {
		t.Fatalf("Expected id to round-trip through context")
	}

	Ctx(ctx).Info().Msg("run started")
	if !strings.Contains(buf.String(), `"correlation_id":"`+id+`"`) {
		t.Errorf("Expected correlation id in output, got %s", buf.String())
	}
}
