package observability

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" authorization=Bearer abc , broken, x-team = decks ,=nokey")
	want := map[string]string{"authorization": "Bearer abc", "x-team": "decks"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("headers mismatch (-want +got):\n%s", diff)
	}
	if parseHeaders("") != nil {
		t.Fatalf("empty input should give nil")
	}
}

func TestLoadOtelConfigClampsRatio(t *testing.T) {
	t.Setenv("OTEL_SAMPLER_RATIO", "4")
	t.Setenv("OTEL_ENABLED", "yes")
	cfg := LoadOtelConfig("deckrebuild-worker")
	if cfg.SampleRatio != 1 || !cfg.Enabled || cfg.ServiceName != "deckrebuild-worker" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestInitOTelDisabledIsNoop(t *testing.T) {
	shutdown := InitOTel(context.Background(), logger.Nop(), OtelConfig{})
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
