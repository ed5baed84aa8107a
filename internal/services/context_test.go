package services_test

import (
	"context"
	"testing"

	"tonearm/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-1")
	ctx = services.WithFileID(ctx, "file-1")
	ctx = services.WithStrategy(ctx, "fingerprint")
	ctx = services.WithAttempt(ctx, 2)
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "job-1" {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if id, ok := services.FileIDFromContext(ctx); !ok || id != "file-1" {
		t.Fatalf("unexpected file id: %v %v", id, ok)
	}
	if strategy, ok := services.StrategyFromContext(ctx); !ok || strategy != "fingerprint" {
		t.Fatalf("unexpected strategy: %v %v", strategy, ok)
	}
	if attempt, ok := services.AttemptFromContext(ctx); !ok || attempt != 2 {
		t.Fatalf("unexpected attempt: %v %v", attempt, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStrategy(ctx, "")
	ctx = services.WithAttempt(ctx, 0)
	if _, ok := services.StrategyFromContext(ctx); ok {
		t.Fatal("expected no strategy value")
	}
	if _, ok := services.AttemptFromContext(ctx); ok {
		t.Fatal("expected no attempt value")
	}
}
