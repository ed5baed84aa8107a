package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"tonearm/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "fingerprint", "fpcalc", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"fingerprint", "fpcalc", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransientMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.FailureClass
	}{
		{"nil", nil, services.ClassNone},
		{"timeout", services.Wrap(services.ErrTimeout, "acoustid", "lookup", "", nil), services.ClassTransient},
		{"unreachable", services.Wrap(services.ErrUnreachable, "acoustid", "lookup", "", nil), services.ClassTransient},
		{"rate limited", &services.RateLimitError{RetryAfter: time.Second}, services.ClassTransient},
		{"deadline", fmt.Errorf("decode: %w", context.DeadlineExceeded), services.ClassTransient},
		{"unsupported", services.Wrap(services.ErrUnsupported, "decode", "", "", nil), services.ClassPermanent},
		{"decode", services.Wrap(services.ErrDecode, "decode", "", "", nil), services.ClassPermanent},
		{"configuration", services.Wrap(services.ErrConfiguration, "acoustid", "", "", errors.New("bad key")), services.ClassPermanent},
		{"unknown", errors.New("mystery"), services.ClassPermanent},
	}
	for _, tc := range cases {
		if got := services.Classify(tc.err); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestPermanentMarkerWinsOverTransientCause(t *testing.T) {
	err := services.Wrap(services.ErrPermanent, "runner", "probe", "corrupt", services.ErrTimeout)
	if services.IsTransient(err) {
		t.Fatalf("expected permanent classification, got transient for %v", err)
	}
}

func TestRetryAfter(t *testing.T) {
	err := fmt.Errorf("lookup: %w", &services.RateLimitError{RetryAfter: 7 * time.Second, Detail: "429"})
	hint, ok := services.RetryAfter(err)
	if !ok || hint != 7*time.Second {
		t.Fatalf("unexpected retry hint: %v %v", hint, ok)
	}
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatal("expected rate limit error to match ErrRateLimited")
	}
	if _, ok := services.RetryAfter(errors.New("plain")); ok {
		t.Fatal("expected no hint for plain error")
	}
	if !strings.Contains(err.Error(), "retry after 7s") {
		t.Fatalf("expected hint in message, got %q", err.Error())
	}
}
