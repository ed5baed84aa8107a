package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnreachable   = errors.New("resolver unreachable")
	ErrUnsupported   = errors.New("unsupported media")
	ErrDecode        = errors.New("decode error")
	ErrPermanent     = errors.New("permanent failure")
	ErrCancelled     = errors.New("cancelled")
	// ErrProvisional marks an attempt that stored a usable result but may
	// improve on retry. It is transient until retries run out.
	ErrProvisional = errors.New("provisional result")
)

// FailureClass groups errors by whether a retry can be expected to succeed.
type FailureClass string

const (
	ClassNone      FailureClass = ""
	ClassTransient FailureClass = "transient"
	ClassPermanent FailureClass = "permanent"
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// RateLimitError reports a remote throttle. RetryAfter is zero when the
// service did not send a hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Detail     string
}

func (e *RateLimitError) Error() string {
	var b strings.Builder
	b.WriteString(ErrRateLimited.Error())
	if d := strings.TrimSpace(e.Detail); d != "" {
		b.WriteString(": ")
		b.WriteString(d)
	}
	if e.RetryAfter > 0 {
		fmt.Fprintf(&b, " (retry after %s)", e.RetryAfter)
	}
	return b.String()
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfter returns the retry hint carried by a rate limit error, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return rle.RetryAfter, true
	}
	return 0, false
}

// IsTransient reports whether err is expected to succeed on retry.
func IsTransient(err error) bool {
	return Classify(err) == ClassTransient
}

// Classify maps an error onto the retry taxonomy. Unknown errors are treated
// as permanent so they never loop.
func Classify(err error) FailureClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrPermanent), errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation):
		return ClassPermanent
	case errors.Is(err, ErrTransient),
		errors.Is(err, ErrProvisional),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrUnreachable),
		errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	default:
		return ClassPermanent
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
