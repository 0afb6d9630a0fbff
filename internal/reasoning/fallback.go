package reasoning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andrevianna/clara/internal/reliability"
)

const (
	defaultPrimaryAttempts = 2
	defaultBackoffBase     = 200 * time.Millisecond
	defaultBackoffCap      = 2 * time.Second
)

// FallbackAdapter retries a primary adapter with capped exponential backoff
// and falls back when the retryable attempts are exhausted. Caller
// cancellation and non-retryable errors return immediately.
type FallbackAdapter struct {
	primary  Adapter
	fallback Adapter

	attempts    int
	backoffBase time.Duration
	backoffCap  time.Duration
}

func NewFallbackAdapter(primary, fallback Adapter) *FallbackAdapter {
	return &FallbackAdapter{
		primary:     primary,
		fallback:    fallback,
		attempts:    defaultPrimaryAttempts,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
	}
}

// Primary returns the preferred adapter used before fallback.
func (a *FallbackAdapter) Primary() Adapter {
	if a == nil {
		return nil
	}
	return a.primary
}

// Secondary returns the fallback adapter.
func (a *FallbackAdapter) Secondary() Adapter {
	if a == nil {
		return nil
	}
	return a.fallback
}

func (a *FallbackAdapter) Respond(ctx context.Context, req Request) (Response, error) {
	if a == nil || a.primary == nil {
		if a != nil && a.fallback != nil {
			return a.fallback.Respond(ctx, req)
		}
		return Response{}, errors.New("fallback adapter misconfigured")
	}

	attempts := a.attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := reliability.Backoff(attempt-1, a.backoffBase, a.backoffCap)
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(wait):
			}
		}
		var resp Response
		resp, err = a.primary.Respond(ctx, req)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) {
			return Response{}, err
		}
		if !shouldFallback(err) {
			return Response{}, err
		}
	}

	if a.fallback == nil {
		return Response{}, err
	}
	fallbackResp, fallbackErr := a.fallback.Respond(ctx, req)
	if fallbackErr != nil {
		return Response{}, fmt.Errorf("primary adapter error: %w; fallback adapter error: %v", err, fallbackErr)
	}
	return fallbackResp, nil
}

func shouldFallback(err error) bool {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return reliability.RetryableStatus(agentErr.StatusCode)
	}
	return reliability.TransientError(err)
}
