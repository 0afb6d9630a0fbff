package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAgentAdapterSendsRequestFields(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("authorization = %q, want bearer token", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Response{Text: "ola"})
	}))
	defer srv.Close()

	adapter := NewAgentAdapter(srv.URL, "secret", time.Second)
	resp, err := adapter.Respond(context.Background(), Request{
		Message:   "bom dia",
		AgentID:   "clara",
		SessionID: "sess-1",
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.Text != "ola" {
		t.Fatalf("text = %q, want %q", resp.Text, "ola")
	}
	if got.Message != "bom dia" || got.AgentID != "clara" || got.SessionID != "sess-1" {
		t.Fatalf("request = %+v, want message/agentId/sessionId populated", got)
	}
}

func TestAgentAdapterStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter := NewAgentAdapter(srv.URL, "", time.Second)
	_, err := adapter.Respond(context.Background(), Request{Message: "oi"})
	var agentErr *Error
	if !errors.As(err, &agentErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if agentErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", agentErr.StatusCode)
	}
}

func TestAgentAdapterEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Response{Text: "   "})
	}))
	defer srv.Close()

	adapter := NewAgentAdapter(srv.URL, "", time.Second)
	if _, err := adapter.Respond(context.Background(), Request{Message: "oi"}); err == nil {
		t.Fatal("expected error for blank response text")
	}
}

type stubAdapter struct {
	resp      Response
	err       error
	failFirst int // calls that fail with a retryable status before resp
	calls     int
}

func (s *stubAdapter) Respond(ctx context.Context, req Request) (Response, error) {
	s.calls++
	if s.calls <= s.failFirst {
		return Response{}, &Error{StatusCode: http.StatusServiceUnavailable}
	}
	return s.resp, s.err
}

func TestFallbackAdapterUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &stubAdapter{resp: Response{Text: "primary"}}
	secondary := &stubAdapter{resp: Response{Text: "secondary"}}

	resp, err := NewFallbackAdapter(primary, secondary).Respond(context.Background(), Request{Message: "oi"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.Text != "primary" {
		t.Fatalf("text = %q, want primary reply", resp.Text)
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary calls = %d, want 0", secondary.calls)
	}
}

func TestFallbackAdapterFallsBackOnRetryableStatus(t *testing.T) {
	primary := &stubAdapter{err: &Error{StatusCode: http.StatusBadGateway}}
	secondary := &stubAdapter{resp: Response{Text: "secondary"}}

	fb := NewFallbackAdapter(primary, secondary)
	fb.backoffBase = time.Millisecond
	resp, err := fb.Respond(context.Background(), Request{Message: "oi"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.Text != "secondary" {
		t.Fatalf("text = %q, want fallback reply", resp.Text)
	}
	if primary.calls != defaultPrimaryAttempts {
		t.Fatalf("primary calls = %d, want %d (retried before fallback)", primary.calls, defaultPrimaryAttempts)
	}
}

func TestFallbackAdapterRetriesPrimaryWithBackoff(t *testing.T) {
	primary := &stubAdapter{resp: Response{Text: "primary"}, failFirst: 1}
	secondary := &stubAdapter{resp: Response{Text: "secondary"}}

	fb := NewFallbackAdapter(primary, secondary)
	fb.backoffBase = time.Millisecond
	resp, err := fb.Respond(context.Background(), Request{Message: "oi"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.Text != "primary" {
		t.Fatalf("text = %q, want primary reply on the retry", resp.Text)
	}
	if primary.calls != 2 {
		t.Fatalf("primary calls = %d, want 2", primary.calls)
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary calls = %d, want 0 when the retry succeeds", secondary.calls)
	}
}

func TestFallbackAdapterKeepsNonRetryableError(t *testing.T) {
	primary := &stubAdapter{err: &Error{StatusCode: http.StatusUnauthorized}}
	secondary := &stubAdapter{resp: Response{Text: "secondary"}}

	_, err := NewFallbackAdapter(primary, secondary).Respond(context.Background(), Request{Message: "oi"})
	if err == nil {
		t.Fatal("expected error from non-retryable primary failure")
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary calls = %d, want 0 on auth failure", secondary.calls)
	}
}

func TestFallbackAdapterPropagatesCancellation(t *testing.T) {
	primary := &stubAdapter{err: context.Canceled}
	secondary := &stubAdapter{resp: Response{Text: "secondary"}}

	_, err := NewFallbackAdapter(primary, secondary).Respond(context.Background(), Request{Message: "oi"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary calls = %d, want 0 on cancellation", secondary.calls)
	}
}

func TestNewAdapterModes(t *testing.T) {
	if _, err := NewAdapter(Config{Mode: "agent"}); err == nil {
		t.Fatal("agent mode without url should fail")
	}
	if _, err := NewAdapter(Config{Mode: "weird"}); err == nil {
		t.Fatal("unknown mode should fail")
	}

	adapter, err := NewAdapter(Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("auto mode: %v", err)
	}
	if _, ok := adapter.(*MockAdapter); !ok {
		t.Fatalf("auto with no backends = %T, want *MockAdapter", adapter)
	}

	adapter, err = NewAdapter(Config{Mode: "auto", AgentURL: "http://localhost:1/agent", OpenAIKey: "k"})
	if err != nil {
		t.Fatalf("auto mode with backends: %v", err)
	}
	fb, ok := adapter.(*FallbackAdapter)
	if !ok {
		t.Fatalf("auto with both backends = %T, want *FallbackAdapter", adapter)
	}
	if _, ok := fb.Primary().(*AgentAdapter); !ok {
		t.Fatalf("primary = %T, want *AgentAdapter", fb.Primary())
	}
}

func TestMockAdapterEchoesMessage(t *testing.T) {
	resp, err := NewMockAdapter().Respond(context.Background(), Request{Message: "tudo bem?"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.Text == "" {
		t.Fatal("mock reply should not be empty")
	}
}
