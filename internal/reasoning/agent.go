package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultAgentTimeout = 60 * time.Second

// AgentAdapter forwards requests to a conversational agent HTTP endpoint.
type AgentAdapter struct {
	url    string
	apiKey string
	client *http.Client
}

// Error reports a non-2xx status from the agent endpoint.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if strings.TrimSpace(e.Detail) == "" {
		return fmt.Sprintf("reasoning agent status %d", e.StatusCode)
	}
	return fmt.Sprintf("reasoning agent status %d: %s", e.StatusCode, e.Detail)
}

func NewAgentAdapter(url, apiKey string, timeout time.Duration) *AgentAdapter {
	if timeout <= 0 {
		timeout = defaultAgentTimeout
	}
	return &AgentAdapter{
		url:    strings.TrimSpace(url),
		apiKey: strings.TrimSpace(apiKey),
		client: &http.Client{Timeout: timeout},
	}
}

func (a *AgentAdapter) Respond(ctx context.Context, req Request) (Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	res, err := a.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Response{}, &Error{StatusCode: res.StatusCode, Detail: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return Response{}, fmt.Errorf("reasoning agent returned an empty response")
	}
	return resp, nil
}
