package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Request carries one finalized user utterance to the reasoning backend.
type Request struct {
	Message   string `json:"message"`
	AgentID   string `json:"agentId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// Response is the assistant reply to speak back.
type Response struct {
	Text string `json:"response"`
}

// Adapter produces an assistant reply for a user utterance.
type Adapter interface {
	Respond(ctx context.Context, req Request) (Response, error)
}

// Config controls adapter construction.
type Config struct {
	Mode        string
	AgentURL    string
	AgentKey    string
	OpenAIKey   string
	OpenAIModel string
	Timeout     time.Duration
}

// NewAdapter builds the adapter selected by cfg.Mode. Mode "auto" prefers
// the agent endpoint with an OpenAI fallback when both are configured.
func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoAdapter(cfg), nil
	case "agent":
		if strings.TrimSpace(cfg.AgentURL) == "" {
			return nil, errors.New("reasoning agent url is required for agent mode")
		}
		return NewAgentAdapter(cfg.AgentURL, cfg.AgentKey, cfg.Timeout), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIKey) == "" {
			return nil, errors.New("openai api key is required for openai mode")
		}
		return NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIModel), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported reasoning adapter mode %q", cfg.Mode)
	}
}

func newAutoAdapter(cfg Config) Adapter {
	var secondary Adapter
	if strings.TrimSpace(cfg.OpenAIKey) != "" {
		secondary = NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIModel)
	}

	if strings.TrimSpace(cfg.AgentURL) != "" {
		agent := NewAgentAdapter(cfg.AgentURL, cfg.AgentKey, cfg.Timeout)
		if secondary != nil {
			return NewFallbackAdapter(agent, secondary)
		}
		return agent
	}

	if secondary != nil {
		return secondary
	}
	return NewMockAdapter()
}
