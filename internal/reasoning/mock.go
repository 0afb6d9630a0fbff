package reasoning

import (
	"context"
	"fmt"
	"strings"
)

// MockAdapter provides deterministic local replies when no backend is configured.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) Respond(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	text := strings.TrimSpace(req.Message)
	if text == "" {
		return Response{Text: "Estou ouvindo."}, nil
	}
	return Response{Text: fmt.Sprintf("Entendi: %s", text)}, nil
}
