package llm

import (
	"context"
	"strings"
)

// MockClient produces deterministic local replies when no real backend is
// wanted (tests, offline development).
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return mockReply(req), nil
}

func (c *MockClient) CompleteStream(ctx context.Context, req Request, onFragment FragmentHandler) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	reply := mockReply(req)
	// Split into a few fragments so streaming consumers get exercised.
	words := strings.SplitAfter(reply, " ")
	var out strings.Builder
	for _, w := range words {
		if w == "" {
			continue
		}
		out.WriteString(w)
		if onFragment != nil {
			if err := onFragment(w); err != nil {
				return "", err
			}
		}
	}
	return out.String(), nil
}

func mockReply(req Request) string {
	// The last prompt line is the raw user message.
	lines := strings.Split(strings.TrimSpace(req.Prompt), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return "I am listening."
	}
	return "Test reply: " + last
}
