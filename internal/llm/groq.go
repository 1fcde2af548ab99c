package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GroqClient speaks the OpenAI-compatible chat-completions API that Groq
// exposes, in both single-response and SSE streaming form.
type GroqClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewGroqClient(baseURL, apiKey string) *GroqClient {
	return &GroqClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *GroqClient) Complete(ctx context.Context, req Request) (string, error) {
	res, cancel, err := c.send(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer cancel()
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", c.transportErr(ctx, req, err)
	}
	var obj chatResponse
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", &UpstreamError{Message: truncateMessage("unparsable response: " + err.Error())}
	}
	if len(obj.Choices) == 0 {
		return "", &UpstreamError{Message: "empty choices in response"}
	}
	return obj.Choices[0].Message.Content, nil
}

func (c *GroqClient) CompleteStream(ctx context.Context, req Request, onFragment FragmentHandler) (string, error) {
	res, cancel, err := c.send(ctx, req, true)
	if err != nil {
		return "", err
	}
	defer cancel()
	defer res.Body.Close()

	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if line == "[DONE]" {
			break
		}

		var obj chatResponse
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		if len(obj.Choices) == 0 {
			continue
		}
		delta := obj.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if onFragment != nil {
			if err := onFragment(delta); err != nil {
				return "", err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", c.transportErr(ctx, req, fmt.Errorf("stream read: %w", err))
	}
	return out.String(), nil
}

// send issues the request with the per-request timeout applied. The
// returned cancel must be held until the body is fully consumed.
func (c *GroqClient) send(ctx context.Context, req Request, stream bool) (*http.Response, context.CancelFunc, error) {
	if req.Timeout <= 0 {
		req.Timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)

	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	})
	if err != nil {
		cancel()
		return nil, nil, &UpstreamError{Message: truncateMessage("marshal request: " + err.Error())}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, nil, &UpstreamError{Message: truncateMessage("create request: " + err.Error())}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, nil, c.transportErr(ctx, req, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		res.Body.Close()
		cancel()
		msg := truncateMessage(strings.TrimSpace(string(body)))
		if res.StatusCode == http.StatusTooManyRequests {
			return nil, nil, &RateLimitedError{Message: msg}
		}
		return nil, nil, &UpstreamError{
			Status:    res.StatusCode,
			Message:   msg,
			Retryable: IsRetryableStatus(res.StatusCode),
		}
	}
	return res, cancel, nil
}

func (c *GroqClient) transportErr(ctx context.Context, req Request, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Timeout: req.Timeout}
	}
	return &UpstreamError{Message: truncateMessage(err.Error()), Retryable: true}
}
