package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/frossi85/researcher-agent/retrying"
)

type ollamaClient struct {
	host   string
	model  string
	client *http.Client
	policy retrying.Policy
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error"`
}

func NewOllamaClient(opts Options) Client {
	host := strings.TrimRight(opts.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retrying.DefaultPolicy()
	}

	return &ollamaClient{
		host:  host,
		model: opts.Model,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		policy: opts.Policy,
	}
}

func (c *ollamaClient) Generate(ctx context.Context, messages []Message) (string, error) {
	payload := ollamaChatRequest{
		Model:  c.model,
		Stream: false,
	}

	payload.Messages = make([]ollamaChatMessage, len(messages))
	for i := range messages {
		payload.Messages[i] = ollamaChatMessage(messages[i])
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	var answer string
	err = c.policy.Do(ctx, func() error {
		content, err := c.chat(ctx, body)
		if err != nil {
			return err
		}
		answer = content
		return nil
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}

func (c *ollamaClient) chat(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", fmt.Errorf("%w: call ollama chat API: %v", retrying.ErrTimeout, err)
		}
		return "", retrying.Transient(fmt.Errorf("call ollama chat API: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", fmt.Errorf("read ollama chat error body: %w", readErr)
		}
		detail := strings.TrimSpace(string(data))
		if detail == "" {
			detail = resp.Status
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return "", fmt.Errorf("%w: ollama chat API: %s", retrying.ErrRateLimited, detail)
		case resp.StatusCode >= 500:
			return "", retrying.Transient(fmt.Errorf("%w: ollama chat API: %s", retrying.ErrProvider, detail))
		default:
			return "", fmt.Errorf("%w: ollama chat API: %s", retrying.ErrInvalidInput, detail)
		}
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}

	if parsed.Error != "" {
		return "", fmt.Errorf("%w: ollama chat error: %s", retrying.ErrProvider, parsed.Error)
	}

	return parsed.Message.Content, nil
}
