package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/frossi85/researcher-agent/retrying"
)

type openAIClient struct {
	client *openai.Client
	model  string
	policy retrying.Policy
}

func NewOpenAIClient(opts Options) Client {
	cfg := openai.DefaultConfig(opts.OpenAIAPIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retrying.DefaultPolicy()
	}

	return &openAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  opts.Model,
		policy: opts.Policy,
	}
}

func (c *openAIClient) Generate(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, msg := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	var resp openai.ChatCompletionResponse
	err := c.policy.Do(ctx, func() error {
		r, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return classifyChatError(err)
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai chat completion returned no choices", retrying.ErrProvider)
	}

	return resp.Choices[0].Message.Content, nil
}

func classifyChatError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", retrying.ErrRateLimited, err)
		case apiErr.HTTPStatusCode >= 500:
			return retrying.Transient(fmt.Errorf("%w: %v", retrying.ErrProvider, err))
		case apiErr.HTTPStatusCode >= 400:
			return fmt.Errorf("%w: %v", retrying.ErrInvalidInput, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", retrying.ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", retrying.ErrTimeout, err)
	}

	return retrying.Transient(fmt.Errorf("%w: %v", retrying.ErrProvider, err))
}
