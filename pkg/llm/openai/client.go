// Package openai implements llm.Provider and llm.Streamer over any
// OpenAI-compatible chat completions endpoint, which covers OpenAI itself,
// Qwen (DashScope compatible mode) and DeepSeek.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/finqa/finqa-agent-go/pkg/llm"
)

// Default endpoints for the OpenAI-compatible providers.
const (
	QwenBaseURL     = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	DeepSeekBaseURL = "https://api.deepseek.com/v1"
)

// Client is an OpenAI-compatible LLM client.
//
// In buffered mode Generate issues one chat completion and returns its text.
// In streaming mode Generate reads the incremental stream and returns the
// concatenated text, so callers see the same result either way; callers that
// want the deltas use GenerateStream directly.
type Client struct {
	client *openai.Client
	model  string
	stream bool

	mu        sync.Mutex
	lastUsage llm.Usage
}

// Config is the configuration for an OpenAI-compatible LLM.
// APIKey: API key (required)
// Model: Model name, e.g. "qwen-turbo", "deepseek-chat", "gpt-4"
// BaseURL: API base URL, defaults to the OpenAI official address
// Stream: Use incremental generation instead of a single buffered response
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Stream  bool
}

// NewClient creates a new OpenAI-compatible LLM client.
//
// Args:
//   - cfg: configuration containing APIKey, Model, BaseURL and Stream
//
// Returns:
//   - *Client: client instance
//   - error: Returns an error if the configuration is invalid
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.Model == "" {
		return nil, errors.New("openai llm: model is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
		stream: cfg.Stream,
	}, nil
}

// Streaming reports whether Generate uses incremental generation.
func (c *Client) Streaming() bool {
	return c.stream
}

// Generate generates text based on the prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	messages := []llm.Message{
		{Role: "user", Content: prompt},
	}
	return c.GenerateWithMessages(ctx, messages, opts...)
}

// GenerateWithMessages generates text using message history.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	text, _, err := c.generate(ctx, messages, opts)
	return text, err
}

// GenerateWithUsage generates text based on the prompt and returns the
// token usage of this call.
func (c *Client) GenerateWithUsage(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, llm.Usage, error) {
	return c.generate(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts)
}

func (c *Client) generate(ctx context.Context, messages []llm.Message, opts []llm.GenerateOption) (string, llm.Usage, error) {
	if c.stream {
		stream, err := c.streamMessages(ctx, messages, opts...)
		if err != nil {
			return "", llm.Usage{}, err
		}
		text, usage, err := llm.Collect(stream, nil)
		if err != nil {
			return "", llm.Usage{}, err
		}
		c.setUsage(usage)
		return text, usage, nil
	}

	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(messages, opts))
	if err != nil {
		return "", llm.Usage{}, err
	}

	if len(resp.Choices) == 0 {
		return "", llm.Usage{}, errors.New("llm generation failed: no choices returned from API")
	}

	usage := llm.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	c.setUsage(usage)
	return resp.Choices[0].Message.Content, usage, nil
}

// GenerateStream starts an incremental generation for prompt.
func (c *Client) GenerateStream(ctx context.Context, prompt string, opts ...llm.GenerateOption) (<-chan llm.Chunk, error) {
	return c.streamMessages(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func (c *Client) streamMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (<-chan llm.Chunk, error) {
	req := c.buildRequest(messages, opts)
	req.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if ctx.Err() != nil {
				llm.Cancel(ctx, out)
				return
			}
			if errors.Is(err, io.EOF) {
				llm.Finish(out, llm.Chunk{Done: true})
				return
			}
			if err != nil {
				llm.Finish(out, llm.Chunk{Err: fmt.Errorf("stream recv: %w", err)})
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			if !llm.SendDelta(ctx, out, resp.Choices[0].Delta.Content) {
				llm.Cancel(ctx, out)
				return
			}
		}
	}()

	return out, nil
}

func (c *Client) buildRequest(messages []llm.Message, opts []llm.GenerateOption) openai.ChatCompletionRequest {
	options := llm.ApplyGenerateOptions(opts)

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
		TopP:        float32(options.TopP),
		Stop:        options.Stop,
	}
}

// LastUsage returns token usage of the most recent call made by any caller.
// Streamed calls report zero usage because the endpoint does not send it.
// Concurrent callers use GenerateWithUsage instead.
func (c *Client) LastUsage() llm.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsage
}

func (c *Client) setUsage(u llm.Usage) {
	c.mu.Lock()
	c.lastUsage = u
	c.mu.Unlock()
}

// Close closes the client connection.
// The SDK client does not require explicit closing; this method is retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}

var (
	_ llm.Provider      = (*Client)(nil)
	_ llm.Streamer      = (*Client)(nil)
	_ llm.UsageReporter = (*Client)(nil)
)
