// Package ollama implements llm.Provider and llm.Streamer over the Ollama
// chat API, for running the agent against a locally deployed model.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/finqa/finqa-agent-go/pkg/llm"
)

// DefaultBaseURL is the address of a local Ollama service.
const DefaultBaseURL = "http://localhost:11434"

// Client is an Ollama LLM client.
type Client struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
	stream  bool

	mu        sync.Mutex
	lastUsage llm.Usage
}

// Config is the configuration for Ollama LLM.
// APIKey: Ollama API key (optional, usually not required for local deployment)
// Model: Model name to use, defaults to "qwen2.5:14b"
// BaseURL: Ollama service address, defaults to DefaultBaseURL
// Stream: Use incremental generation instead of a single buffered response
// HTTPClient: Custom HTTP client, if nil uses default client (120 seconds timeout)
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Stream     bool
	HTTPClient *http.Client
}

// NewClient creates a new Ollama LLM client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "qwen2.5:14b"
	}

	client := cfg.HTTPClient
	if client == nil {
		// local models can be slow on the first call while they load
		client = &http.Client{
			Timeout: 120 * time.Second,
		}
	}

	return &Client{
		client:  client,
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		stream:  cfg.Stream,
	}, nil
}

// Streaming reports whether Generate uses incremental generation.
func (c *Client) Streaming() bool {
	return c.stream
}

type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []llm.Message          `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	Error           string `json:"error,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (r *chatResponse) usage() llm.Usage {
	return llm.Usage{
		PromptTokens:     r.PromptEvalCount,
		CompletionTokens: r.EvalCount,
		TotalTokens:      r.PromptEvalCount + r.EvalCount,
	}
}

// Generate generates text based on the prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	messages := []llm.Message{
		{Role: "user", Content: prompt},
	}
	return c.GenerateWithMessages(ctx, messages, opts...)
}

// GenerateWithMessages generates text using message history.
// Note: Ollama uses different parameter names (num_predict instead of max_tokens).
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
		stream, err := c.streamMessages(ctx, messages, opts)
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

	resp, err := c.do(ctx, messages, false, opts)
	if err != nil {
		return "", llm.Usage{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var response chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", llm.Usage{}, fmt.Errorf("decode response: %w", err)
	}
	if response.Error != "" {
		return "", llm.Usage{}, fmt.Errorf("ollama: %s", response.Error)
	}
	if response.Message.Content == "" {
		return "", llm.Usage{}, errors.New("llm generation failed: empty response from Ollama API")
	}

	usage := response.usage()
	c.setUsage(usage)
	return response.Message.Content, usage, nil
}

// GenerateStream starts an incremental generation. Ollama streams one JSON
// object per line; the last one has done set and carries the token counts.
func (c *Client) GenerateStream(ctx context.Context, prompt string, opts ...llm.GenerateOption) (<-chan llm.Chunk, error) {
	return c.streamMessages(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts)
}

func (c *Client) streamMessages(ctx context.Context, messages []llm.Message, opts []llm.GenerateOption) (<-chan llm.Chunk, error) {
	resp, err := c.do(ctx, messages, true, opts)
	if err != nil {
		return nil, err
	}

	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var event chatResponse
			if err := json.Unmarshal(line, &event); err != nil {
				llm.Finish(out, llm.Chunk{Err: fmt.Errorf("decode stream: %w", err)})
				return
			}
			if event.Error != "" {
				llm.Finish(out, llm.Chunk{Err: fmt.Errorf("ollama: %s", event.Error)})
				return
			}
			if event.Message.Content != "" {
				if !llm.SendDelta(ctx, out, event.Message.Content) {
					llm.Cancel(ctx, out)
					return
				}
			}
			if event.Done {
				llm.Finish(out, llm.Chunk{Done: true, Usage: event.usage()})
				return
			}
		}

		if ctx.Err() != nil {
			llm.Cancel(ctx, out)
			return
		}
		err := scanner.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		llm.Finish(out, llm.Chunk{Err: fmt.Errorf("stream recv: %w", err)})
	}()

	return out, nil
}

func (c *Client) do(ctx context.Context, messages []llm.Message, stream bool, opts []llm.GenerateOption) (*http.Response, error) {
	options := llm.ApplyGenerateOptions(opts)

	modelOptions := map[string]interface{}{
		"temperature": options.Temperature,
		"num_predict": options.MaxTokens,
		"top_p":       options.TopP,
	}
	if len(options.Stop) > 0 {
		modelOptions["stop"] = options.Stop
	}

	jsonData, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   stream,
		Options:  modelOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

// LastUsage returns token usage of the most recent call made by any caller.
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
// HTTP client does not require explicit closing; this method is retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}

var (
	_ llm.Provider      = (*Client)(nil)
	_ llm.Streamer      = (*Client)(nil)
	_ llm.UsageReporter = (*Client)(nil)
)
