// Package llm provides interfaces and utilities for Large Language Model (LLM) providers.
//
// It defines the Provider interface for buffered generation, the Streamer
// interface for incremental generation, message types and generation options.
package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Provider defines the interface for LLM providers.
//
// All LLM implementations must implement this interface. A provider that can
// also deliver partial output implements Streamer.
type Provider interface {
	// Generate generates text from a prompt.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - prompt: The input prompt text
	//   - opts: Optional generation parameters (temperature, max tokens, etc.)
	//
	// Returns the generated text and any error.
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)

	// GenerateWithMessages generates text from a conversation history.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - messages: Conversation history (system, user, assistant messages)
	//   - opts: Optional generation parameters
	//
	// Returns the generated text and any error.
	GenerateWithMessages(ctx context.Context, messages []Message, opts ...GenerateOption) (string, error)

	// Close closes the provider and releases resources.
	Close() error
}

// Streamer is implemented by providers that deliver output incrementally.
//
// The returned channel yields zero or more delta chunks followed by exactly
// one terminal chunk (Done set, or Err set) and is then closed. A canceled
// ctx ends the stream with an Err chunk wrapping ctx.Err(). Callers must
// drain the channel.
type Streamer interface {
	GenerateStream(ctx context.Context, prompt string, opts ...GenerateOption) (<-chan Chunk, error)
}

// UsageReporter is implemented by providers that return the token usage of
// a call together with its text.
type UsageReporter interface {
	GenerateWithUsage(ctx context.Context, prompt string, opts ...GenerateOption) (string, Usage, error)
}

// Chunk is one event of a streamed generation.
type Chunk struct {
	// Delta is the text produced since the previous chunk.
	Delta string

	// Done marks the terminal chunk of a successful stream.
	Done bool

	// Usage is set on the terminal chunk when the backend reports it.
	Usage Usage

	// Err is set on the terminal chunk of a failed stream.
	Err error
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// Collect drains a stream, calling onDelta (if non-nil) for every non-empty
// delta, and returns the full text. The terminal chunk's error, if any, is
// returned along with the text received so far. A stream that closes
// without a terminal chunk is truncated and reports io.ErrUnexpectedEOF.
func Collect(stream <-chan Chunk, onDelta func(string)) (string, Usage, error) {
	var (
		sb    strings.Builder
		usage Usage
		done  bool
		err   error
	)
	for chunk := range stream {
		if done || err != nil {
			// anything after the terminal chunk is ignored, but drained
			continue
		}
		if chunk.Err != nil {
			err = chunk.Err
			continue
		}
		if chunk.Delta != "" {
			sb.WriteString(chunk.Delta)
			if onDelta != nil {
				onDelta(chunk.Delta)
			}
		}
		if chunk.Done {
			usage = chunk.Usage
			done = true
		}
	}
	if err != nil {
		return sb.String(), usage, err
	}
	if !done {
		return sb.String(), usage, fmt.Errorf("stream closed without terminal chunk: %w", io.ErrUnexpectedEOF)
	}
	return sb.String(), usage, nil
}

// SendDelta delivers a delta chunk unless ctx is done first. On false the
// producer ends the stream with Cancel.
func SendDelta(ctx context.Context, out chan<- Chunk, delta string) bool {
	select {
	case out <- Chunk{Delta: delta}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Finish delivers the terminal chunk. It does not watch ctx: every stream
// ends with exactly one terminal chunk, and consumers drain the channel.
func Finish(out chan<- Chunk, chunk Chunk) {
	out <- chunk
}

// Cancel ends a stream whose ctx is done.
func Cancel(ctx context.Context, out chan<- Chunk) {
	Finish(out, Chunk{Err: fmt.Errorf("stream canceled: %w", ctx.Err())})
}

// Message represents a single message in a conversation.
type Message struct {
	// Role is the message role: "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the message content text.
	Content string `json:"content"`
}

// GenerateOptions contains options for text generation.
type GenerateOptions struct {
	// Temperature controls randomness (0.0-2.0). Higher = more random.
	Temperature float64

	// MaxTokens limits the maximum number of tokens in the response.
	MaxTokens int

	// TopP controls nucleus sampling (0.0-1.0). Higher = more diverse.
	TopP float64

	// Stop contains stop sequences that will end generation.
	Stop []string
}

// GenerateOption is a function type for configuring generation options.
type GenerateOption func(*GenerateOptions)

// WithTemperature sets the temperature for text generation.
//
// Example:
//
//	text, _ := provider.Generate(ctx, "Hello", llm.WithTemperature(0.1))
func WithTemperature(temp float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Temperature = temp
	}
}

// WithMaxTokens sets the maximum number of tokens in the response.
func WithMaxTokens(max int) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.MaxTokens = max
	}
}

// WithTopP sets the top-p (nucleus sampling) parameter.
func WithTopP(topP float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.TopP = topP
	}
}

// WithStop sets stop sequences. The agent uses this to stop the model before
// it invents its own observations.
func WithStop(stop ...string) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Stop = append([]string(nil), stop...)
	}
}

// ApplyGenerateOptions applies a slice of GenerateOption functions to create GenerateOptions.
//
// Default values: Temperature=0.7, MaxTokens=1000, TopP=1.0.
func ApplyGenerateOptions(opts []GenerateOption) *GenerateOptions {
	options := &GenerateOptions{
		Temperature: 0.7,
		MaxTokens:   1000,
		TopP:        1.0,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
