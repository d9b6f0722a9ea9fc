package llm_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/finqa/finqa-agent-go/pkg/llm"
)

func TestApplyGenerateOptions(t *testing.T) {
	opts := llm.ApplyGenerateOptions(nil)
	assert.Equal(t, 0.7, opts.Temperature)
	assert.Equal(t, 1000, opts.MaxTokens)
	assert.Equal(t, 1.0, opts.TopP)
	assert.Empty(t, opts.Stop)

	opts = llm.ApplyGenerateOptions([]llm.GenerateOption{
		llm.WithTemperature(0.1),
		llm.WithMaxTokens(256),
		llm.WithTopP(0.9),
		llm.WithStop("Observation:"),
	})
	assert.Equal(t, 0.1, opts.Temperature)
	assert.Equal(t, 256, opts.MaxTokens)
	assert.Equal(t, 0.9, opts.TopP)
	assert.Equal(t, []string{"Observation:"}, opts.Stop)
}

func TestCollect(t *testing.T) {
	stream := make(chan llm.Chunk, 4)
	stream <- llm.Chunk{Delta: "Thought: "}
	stream <- llm.Chunk{Delta: "x"}
	stream <- llm.Chunk{Done: true, Usage: llm.Usage{TotalTokens: 7}}
	close(stream)

	var deltas []string
	text, usage, err := llm.Collect(stream, func(d string) { deltas = append(deltas, d) })
	assert.NoError(t, err)
	assert.Equal(t, "Thought: x", text)
	assert.Equal(t, 7, usage.TotalTokens)
	assert.Equal(t, []string{"Thought: ", "x"}, deltas)
}

func TestCollectError(t *testing.T) {
	stream := make(chan llm.Chunk, 2)
	stream <- llm.Chunk{Delta: "partial"}
	stream <- llm.Chunk{Err: errors.New("connection reset")}
	close(stream)

	text, _, err := llm.Collect(stream, nil)
	assert.EqualError(t, err, "connection reset")
	assert.Equal(t, "partial", text)
}

func TestCollectTruncated(t *testing.T) {
	stream := make(chan llm.Chunk, 1)
	stream <- llm.Chunk{Delta: "Action: finish[The close was 1"}
	close(stream)

	text, _, err := llm.Collect(stream, nil)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "Action: finish[The close was 1", text)
}

func TestSendDeltaAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// nobody is receiving, so only ctx.Done can win
	out := make(chan llm.Chunk)
	assert.False(t, llm.SendDelta(ctx, out, "never read"))

	go func() {
		defer close(out)
		llm.Cancel(ctx, out)
	}()

	chunk := <-out
	assert.ErrorIs(t, chunk.Err, context.Canceled)
	_, ok := <-out
	assert.False(t, ok)
}

func TestUsageAdd(t *testing.T) {
	u := llm.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}.Add(llm.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})
	assert.Equal(t, llm.Usage{PromptTokens: 11, CompletionTokens: 22, TotalTokens: 33}, u)
}
