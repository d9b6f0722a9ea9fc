package core

import (
	"context"
	"sync"

	"github.com/finqa/finqa-agent-go/pkg/agent"
)

// AsyncClient runs independent invocations concurrently against the shared
// memory store.
//
// All async methods return channels that will receive the results when the
// operations complete. Wait blocks until every started operation is done.
//
// Example:
//
//	asyncClient, _ := core.NewAsyncClient(config)
//	defer asyncClient.Close()
//
//	first := asyncClient.InvokeAsync(ctx, "基金000001的管理人是谁")
//	second := asyncClient.InvokeAsync(ctx, "查询20210105日600519的收盘价")
//	for _, ch := range []<-chan *core.InvokeResult{first, second} {
//	    r := <-ch
//	    fmt.Println(r.Result.FinalAnswer, r.Error)
//	}
type AsyncClient struct {
	*Client
	wg sync.WaitGroup
}

// InvokeResult is delivered by InvokeAsync.
type InvokeResult struct {
	Result *agent.Result
	Error  error
}

// NewAsyncClient creates a new asynchronous client.
func NewAsyncClient(cfg *Config, opts ...ClientOption) (*AsyncClient, error) {
	client, err := NewClient(cfg, opts...)
	if err != nil {
		return nil, err
	}

	return &AsyncClient{
		Client: client,
	}, nil
}

// InvokeAsync answers query in a separate goroutine.
//
// Returns:
//   - <-chan *InvokeResult: Channel that receives exactly one result, then is closed
func (ac *AsyncClient) InvokeAsync(ctx context.Context, query string) <-chan *InvokeResult {
	resultChan := make(chan *InvokeResult, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		res, err := ac.Invoke(ctx, query)
		resultChan <- &InvokeResult{
			Result: res,
			Error:  err,
		}
		close(resultChan)
	}()

	return resultChan
}

// Wait waits for all async operations to complete.
func (ac *AsyncClient) Wait() {
	ac.wg.Wait()
}

// Close waits for pending operations and then closes the client.
func (ac *AsyncClient) Close() error {
	ac.Wait()
	return ac.Client.Close()
}
