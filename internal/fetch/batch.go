package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// BatchRegistry hands each subgraph its own aggregator, created lazily.
type BatchRegistry struct {
	mu         sync.Mutex
	client     *http.Client
	aggregators map[string]*batchAggregator
	// Window is how long an aggregator waits after its first Submit before
	// closing the batch and issuing the POST. Defaults to 10ms.
	Window time.Duration
}

func NewBatchRegistry(client *http.Client) *BatchRegistry {
	return &BatchRegistry{client: client, aggregators: make(map[string]*batchAggregator), Window: 10 * time.Millisecond}
}

// Submit enqueues req onto its subgraph's aggregator and blocks until that
// batch's response arrives.
func (r *BatchRegistry) Submit(ctx context.Context, req Request) (*Response, error) {
	agg := r.aggregatorFor(req.Subgraph)
	return agg.submit(ctx, req)
}

func (r *BatchRegistry) aggregatorFor(subgraph string) *batchAggregator {
	r.mu.Lock()
	defer r.mu.Unlock()
	agg, ok := r.aggregators[subgraph]
	if !ok {
		agg = &batchAggregator{client: r.client, window: r.Window}
		r.aggregators[subgraph] = agg
	}
	return agg
}

type batchWaiter struct {
	req  Request
	resp chan batchResult
}

type batchResult struct {
	resp *Response
	err  error
}

// batchAggregator assembles one array-valued HTTP body from every request
// submitted within Window of the first, issues one POST, and fans results
// back out in submission order.
type batchAggregator struct {
	client *http.Client
	window time.Duration

	mu      sync.Mutex
	pending []*batchWaiter
	timer   *time.Timer
}

func (a *batchAggregator) submit(ctx context.Context, req Request) (*Response, error) {
	w := &batchWaiter{req: req, resp: make(chan batchResult, 1)}

	a.mu.Lock()
	a.pending = append(a.pending, w)
	if a.timer == nil {
		a.timer = time.AfterFunc(a.window, a.flush)
	}
	a.mu.Unlock()

	select {
	case r := <-w.resp:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *batchAggregator) flush() {
	a.mu.Lock()
	waiters := a.pending
	a.pending = nil
	a.timer = nil
	a.mu.Unlock()

	if len(waiters) == 0 {
		return
	}

	host := waiters[0].req.Host
	body := make([]map[string]interface{}, len(waiters))
	for i, w := range waiters {
		item := map[string]interface{}{"query": w.req.Query}
		if len(w.req.Variables) > 0 {
			item["variables"] = w.req.Variables
		}
		body[i] = item
	}

	results, err := a.postBatch(host, body)
	if err != nil {
		for _, w := range waiters {
			w.resp <- batchResult{err: fmt.Errorf("fetch: batch request to %s failed: %w", host, err)}
		}
		return
	}

	if len(results) != len(waiters) {
		batchErr := fmt.Errorf("fetch: batch response length %d does not match %d waiting requests", len(results), len(waiters))
		for _, w := range waiters {
			w.resp <- batchResult{err: batchErr}
		}
		return
	}

	for i, w := range waiters {
		w.resp <- batchResult{resp: results[i]}
	}
}

func (a *batchAggregator) postBatch(host string, body []map[string]interface{}) ([]*Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, host, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var results []*Response
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("malformed batch response: %w", err)
	}
	return results, nil
}
