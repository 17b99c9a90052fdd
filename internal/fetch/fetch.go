// Package fetch implements the subgraph fetcher: APQ negotiation, batching,
// subscriptions, content-type handling, and nullability repair sitting
// between the planner/executor and the wire, grounded on executor_v2.go's
// sendRequest but generalized to the full request state machine.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// State names the fetcher's per-request state machine. It exists for observability/debugging — Do runs the
// transitions directly rather than stepping an exported state value.
type State int

const (
	StateReady State = iota
	StateDecide
	StateWaitForBatch
	StateEntityLookup
	StateRootLookup
	StateSendHTTP
	StateMerge
	StateStore
	StateComplete
	StateCallback
	StatePassthroughWS
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateDecide:
		return "DECIDE"
	case StateWaitForBatch:
		return "WAIT_FOR_BATCH"
	case StateEntityLookup:
		return "ENTITY_LOOKUP"
	case StateRootLookup:
		return "ROOT_LOOKUP"
	case StateSendHTTP:
		return "SEND_HTTP"
	case StateMerge:
		return "MERGE"
	case StateStore:
		return "STORE"
	case StateComplete:
		return "COMPLETE"
	case StateCallback:
		return "CALLBACK"
	case StatePassthroughWS:
		return "PASSTHROUGH_WS"
	}
	return "UNKNOWN"
}

// Request describes one subgraph call.
type Request struct {
	Subgraph        string
	Host            string
	Query           string
	Variables       map[string]interface{}
	Representations []interface{} // non-nil for an _entities call

	Batched      bool
	Subscription bool
	PassthroughWS bool

	// DebugEcho mirrors the debug-echo extension: when true the response
	// extensions carry back the outgoing request for introspection.
	DebugEcho bool
}

// Response is a parsed subgraph GraphQL response.
type Response struct {
	Data       map[string]interface{} `json:"data,omitempty"`
	Errors     []GraphQLError         `json:"errors,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// GraphQLError matches the wire shape of a GraphQL error entry.
type GraphQLError struct {
	Message    string                 `json:"message"`
	Path       []interface{}          `json:"path,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// Fetcher sends subgraph requests, negotiating APQ and routing through
// batching aggregators.
type Fetcher struct {
	HTTPClient *http.Client
	APQ        *APQState
	Batchers   *BatchRegistry
	// Callbacks is nil unless the gateway is configured for callback-mode
	// subscriptions.
	Callbacks *CallbackRouter
}

// NewFetcher builds a Fetcher with fresh APQ/batch state.
func NewFetcher(client *http.Client) *Fetcher {
	return &Fetcher{
		HTTPClient: client,
		APQ:        NewAPQState(),
		Batchers:   NewBatchRegistry(client),
	}
}

// Do runs one request through DECIDE → ... → COMPLETE. It does not consult
// the response cache or entity-lookup short-circuits itself — those are the
// caller's responsibility (internal/cache); Do implements the SEND_HTTP leg
// and everything downstream of it, plus the batching/subscription branches.
func (f *Fetcher) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Subscription {
		if req.PassthroughWS {
			return nil, fmt.Errorf("fetch: passthrough WS subscriptions are driven via OpenPassthroughWS, not Do")
		}
		return f.callbackSubscribe(ctx, req)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	if req.Batched {
		return f.Batchers.Submit(ctx, req)
	}

	return f.sendHTTP(ctx, req)
}

// sendHTTP implements SEND_HTTP including the APQ retry ladder.
func (f *Fetcher) sendHTTP(ctx context.Context, req Request) (*Response, error) {
	if f.APQ.Enabled(req.Subgraph) {
		resp, err := f.sendOnce(ctx, req, apqHashOnly(req.Query))
		if err != nil {
			return nil, err
		}
		if code, ok := apqErrorCode(resp); ok {
			switch code {
			case "PERSISTED_QUERY_NOT_SUPPORTED":
				f.APQ.Disable(req.Subgraph)
				return f.sendOnce(ctx, req, apqFullQuery(req.Query))
			case "PERSISTED_QUERY_NOT_FOUND":
				return f.sendOnce(ctx, req, apqHashAndQuery(req.Query))
			}
		}
		return resp, nil
	}
	return f.sendOnce(ctx, req, apqFullQuery(req.Query))
}

// apqErrorCode inspects resp for the APQ miss signals: either
// a top-level message or an extensions.code.
func apqErrorCode(resp *Response) (string, bool) {
	for _, e := range resp.Errors {
		if e.Message == "PersistedQueryNotSupported" {
			return "PERSISTED_QUERY_NOT_SUPPORTED", true
		}
		if e.Message == "PersistedQueryNotFound" {
			return "PERSISTED_QUERY_NOT_FOUND", true
		}
		if code, ok := e.Extensions["code"].(string); ok {
			if code == "PERSISTED_QUERY_NOT_SUPPORTED" || code == "PERSISTED_QUERY_NOT_FOUND" {
				return code, true
			}
		}
	}
	return "", false
}

// sendOnce performs a single HTTP round trip with the given body-shaping
// function applied to the outgoing request.
func (f *Fetcher) sendOnce(ctx context.Context, req Request, shape func(map[string]interface{})) (*Response, error) {
	body := map[string]interface{}{}
	if len(req.Variables) > 0 {
		body["variables"] = req.Variables
	}
	if req.Representations != nil {
		if body["variables"] == nil {
			body["variables"] = map[string]interface{}{}
		}
		body["variables"].(map[string]interface{})["representations"] = req.Representations
	}
	shape(body)

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("fetch: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Host, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, application/graphql-response+json")

	resp, err := f.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch: send request to %s: %w", req.Subgraph, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: read response from %s: %w", req.Subgraph, err)
	}

	return ParseSubgraphResponse(resp.Header.Get("Content-Type"), resp.StatusCode, raw)
}

// DefaultTimeout is applied by Do to non-subscription requests when a caller
// doesn't set its own deadline on ctx.
const DefaultTimeout = 30 * time.Second
