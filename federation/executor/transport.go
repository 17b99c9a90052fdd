package executor

import (
	"context"

	"github.com/n9te9/federation-core/internal/fetch"
)

// Transport is the send(request)->response collaborator ExecutorV2 delegates
// subgraph calls to instead of driving net/http itself. *fetch.Fetcher
// satisfies it, carrying APQ negotiation, batching and subscription handling
// that used to have no caller outside fetch_test.go.
type Transport interface {
	Do(ctx context.Context, req fetch.Request) (*fetch.Response, error)
}
