package fetch_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n9te9/federation-core/internal/fetch"
)

func TestParseSubgraphResponse_JSON2xx(t *testing.T) {
	resp, err := fetch.ParseSubgraphResponse("application/json", 200, []byte(`{"data":{"a":1}}`))
	require.NoError(t, err)
	assert.Equal(t, float64(1), resp.Data["a"])
}

func TestParseSubgraphResponse_GraphQLResponseJSONIgnoresStatus(t *testing.T) {
	resp, err := fetch.ParseSubgraphResponse("application/graphql-response+json", 400, []byte(`{"errors":[{"message":"bad"}]}`))
	require.NoError(t, err)
	require.Len(t, resp.Errors, 2)
	assert.Contains(t, resp.Errors[0].Message, "SubrequestHttpError: 400")
	assert.Equal(t, "bad", resp.Errors[1].Message)
}

func TestParseSubgraphResponse_JSONNon2xxMalformedWrapsBody(t *testing.T) {
	resp, err := fetch.ParseSubgraphResponse("application/json", 500, []byte(`not json`))
	require.NoError(t, err)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0].Message, "not json")
	assert.Contains(t, resp.Errors[0].Message, "500")
}

func TestParseSubgraphResponse_UnknownContentType(t *testing.T) {
	resp, err := fetch.ParseSubgraphResponse("text/html", 200, []byte(`<html></html>`))
	require.NoError(t, err)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0].Message, "didn't return JSON")
}

func TestAPQState_DisableSticks(t *testing.T) {
	s := fetch.NewAPQState()
	assert.True(t, s.Enabled("products"))
	s.Disable("products")
	assert.False(t, s.Enabled("products"))
	assert.True(t, s.Enabled("reviews"), "disabling one subgraph must not affect another")
}

func TestDo_APQFallsBackOnNotSupported(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			w.Write([]byte(`{"errors":[{"message":"PersistedQueryNotSupported"}]}`))
			return
		}
		w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	f := fetch.NewFetcher(srv.Client())
	resp, err := f.Do(t.Context(), fetch.Request{Subgraph: "products", Host: srv.URL, Query: "{ ok }"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, true, resp.Data["ok"])
	assert.False(t, f.APQ.Enabled("products"))
}

func TestBatchRegistry_FansOutInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"data":{"n":1}},{"data":{"n":2}}]`))
	}))
	defer srv.Close()

	reg := fetch.NewBatchRegistry(srv.Client())
	reg.Window = 5 * time.Millisecond

	type result struct {
		resp *fetch.Response
		err  error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			r, err := reg.Submit(t.Context(), fetch.Request{Subgraph: "products", Host: srv.URL, Batched: true})
			results <- result{r, err}
		}()
	}

	got := map[float64]bool{}
	for i := 0; i < 2; i++ {
		r := <-results
		require.NoError(t, r.err)
		got[r.resp.Data["n"].(float64)] = true
	}
	assert.True(t, got[1] && got[2])
}

func TestRepairEntities_RenumbersAndNullsFatalSlots(t *testing.T) {
	merged, errs := fetch.RepairEntities(
		3,
		[]int{1, 2},
		[]interface{}{nil, map[string]interface{}{"id": "2"}},
		[]fetch.GraphQLError{{Message: "boom", Path: []interface{}{"_entities", 0}}},
		1,
	)

	require.Len(t, merged, 3)
	assert.Nil(t, merged[0])
	assert.Nil(t, merged[1])
	assert.NotNil(t, merged[2])

	require.Len(t, errs, 1)
	assert.Equal(t, 1, errs[0].Path[1])
}

func TestHMACVerifier_Deterministic(t *testing.T) {
	v1 := fetch.HMACVerifier([]byte("secret"), "sub-1")
	v2 := fetch.HMACVerifier([]byte("secret"), "sub-1")
	v3 := fetch.HMACVerifier([]byte("secret"), "sub-2")
	assert.Equal(t, v1, v2)
	assert.NotEqual(t, v1, v3)
}
