package fetch

import (
	"fmt"
	"mime"
	"strings"

	"github.com/goccy/go-json"
)

// acceptedMediaTypes is listed back to the operator in the "didn't return
// JSON" error.
var acceptedMediaTypes = []string{"application/json", "application/graphql-response+json"}

// ParseSubgraphResponse classifies and parses an HTTP response body
// according to its declared content type and status code.
func ParseSubgraphResponse(contentType string, status int, body []byte) (*Response, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	mediaType = strings.TrimSpace(mediaType)

	switch {
	case mediaType == "application/graphql-response+json":
		resp, err := decodeResponse(body)
		if err != nil {
			return nil, fmt.Errorf("fetch: malformed graphql-response+json body: %w", err)
		}
		return withStatusError(resp, status), nil

	case mediaType == "application/json" && status >= 200 && status < 300:
		resp, err := decodeResponse(body)
		if err != nil {
			return nil, fmt.Errorf("fetch: malformed response body: %w", err)
		}
		return resp, nil

	case mediaType == "application/json":
		resp, err := decodeResponse(body)
		if err != nil {
			return &Response{Errors: []GraphQLError{{
				Message: fmt.Sprintf("subgraph returned malformed JSON with status %d: %s", status, string(body)),
			}}}, nil
		}
		return withStatusError(resp, status), nil

	default:
		return &Response{Errors: []GraphQLError{{
			Message: fmt.Sprintf("subgraph didn't return JSON (content-type %q); accepted: %s", contentType, strings.Join(acceptedMediaTypes, ", ")),
		}}}, nil
	}
}

func decodeResponse(body []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// withStatusError prepends a SubrequestHttpError{status_code} entry for any
// non-2xx status.
func withStatusError(resp *Response, status int) *Response {
	if status >= 200 && status < 300 {
		return resp
	}
	httpErr := GraphQLError{
		Message: fmt.Sprintf("SubrequestHttpError: %d", status),
		Extensions: map[string]interface{}{
			"code":        "SUBREQUEST_HTTP_ERROR",
			"status_code": status,
		},
	}
	resp.Errors = append([]GraphQLError{httpErr}, resp.Errors...)
	return resp
}
