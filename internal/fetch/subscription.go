package fetch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SubscriptionHandle is a live subscription a caller can receive events from
// and eventually close.
type SubscriptionHandle struct {
	ID      string
	Events  <-chan Response
	closeFn func()
}

func (h *SubscriptionHandle) Close() {
	if h.closeFn != nil {
		h.closeFn()
	}
}

// subscriptionEntry backs CallbackRouter's dedup-by-content-hash table: a
// second subscriber attaches to the existing handle instead of re-issuing
// the subscribe.
type subscriptionEntry struct {
	handle      *SubscriptionHandle
	subscribers int
	broadcast   chan Response
}

func contentHash(subgraph, query string, variables map[string]interface{}) string {
	h := sha256.New()
	h.Write([]byte(subgraph))
	h.Write([]byte{0})
	h.Write([]byte(query))
	h.Write([]byte{0})
	for k, v := range variables {
		fmt.Fprintf(h, "%s=%v;", k, v)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HMACVerifier derives the callback-subscription verifier from the
// subscription id and a process-wide secret.
func HMACVerifier(secret []byte, subscriptionID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(subscriptionID))
	return hex.EncodeToString(mac.Sum(nil))
}

// callbackSubscribe implements the Callback subscription mode: POST an
// initial request carrying extensions.subscription, register a handle on
// f.Callbacks (fed through CallbackRouter.Deliver), and return the subgraph's
// response to that initial request.
func (f *Fetcher) callbackSubscribe(ctx context.Context, req Request) (*Response, error) {
	if f.Callbacks == nil {
		return nil, fmt.Errorf("fetch: callback subscriptions require Fetcher.Callbacks to be configured")
	}

	hash := contentHash(req.Subgraph, req.Query, req.Variables)
	if existing := f.Callbacks.attach(hash); existing != nil {
		return &Response{Extensions: map[string]interface{}{"subscription_id": existing.ID}}, nil
	}

	subscriptionID := hash
	verifier := HMACVerifier(f.Callbacks.Secret, subscriptionID)

	body := map[string]interface{}{
		"query": req.Query,
		"extensions": map[string]interface{}{
			"subscription": map[string]interface{}{
				"subscription_id":     subscriptionID,
				"callback_url":        f.Callbacks.CallbackURL,
				"verifier":            verifier,
				"heartbeat_interval_ms": f.Callbacks.HeartbeatInterval.Milliseconds(),
			},
		},
	}
	if len(req.Variables) > 0 {
		body["variables"] = req.Variables
	}

	resp, err := f.sendOnce(ctx, req, func(b map[string]interface{}) {
		for k, v := range body {
			b[k] = v
		}
	})
	if err != nil {
		return nil, err
	}

	f.Callbacks.register(hash, subscriptionID)
	return resp, nil
}

// CallbackRouter independently delivers subscription events received on the
// HTTP callback endpoint to the matching subscriber handle.
type CallbackRouter struct {
	Secret            []byte
	CallbackURL       string
	HeartbeatInterval time.Duration

	mu      sync.Mutex
	byHash  map[string]*subscriptionEntry
}

func NewCallbackRouter(secret []byte, callbackURL string, heartbeat time.Duration) *CallbackRouter {
	return &CallbackRouter{Secret: secret, CallbackURL: callbackURL, HeartbeatInterval: heartbeat, byHash: make(map[string]*subscriptionEntry)}
}

func (r *CallbackRouter) attach(hash string) *SubscriptionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byHash[hash]; ok {
		e.subscribers++
		return e.handle
	}
	return nil
}

func (r *CallbackRouter) register(hash, subscriptionID string) *SubscriptionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan Response, 16)
	handle := &SubscriptionHandle{ID: subscriptionID, Events: ch}
	r.byHash[hash] = &subscriptionEntry{handle: handle, subscribers: 1, broadcast: ch}
	return handle
}

// Deliver is called by the callback HTTP endpoint for every event notified
// by the subgraph, verified by the caller against Secret before reaching
// here.
func (r *CallbackRouter) Deliver(subscriptionID string, payload Response) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.byHash {
		if e.handle.ID == subscriptionID {
			select {
			case e.broadcast <- payload:
			default:
			}
			return true
		}
	}
	return false
}

// subProtocols are negotiated in order of preference.
var subProtocols = []string{"graphql-transport-ws", "graphql-ws"}

// OpenPassthroughWS opens a WebSocket to the subgraph, negotiates a
// sub-protocol, forwards the operation, and returns a handle multiplexing
// its frames as Responses.
func (f *Fetcher) OpenPassthroughWS(ctx context.Context, req Request) (*SubscriptionHandle, error) {
	wsURL, err := toWebSocketURL(req.Host)
	if err != nil {
		return nil, fmt.Errorf("fetch: passthrough ws: %w", err)
	}

	dialer := websocket.Dialer{Subprotocols: subProtocols}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: passthrough ws dial %s: %w", wsURL, err)
	}
	_ = resp

	initMsg := map[string]interface{}{
		"type": "connection_init",
	}
	if err := conn.WriteJSON(initMsg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("fetch: passthrough ws connection_init: %w", err)
	}

	startMsg := map[string]interface{}{
		"id":   req.Subgraph,
		"type": "subscribe",
		"payload": map[string]interface{}{
			"query":     req.Query,
			"variables": req.Variables,
		},
	}
	if err := conn.WriteJSON(startMsg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("fetch: passthrough ws subscribe: %w", err)
	}

	events := make(chan Response, 16)
	closed := make(chan struct{})
	go pumpWSFrames(conn, events, closed)
	go heartbeatWS(conn, f.heartbeatInterval(), closed)

	return &SubscriptionHandle{
		ID:     req.Subgraph,
		Events: events,
		closeFn: func() {
			close(closed)
			conn.Close()
		},
	}, nil
}

func (f *Fetcher) heartbeatInterval() time.Duration {
	if f.Callbacks != nil && f.Callbacks.HeartbeatInterval > 0 {
		return f.Callbacks.HeartbeatInterval
	}
	return 30 * time.Second
}

func pumpWSFrames(conn *websocket.Conn, events chan<- Response, closed <-chan struct{}) {
	defer close(events)
	for {
		var frame struct {
			Type    string   `json:"type"`
			Payload Response `json:"payload"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		select {
		case <-closed:
			return
		default:
		}
		if frame.Type == "next" || frame.Type == "data" {
			events <- frame.Payload
		}
	}
}

func heartbeatWS(conn *websocket.Conn, interval time.Duration, closed <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func toWebSocketURL(host string) (string, error) {
	u, err := url.Parse(host)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}
