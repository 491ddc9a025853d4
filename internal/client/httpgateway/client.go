// Package httpgateway implements client.Gateway over the marketplace REST
// API and its realtime websocket.
package httpgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dom/car-marketplace/internal/client"
	"github.com/dom/car-marketplace/internal/domain"
)

// refreshSkew renews the access token this long before it expires.
const refreshSkew = 30 * time.Second

// Gateway talks to one marketplace backend on behalf of one user.
type Gateway struct {
	baseURL    string
	apiURL     string
	httpClient *http.Client
	tokens     TokenStore

	mu       sync.RWMutex
	identity *client.Identity

	refreshMu sync.Mutex
	changes   chan client.SessionEvent

	socket *socket
}

type Option func(*Gateway)

// WithHTTPClient replaces the default client with a 30s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.httpClient = c }
}

// New creates a gateway for the backend at baseURL, e.g.
// "http://localhost:8080". tokens persists the session between runs; nil
// keeps it in memory.
func New(baseURL string, tokens TokenStore, opts ...Option) *Gateway {
	baseURL = strings.TrimRight(baseURL, "/")
	if tokens == nil {
		tokens = &MemoryTokens{}
	}
	g := &Gateway{
		baseURL: baseURL,
		apiURL:  baseURL + "/api/v1",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tokens:  tokens,
		changes: make(chan client.SessionEvent, 8),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.socket = newSocket(g)
	return g
}

// Close drops the realtime connection.
func (g *Gateway) Close() error {
	return g.socket.close()
}

func (g *Gateway) SessionChanges() <-chan client.SessionEvent { return g.changes }

func (g *Gateway) current() *client.Identity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.identity
}

// Identity returns the signed-in identity, if any.
func (g *Gateway) Identity() (*client.Identity, bool) {
	id := g.current()
	if id == nil {
		return nil, false
	}
	cp := *id
	return &cp, true
}

func (g *Gateway) setIdentity(id *client.Identity) error {
	g.mu.Lock()
	g.identity = id
	g.mu.Unlock()
	if id == nil {
		return g.tokens.Clear()
	}
	return g.tokens.Save(id)
}

func (g *Gateway) emit(ev client.SessionEvent) {
	select {
	case g.changes <- ev:
	default:
		log.Printf("WARN [httpgateway.Gateway] session event %v dropped", ev.Kind)
	}
}

// expire forgets the session after the backend refused to refresh it.
func (g *Gateway) expire() {
	if g.current() == nil {
		return
	}
	if err := g.setIdentity(nil); err != nil {
		log.Printf("ERROR [httpgateway.Gateway] clear tokens: %v", err)
	}
	g.socket.close()
	g.emit(client.SessionEvent{Kind: client.SessionExpired})
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        interface{}
	raw         []byte
	contentType string
	auth        bool
}

func (g *Gateway) get(ctx context.Context, path string, out interface{}) error {
	return g.do(ctx, request{method: http.MethodGet, path: path, auth: true}, out)
}

func (g *Gateway) post(ctx context.Context, path string, body, out interface{}) error {
	return g.do(ctx, request{method: http.MethodPost, path: path, body: body, auth: true}, out)
}

func (g *Gateway) put(ctx context.Context, path string, body, out interface{}) error {
	return g.do(ctx, request{method: http.MethodPut, path: path, body: body, auth: true}, out)
}

func (g *Gateway) patch(ctx context.Context, path string, body, out interface{}) error {
	return g.do(ctx, request{method: http.MethodPatch, path: path, body: body, auth: true}, out)
}

func (g *Gateway) delete(ctx context.Context, path string) error {
	return g.do(ctx, request{method: http.MethodDelete, path: path, auth: true}, nil)
}

// do sends req and decodes a 2xx body into out. An authenticated request
// refreshes the access token when it is about to expire, and once more
// when the backend reports the session expired.
func (g *Gateway) do(ctx context.Context, req request, out interface{}) error {
	payload := req.raw
	contentType := req.contentType
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload, contentType = data, "application/json"
	}

	var token string
	if req.auth {
		id := g.current()
		if id == nil {
			return domain.ErrUnauthenticated
		}
		if !id.ExpiresAt.IsZero() && time.Until(id.ExpiresAt) < refreshSkew {
			if err := g.refresh(ctx, id.AccessToken); err != nil {
				return err
			}
			id = g.current()
		}
		token = id.AccessToken
	}

	resp, err := g.send(ctx, req, payload, contentType, token)
	if err != nil {
		return err
	}

	if req.auth && resp.StatusCode == http.StatusUnauthorized {
		apiErr := decodeError(resp)
		if !errors.Is(apiErr, domain.ErrSessionExpired) {
			if errors.Is(apiErr, domain.ErrUnauthenticated) {
				g.expire()
			}
			return apiErr
		}
		if err := g.refresh(ctx, token); err != nil {
			return err
		}
		id := g.current()
		if id == nil {
			return domain.ErrSessionExpired
		}
		resp, err = g.send(ctx, req, payload, contentType, id.AccessToken)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrTransient, err)
	}
	return nil
}

func (g *Gateway) send(ctx context.Context, req request, payload []byte, contentType, token string) (*http.Response, error) {
	target := g.apiURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrTransient, req.method, req.path, err)
	}
	return resp, nil
}

// refresh exchanges the refresh token for a new pair. stale is the access
// token the caller saw; when another goroutine already replaced it the
// call returns without contacting the backend.
func (g *Gateway) refresh(ctx context.Context, stale string) error {
	g.refreshMu.Lock()
	defer g.refreshMu.Unlock()

	id := g.current()
	if id == nil {
		return domain.ErrSessionExpired
	}
	if id.AccessToken != stale {
		return nil
	}

	var resp authResponse
	err := g.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/refresh",
		body:   map[string]string{"refreshToken": id.RefreshToken},
	}, &resp)
	if err != nil {
		if domain.IsAuthError(err) {
			log.Printf("INFO [httpgateway.Gateway] refresh refused for user %s: %v", id.UserID, err)
			g.expire()
			return domain.ErrSessionExpired
		}
		return err
	}

	next := resp.identity()
	if err := g.setIdentity(next); err != nil {
		log.Printf("ERROR [httpgateway.Gateway] save tokens: %v", err)
	}
	cp := *next
	g.emit(client.SessionEvent{Kind: client.SessionRefreshed, Identity: &cp})
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

var kinds = map[string]error{
	"validation_error":    domain.ErrValidation,
	"not_found":           domain.ErrNotFound,
	"forbidden":           domain.ErrForbidden,
	"conflict":            domain.ErrConflict,
	"invalid_transition":  domain.ErrInvalidTransition,
	"unauthenticated":     domain.ErrUnauthenticated,
	"invalid_credentials": domain.ErrInvalidCredentials,
	"unverified_account":  domain.ErrUnverifiedAccount,
	"session_expired":     domain.ErrSessionExpired,
	"unavailable":         domain.ErrTransient,
}

// decodeError turns an error response back into a domain error. Server
// faults and unreadable bodies are transient.
func decodeError(resp *http.Response) error {
	defer resp.Body.Close()

	var body errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		return fmt.Errorf("%w: status %d", domain.ErrTransient, resp.StatusCode)
	}

	kind, ok := kinds[body.Error]
	if !ok || resp.StatusCode >= http.StatusInternalServerError {
		kind = domain.ErrTransient
	}
	if body.Message == "" {
		body.Message = kind.Error()
	}
	return &domain.AppError{Err: kind, Message: body.Message, Field: body.Field}
}
