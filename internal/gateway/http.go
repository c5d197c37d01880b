// Package gateway connects the client engine to the calgrid API: an HTTP
// implementation of event.Store and a queue that runs persistence calls off
// the UI goroutine in per-event order.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jw6ventures/calgrid/internal/event"
)

// ErrUnauthenticated is returned by Login when the credentials are rejected.
var ErrUnauthenticated = errors.New("not authenticated")

var _ event.Store = (*HTTPStore)(nil)

// StatusError is a non-success response from the API.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Code, e.Message)
}

// eventPayload is the JSON shape of an event on the wire.
type eventPayload struct {
	ID             string `json:"id,omitempty"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	StartTimestamp int64  `json:"startTimestamp"`
	EndTimestamp   int64  `json:"endTimestamp"`
}

func payloadFor(rec event.Record) eventPayload {
	return eventPayload{
		ID:             rec.ID,
		Title:          rec.Title,
		Description:    rec.Description,
		StartTimestamp: rec.Start,
		EndTimestamp:   rec.End,
	}
}

func (p eventPayload) record() event.Record {
	return event.Record{ID: p.ID, Fields: event.Fields{
		Title:       p.Title,
		Description: p.Description,
		Start:       p.StartTimestamp,
		End:         p.EndTimestamp,
	}}
}

// HTTPStore talks to the calgrid API. Without a token every call is a no-op
// that triggers the login prompt.
type HTTPStore struct {
	baseURL     string
	hc          *http.Client
	loginPrompt func()

	mu    sync.RWMutex
	token string
}

type Option func(*HTTPStore)

func WithHTTPClient(hc *http.Client) Option {
	return func(s *HTTPStore) { s.hc = hc }
}

func WithToken(token string) Option {
	return func(s *HTTPStore) { s.token = token }
}

// WithLoginPrompt sets the callback fired when an action needs a login.
func WithLoginPrompt(fn func()) Option {
	return func(s *HTTPStore) { s.loginPrompt = fn }
}

func NewHTTPStore(baseURL string, opts ...Option) *HTTPStore {
	s := &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *HTTPStore) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *HTTPStore) Authenticated() bool {
	return s.Token() != ""
}

// Login exchanges credentials for a token and keeps it.
func (s *HTTPStore) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	var reply struct {
		Token string `json:"token"`
	}
	resp, err := s.do(ctx, "login", http.MethodPost, "/users/login", "", body, &reply)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized) {
			return ErrUnauthenticated
		}
		return err
	}
	s.SetToken(reply.Token)
	return nil
}

// Logout revokes the current token on the server and forgets it.
func (s *HTTPStore) Logout(ctx context.Context) error {
	token := s.Token()
	if token == "" {
		return nil
	}
	s.SetToken("")
	_, err := s.do(ctx, "logout", http.MethodPost, "/users/logout", token, nil, nil)
	return err
}

func (s *HTTPStore) Create(ctx context.Context, rec event.Record) error {
	return s.mutate(ctx, "create", http.MethodPost, "/event", payloadFor(rec))
}

func (s *HTTPStore) Update(ctx context.Context, rec event.Record) error {
	p := payloadFor(rec)
	p.ID = ""
	return s.mutate(ctx, "update", http.MethodPatch, "/event/"+url.PathEscape(rec.ID), p)
}

func (s *HTTPStore) Delete(ctx context.Context, id string) error {
	return s.mutate(ctx, "delete", http.MethodDelete, "/event/"+url.PathEscape(id), nil)
}

// ListInRange returns the events overlapping [start, end). Unauthenticated
// callers get no events.
func (s *HTTPStore) ListInRange(ctx context.Context, start, end int64) ([]event.Record, error) {
	token, ok := s.authorize()
	if !ok {
		return nil, nil
	}
	q := url.Values{}
	q.Set("start", strconv.FormatInt(start, 10))
	q.Set("end", strconv.FormatInt(end, 10))

	var reply []eventPayload
	resp, err := s.do(ctx, "list", http.MethodGet, "/event?"+q.Encode(), token, nil, &reply)
	if err != nil {
		if s.rejected(resp) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]event.Record, 0, len(reply))
	for _, p := range reply {
		out = append(out, p.record())
	}
	return out, nil
}

func (s *HTTPStore) mutate(ctx context.Context, op, method, path string, body any) error {
	token, ok := s.authorize()
	if !ok {
		return nil
	}
	resp, err := s.do(ctx, op, method, path, token, body, nil)
	if err != nil && s.rejected(resp) {
		return nil
	}
	return err
}

// authorize returns the token, prompting for a login when there is none.
func (s *HTTPStore) authorize() (string, bool) {
	token := s.Token()
	if token == "" {
		s.prompt()
		return "", false
	}
	return token, true
}

// rejected handles a 401: the token is dropped and the user asked to log in.
func (s *HTTPStore) rejected(resp *http.Response) bool {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return false
	}
	s.SetToken("")
	s.prompt()
	return true
}

func (s *HTTPStore) prompt() {
	if s.loginPrompt != nil {
		s.loginPrompt()
	}
}

// do sends one JSON request. A non-2xx response returns the response together
// with a *StatusError.
func (s *HTTPStore) do(ctx context.Context, op, method, path, token string, body, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: new request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp, &StatusError{Op: op, Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("%s: decode: %w", op, err)
		}
	}
	return resp, nil
}
