// Package httpapi implements the service.Service interface against the task
// store's JSON HTTP API.
package httpapi

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
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"tasksync/internal/service"
	"tasksync/internal/session"
)

const (
	// DefaultTimeout bounds each remote call.
	DefaultTimeout = 30 * time.Second

	// RequestIDHeader carries a per-request correlation id.
	RequestIDHeader = "X-Request-ID"

	maxErrorBody = 64 << 10
)

// Client implements service.Service over HTTP.
type Client struct {
	base    *url.URL
	token   string
	timeout time.Duration
	log     *log.Logger

	authed *http.Client // attaches the bearer credential
	anon   *http.Client // login and register only
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the debug logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithHTTPClient sets the underlying HTTP client (for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.anon = hc }
}

// New creates a client for the store at baseURL acting with the session's credential.
// A session without a token is accepted: every task operation then fails with
// service.ErrUnauthenticated without issuing a request.
func New(baseURL string, sess session.Session, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}

	c := &Client{
		base:    base,
		token:   sess.Token,
		timeout: DefaultTimeout,
		log:     log.New(io.Discard, "", 0),
		anon:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token, TokenType: "Bearer"})
	c.authed = &http.Client{
		Transport: &oauth2.Transport{Source: src, Base: c.anon.Transport},
		Timeout:   c.anon.Timeout,
	}
	return c, nil
}

func tasksPath(actorID string) string {
	return "/api/" + url.PathEscape(actorID) + "/tasks/"
}

func taskPath(actorID string, taskID service.ID) string {
	return "/api/" + url.PathEscape(actorID) + "/tasks/" + url.PathEscape(taskID.String())
}

// List implements service.Service.
func (c *Client) List(ctx context.Context, actorID string, p service.Pagination) (service.Page, error) {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}

	var page service.Page
	if err := c.do(ctx, http.MethodGet, tasksPath(actorID), q, nil, &page, true); err != nil {
		return service.Page{}, err
	}
	if page.Tasks == nil {
		page.Tasks = []service.Task{}
	}
	return page, nil
}

// Get implements service.Service.
func (c *Client) Get(ctx context.Context, actorID string, taskID service.ID) (service.Task, error) {
	var t service.Task
	if err := c.do(ctx, http.MethodGet, taskPath(actorID, taskID), nil, nil, &t, true); err != nil {
		return service.Task{}, err
	}
	return entity(t)
}

// Create implements service.Service. The title is checked before any request is made.
func (c *Client) Create(ctx context.Context, actorID string, req service.CreateRequest) (service.Task, error) {
	if err := req.Validate(); err != nil {
		return service.Task{}, err
	}
	var t service.Task
	if err := c.do(ctx, http.MethodPost, tasksPath(actorID), nil, req, &t, true); err != nil {
		return service.Task{}, err
	}
	return entity(t)
}

// Update implements service.Service. Only the fields set in req are sent.
func (c *Client) Update(ctx context.Context, actorID string, taskID service.ID, req service.UpdateRequest) (service.Task, error) {
	if err := req.Validate(); err != nil {
		return service.Task{}, err
	}
	var t service.Task
	if err := c.do(ctx, http.MethodPut, taskPath(actorID, taskID), nil, req, &t, true); err != nil {
		return service.Task{}, err
	}
	return entity(t)
}

// ToggleCompletion implements service.Service.
func (c *Client) ToggleCompletion(ctx context.Context, actorID string, taskID service.ID) (service.Task, error) {
	var t service.Task
	if err := c.do(ctx, http.MethodPatch, taskPath(actorID, taskID)+"/complete", nil, nil, &t, true); err != nil {
		return service.Task{}, err
	}
	return entity(t)
}

// entity rejects a decoded task that carries no identifier.
func entity(t service.Task) (service.Task, error) {
	if t.ID == "" {
		return service.Task{}, &service.Error{Kind: service.Transport, Message: "invalid response from server: task without id"}
	}
	return t, nil
}

// Delete implements service.Service.
func (c *Client) Delete(ctx context.Context, actorID string, taskID service.ID) error {
	return c.do(ctx, http.MethodDelete, taskPath(actorID, taskID), nil, nil, nil, true)
}

type authResponse struct {
	User struct {
		ID    service.ID `json:"id"`
		Email string     `json:"email"`
		Name  string     `json:"name"`
	} `json:"user"`
	Token string `json:"token"`
}

func (r authResponse) session() (session.Session, error) {
	s := session.Session{
		ActorID: r.User.ID.String(),
		Token:   r.Token,
		Name:    r.User.Name,
		Email:   r.User.Email,
	}
	if !s.Valid() {
		return session.Session{}, &service.Error{Kind: service.Transport, Message: "auth response is missing user id or token"}
	}
	return s, nil
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (session.Session, error) {
	body := map[string]string{"email": email, "password": password}
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, body, &resp, false); err != nil {
		return session.Session{}, err
	}
	return resp.session()
}

// Register creates an account and returns its session.
func (c *Client) Register(ctx context.Context, email, name, password string) (session.Session, error) {
	body := map[string]string{"email": email, "password": password}
	if name != "" {
		body["name"] = name
	}
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", nil, body, &resp, false); err != nil {
		return session.Session{}, err
	}
	return resp.session()
}

// do issues one request. A nil out means no body is expected; 204 responses are never decoded.
// A non-nil out requires an entity in the response body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, authed bool) error {
	hc := c.anon
	if authed {
		if c.token == "" {
			return service.ErrUnauthenticated
		}
		hc = c.authed
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var err error
	u := *c.base
	u.RawPath = c.base.EscapedPath() + path
	if u.Path, err = url.PathUnescape(u.RawPath); err != nil {
		return fmt.Errorf("invalid request path %q: %w", u.RawPath, err)
	}
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.log.Printf("http: %s %s failed after %s (request %s): %v", method, u.Path, time.Since(start), reqID, err)
		return transportError(ctx, err)
	}
	defer resp.Body.Close()
	c.log.Printf("http: %s %s -> %d in %s (request %s)", method, u.Path, resp.StatusCode, time.Since(start), reqID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classify(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	// An entity was expected; 204, an empty body and null all mean none arrived.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, err)
	}
	data = bytes.TrimSpace(data)
	if resp.StatusCode == http.StatusNoContent || len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return &service.Error{Kind: service.Transport, Message: "empty response from server", Status: resp.StatusCode}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &service.Error{Kind: service.Transport, Message: "invalid response from server", Status: resp.StatusCode, Err: err}
	}
	return nil
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &service.Error{Kind: service.Transport, Message: "request timed out", Err: err}
	}
	return &service.Error{Kind: service.Transport, Message: "request failed: " + rootCause(err), Err: err}
}

func rootCause(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err.Error()
	}
	return err.Error()
}

// classify turns a non-2xx response into a *service.Error carrying the store's detail.
func classify(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := detail(data)
	if msg == "" {
		msg = fmt.Sprintf("request failed (HTTP %d)", resp.StatusCode)
	}

	kind := service.Unknown
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		kind = service.Validation
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = service.Unauthorized
	case http.StatusNotFound:
		kind = service.NotFound
	}
	return &service.Error{Kind: kind, Message: msg, Status: resp.StatusCode}
}

// detail extracts the message from a {"detail": ...} body. It accepts a plain
// string or a list of {"msg": ...} entries; anything else yields "".
func detail(data []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &items); err != nil {
		return ""
	}
	msgs := make([]string, 0, len(items))
	for _, it := range items {
		if it.Msg != "" {
			msgs = append(msgs, it.Msg)
		}
	}
	return strings.Join(msgs, "; ")
}
