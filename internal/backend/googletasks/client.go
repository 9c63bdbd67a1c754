// Package googletasks implements the service.Service interface using Google Tasks API.
//
// The actor is a Google task list: actorID is the list id ("@default" for the
// user's default list). Google Tasks has no tags or date-only due field, so
// tags travel as a leading "#tag #tag" line in the notes and due dates are
// sent as midnight UTC.
package googletasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"tasksync/internal/config"
	"tasksync/internal/service"
	"tasksync/internal/session"
)

const (
	// DefaultListID is the special ID for the default list.
	DefaultListID = "@default"

	// PageSize is the number of tasks requested per API page.
	PageSize = 100

	// DefaultLimit is the page size used when the caller gives none.
	DefaultLimit = 100

	// Scope is the OAuth scope for Google Tasks.
	Scope = "https://www.googleapis.com/auth/tasks"

	statusNeedsAction = "needsAction"
	statusCompleted   = "completed"
)

// Client implements service.Service using Google Tasks API.
type Client struct {
	svc     *tasks.Service
	timeout time.Duration
	log     *log.Logger
}

// New creates a new Google Tasks client.
// Requires oauth_client.json and token.json to exist.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Client, error) {
	oauthConfig, err := OAuthConfig(cfg)
	if err != nil {
		return nil, err
	}

	token, err := LoadToken(cfg.TokenPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, service.ErrUnauthenticated
		}
		return nil, err
	}

	// Create token source that auto-refreshes
	tokenSource := oauthConfig.TokenSource(ctx, token)
	httpClient := oauth2.NewClient(ctx, tokenSource)

	c, err := NewWithHTTPClient(ctx, httpClient)
	if err != nil {
		return nil, err
	}
	c.timeout = cfg.Timeout
	if logger != nil {
		c.log = logger
	}
	return c, nil
}

// NewWithHTTPClient creates a client with a custom HTTP client (for testing).
// Extra options such as option.WithEndpoint are passed to the Tasks service.
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}
	return &Client{
		svc:     svc,
		timeout: config.DefaultTimeout,
		log:     log.New(io.Discard, "", 0),
	}, nil
}

// OAuthConfig reads oauth_client.json.
func OAuthConfig(cfg *config.Config) (*oauth2.Config, error) {
	clientJSON, err := os.ReadFile(cfg.OAuthClientPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth_client.json: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(clientJSON, Scope)
	if err != nil {
		return nil, fmt.Errorf("invalid oauth_client.json: %w", err)
	}
	return oauthConfig, nil
}

// LoadToken reads a stored OAuth token.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid token.json: %w", err)
	}
	return &token, nil
}

// SaveToken writes an OAuth token to a file with mode 0600.
func SaveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// SessionProvider derives the session from token.json: the actor is the
// configured task list and the credential is the stored token.
func SessionProvider(cfg *config.Config) session.Provider {
	return session.ProviderFunc(func() (session.Session, error) {
		token, err := LoadToken(cfg.TokenPath())
		if err != nil {
			if os.IsNotExist(err) {
				return session.Session{}, session.ErrNoSession
			}
			return session.Session{}, err
		}
		credential := token.RefreshToken
		if credential == "" {
			credential = token.AccessToken
		}
		s := session.Session{ActorID: cfg.TaskList, Token: credential}
		if !s.Valid() {
			return session.Session{}, session.ErrNoSession
		}
		return s, nil
	})
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// List returns the list's tasks in API order, completed ones included.
// Google pages by token, so offset and limit are applied after fetching.
func (c *Client) List(ctx context.Context, listID string, p service.Pagination) (service.Page, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var all []service.Task
	err := c.svc.Tasks.List(listID).
		MaxResults(PageSize).
		ShowCompleted(true).
		ShowHidden(true).
		ShowDeleted(false).
		Pages(ctx, func(resp *tasks.Tasks) error {
			for _, t := range resp.Items {
				all = append(all, fromAPI(listID, t))
			}
			return nil
		})
	if err != nil {
		return service.Page{}, wrapError(err)
	}
	c.log.Printf("googletasks: listed %d tasks in %s", len(all), listID)

	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	start := min(p.Offset, len(all))
	end := min(start+limit, len(all))
	page := make([]service.Task, end-start)
	copy(page, all[start:end])
	return service.Page{Tasks: page, Total: len(all), Limit: limit, Offset: p.Offset}, nil
}

// Get implements service.Service.
func (c *Client) Get(ctx context.Context, listID string, taskID service.ID) (service.Task, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	t, err := c.svc.Tasks.Get(listID, taskID.String()).Context(ctx).Do()
	if err != nil {
		return service.Task{}, wrapError(err)
	}
	return fromAPI(listID, t), nil
}

// Create implements service.Service.
func (c *Client) Create(ctx context.Context, listID string, req service.CreateRequest) (service.Task, error) {
	if err := req.Validate(); err != nil {
		return service.Task{}, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	body := &tasks.Task{
		Title:  req.Title,
		Notes:  encodeNotes(req.Description, req.Tags),
		Status: statusNeedsAction,
	}
	if req.DueDate != nil && !req.DueDate.IsZero() {
		body.Due = formatDue(*req.DueDate)
	}

	t, err := c.svc.Tasks.Insert(listID, body).Context(ctx).Do()
	if err != nil {
		return service.Task{}, wrapError(err)
	}
	c.log.Printf("googletasks: created task %s in %s", t.Id, listID)
	return fromAPI(listID, t), nil
}

// Update implements service.Service. Notes hold both description and tags,
// so the current task is read first and the merged notes are patched back.
func (c *Client) Update(ctx context.Context, listID string, taskID service.ID, req service.UpdateRequest) (service.Task, error) {
	if err := req.Validate(); err != nil {
		return service.Task{}, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	current, err := c.svc.Tasks.Get(listID, taskID.String()).Context(ctx).Do()
	if err != nil {
		return service.Task{}, wrapError(err)
	}
	merged := req.Apply(fromAPI(listID, current))

	patch := &tasks.Task{
		Title: merged.Title,
		Notes: encodeNotes(merged.Description, merged.Tags),
	}
	patch.ForceSendFields = []string{"Notes"}
	if req.Completed != nil {
		setStatus(patch, *req.Completed)
	}
	if req.ClearDueDate {
		patch.NullFields = append(patch.NullFields, "Due")
	} else if merged.DueDate != nil {
		patch.Due = formatDue(*merged.DueDate)
	}

	t, err := c.svc.Tasks.Patch(listID, taskID.String(), patch).Context(ctx).Do()
	if err != nil {
		return service.Task{}, wrapError(err)
	}
	return fromAPI(listID, t), nil
}

// ToggleCompletion implements service.Service as a read followed by a patch.
func (c *Client) ToggleCompletion(ctx context.Context, listID string, taskID service.ID) (service.Task, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	current, err := c.svc.Tasks.Get(listID, taskID.String()).Context(ctx).Do()
	if err != nil {
		return service.Task{}, wrapError(err)
	}

	patch := &tasks.Task{}
	setStatus(patch, current.Status != statusCompleted)

	t, err := c.svc.Tasks.Patch(listID, taskID.String(), patch).Context(ctx).Do()
	if err != nil {
		return service.Task{}, wrapError(err)
	}
	return fromAPI(listID, t), nil
}

// Delete implements service.Service.
func (c *Client) Delete(ctx context.Context, listID string, taskID service.ID) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.svc.Tasks.Delete(listID, taskID.String()).Context(ctx).Do(); err != nil {
		return wrapError(err)
	}
	return nil
}

func setStatus(t *tasks.Task, completed bool) {
	if completed {
		t.Status = statusCompleted
		return
	}
	t.Status = statusNeedsAction
	t.NullFields = append(t.NullFields, "Completed")
}

func fromAPI(listID string, t *tasks.Task) service.Task {
	desc, tags := decodeNotes(t.Notes)
	out := service.Task{
		ID:          service.ID(t.Id),
		OwnerID:     listID,
		Title:       t.Title,
		Description: desc,
		Completed:   t.Status == statusCompleted,
		Tags:        tags,
	}
	if t.Due != "" {
		if d, err := service.ParseDate(t.Due); err == nil {
			out.DueDate = &d
		}
	}
	if updated, err := time.Parse(time.RFC3339, t.Updated); err == nil {
		out.UpdatedAt = updated
		out.CreatedAt = updated
	}
	return out
}

func formatDue(d service.Date) string {
	return d.Format("2006-01-02") + "T00:00:00.000Z"
}

// tagLinePrefix marks the first notes line that carries the task's tags.
const tagLinePrefix = "tags:"

// tagEscaper keeps every tag a single '#'-prefixed word on the tag line.
var tagEscaper = strings.NewReplacer("%", "%25", " ", "%20", "\t", "%09", "\n", "%0A", "\r", "%0D")

// encodeNotes prefixes the description with a "tags: #a #b" line when there
// are tags. A description that itself starts with the marker gets an empty
// tag line so it is never read back as tags.
func encodeNotes(description string, tags []string) string {
	if len(tags) == 0 && !strings.HasPrefix(description, tagLinePrefix) {
		return description
	}
	var b strings.Builder
	b.WriteString(tagLinePrefix)
	for _, tag := range tags {
		b.WriteString(" #")
		b.WriteString(tagEscaper.Replace(tag))
	}
	if description != "" {
		b.WriteString("\n")
		b.WriteString(description)
	}
	return b.String()
}

// decodeNotes splits the marked tag line off the notes. Notes without a
// well-formed tag line are all description.
func decodeNotes(notes string) (description string, tags []string) {
	first, rest, _ := strings.Cut(notes, "\n")
	line, ok := strings.CutPrefix(first, tagLinePrefix)
	if !ok {
		return notes, nil
	}
	for _, w := range strings.Fields(line) {
		if len(w) < 2 || w[0] != '#' {
			return notes, nil
		}
		tag, err := url.PathUnescape(w[1:])
		if err != nil {
			return notes, nil
		}
		tags = append(tags, tag)
	}
	return rest, tags
}

// wrapError classifies API errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &service.Error{Kind: service.Transport, Message: "request timed out", Err: err}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = fmt.Sprintf("request failed (HTTP %d)", gerr.Code)
		}
		kind := service.Unknown
		switch gerr.Code {
		case http.StatusBadRequest:
			kind = service.Validation
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = service.Unauthorized
			msg = "token expired or revoked (run: tasksync login)"
		case http.StatusNotFound:
			kind = service.NotFound
		}
		return &service.Error{Kind: kind, Message: msg, Status: gerr.Code, Err: err}
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return &service.Error{Kind: service.Unauthorized, Message: "token expired or revoked (run: tasksync login)", Err: err}
	}

	return &service.Error{Kind: service.Transport, Message: err.Error(), Err: err}
}
