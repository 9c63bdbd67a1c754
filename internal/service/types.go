// Package service defines the backend-agnostic interface for task operations.
package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleLength is the longest title the remote store accepts, in characters.
const MaxTitleLength = 200

// ID is a store-assigned task identifier.
// The wire form may be a JSON number or a JSON string; it is kept opaque.
type ID string

// UnmarshalJSON accepts both numeric and string identifiers.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid task id %s: %w", b, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

const dateLayout = "2006-01-02"

// Date is a calendar date with no time-of-day component.
type Date struct {
	time.Time
}

// NewDate returns the date for the given year, month and day (UTC).
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD date. RFC 3339 timestamps are truncated to their date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return NewDate(t.Year(), t.Month(), t.Day()), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// MarshalJSON implements the json.Marshaler interface for Date.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface for Date.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Task represents a single task owned by one actor.
type Task struct {
	ID          ID        `json:"id"`
	OwnerID     string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	DueDate     *Date     `json:"due_date"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UnmarshalJSON tolerates null descriptions and tags, and timestamps without a zone.
func (t *Task) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID          ID        `json:"id"`
		OwnerID     string    `json:"user_id"`
		Title       string    `json:"title"`
		Description *string   `json:"description"`
		Completed   bool      `json:"completed"`
		DueDate     *Date     `json:"due_date"`
		Tags        []string  `json:"tags"`
		CreatedAt   timestamp `json:"created_at"`
		UpdatedAt   timestamp `json:"updated_at"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*t = Task{
		ID:        raw.ID,
		OwnerID:   raw.OwnerID,
		Title:     raw.Title,
		Completed: raw.Completed,
		Tags:      raw.Tags,
		CreatedAt: raw.CreatedAt.Time,
		UpdatedAt: raw.UpdatedAt.Time,
	}
	if raw.Description != nil {
		t.Description = *raw.Description
	}
	if raw.DueDate != nil && !raw.DueDate.IsZero() {
		t.DueDate = raw.DueDate
	}
	return nil
}

// timestamp decodes RFC 3339 with or without a zone suffix (naive times are UTC).
type timestamp struct {
	time.Time
}

func (ts *timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		ts.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

// Page is a bounded slice of an actor's tasks.
// Total is display metadata reported by the store; it is never used for sizing.
type Page struct {
	Tasks  []Task `json:"tasks"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// Pagination selects a page. Zero values are left to the store's defaults.
type Pagination struct {
	Limit  int
	Offset int
}

// CreateRequest holds the fields for a new task.
type CreateRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	DueDate     *Date    `json:"due_date,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Validate checks the title bounds.
func (r CreateRequest) Validate() error {
	return validateTitle(r.Title)
}

// UpdateRequest is a partial update: nil fields are left unchanged.
type UpdateRequest struct {
	Title       *string
	Description *string
	Completed   *bool
	DueDate     *Date
	Tags        *[]string

	// ClearDueDate removes the due date. It takes precedence over DueDate.
	ClearDueDate bool
}

// Empty reports whether the update carries no fields.
func (r UpdateRequest) Empty() bool {
	return r.Title == nil && r.Description == nil && r.Completed == nil &&
		r.DueDate == nil && r.Tags == nil && !r.ClearDueDate
}

// Validate checks the title bounds when a title is present.
func (r UpdateRequest) Validate() error {
	if r.Title == nil {
		return nil
	}
	return validateTitle(*r.Title)
}

// MarshalJSON emits only the provided fields; a cleared due date is sent as null.
func (r UpdateRequest) MarshalJSON() ([]byte, error) {
	m := make(map[string]any)
	if r.Title != nil {
		m["title"] = *r.Title
	}
	if r.Description != nil {
		m["description"] = *r.Description
	}
	if r.Completed != nil {
		m["completed"] = *r.Completed
	}
	if r.ClearDueDate {
		m["due_date"] = nil
	} else if r.DueDate != nil {
		m["due_date"] = r.DueDate
	}
	if r.Tags != nil {
		tags := *r.Tags
		if tags == nil {
			tags = []string{}
		}
		m["tags"] = tags
	}
	return json.Marshal(m)
}

// Apply returns a copy of t with the update's fields applied.
// Backends that cannot express a partial update natively use this to build the full entity.
func (r UpdateRequest) Apply(t Task) Task {
	if r.Title != nil {
		t.Title = *r.Title
	}
	if r.Description != nil {
		t.Description = *r.Description
	}
	if r.Completed != nil {
		t.Completed = *r.Completed
	}
	if r.ClearDueDate {
		t.DueDate = nil
	} else if r.DueDate != nil {
		d := *r.DueDate
		t.DueDate = &d
	}
	if r.Tags != nil {
		t.Tags = append([]string(nil), (*r.Tags)...)
	}
	return t
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return &Error{Kind: Validation, Message: "title is required"}
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return &Error{Kind: Validation, Message: fmt.Sprintf("title must be at most %d characters", MaxTitleLength)}
	}
	return nil
}
