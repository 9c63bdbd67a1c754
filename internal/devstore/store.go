// Package devstore is a SQLite-backed task store with accounts and bearer
// tokens. It backs the development server started by "tasksync serve".
package devstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"tasksync/internal/service"
)

const (
	// MaxDescriptionLength is where descriptions are cut, in characters.
	MaxDescriptionLength = 1000

	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 8

	// DefaultLimit is the page size when none is requested.
	DefaultLimit = 100

	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"

	// Fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var (
	// ErrNotFound is returned when a task does not exist or belongs to another user.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidEmail is returned by Register for a missing or malformed email.
	ErrInvalidEmail = errors.New("a valid email is required")

	// ErrEmailTaken is returned by Register for an existing email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrWeakPassword is returned by Register for a short password.
	ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

	// ErrInvalidCredentials is returned by Login.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidToken is returned by Authenticate.
	ErrInvalidToken = errors.New("invalid authentication credentials")
)

// User is a registered account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists users, tokens and tasks.
type Store struct {
	db *sql.DB

	// BcryptCost is the password hashing cost.
	BcryptCost int

	now func() time.Time
}

// Open opens (creating if needed) the database at path. MemoryPath keeps
// everything in memory for the lifetime of the Store.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite db path is empty")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	s := &Store{db: db, BcryptCost: bcrypt.DefaultCost, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tokens (
		token      TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title       TEXT NOT NULL,
		description TEXT,
		completed   INTEGER NOT NULL DEFAULT 0,
		due_date    TEXT,
		tags        TEXT NOT NULL DEFAULT '[]',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// --- Accounts ---

// Register creates an account and issues its first token.
func (s *Store) Register(ctx context.Context, email, name, password string) (User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, "", ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return User{}, "", ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.BcryptCost)
	if err != nil {
		return User{}, "", fmt.Errorf("hash password: %w", err)
	}

	u := User{ID: uuid.NewString(), Email: email, Name: strings.TrimSpace(name)}
	created := s.timestamp()
	u.CreatedAt, _ = time.Parse(timeLayout, created)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, string(hash), created)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return User{}, "", ErrEmailTaken
		}
		return User{}, "", fmt.Errorf("insert user: %w", err)
	}

	token, err := s.issueToken(ctx, u.ID)
	if err != nil {
		return User{}, "", err
	}
	return u, token, nil
}

// Login checks credentials and issues a new token.
func (s *Store) Login(ctx context.Context, email, password string) (User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var u User
	var hash, created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Email, &u.Name, &hash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return User{}, "", fmt.Errorf("query user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, "", ErrInvalidCredentials
	}
	u.CreatedAt, _ = time.Parse(timeLayout, created)

	token, err := s.issueToken(ctx, u.ID)
	if err != nil {
		return User{}, "", err
	}
	return u, token, nil
}

func (s *Store) issueToken(ctx context.Context, userID string) (string, error) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens (token, user_id, created_at) VALUES (?, ?, ?)`, token, userID, s.timestamp())
	if err != nil {
		return "", fmt.Errorf("insert token: %w", err)
	}
	return token, nil
}

// Authenticate resolves a bearer token to its user.
func (s *Store) Authenticate(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrInvalidToken
	}
	var u User
	var created string
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.name, u.created_at
		FROM tokens t JOIN users u ON u.id = t.user_id
		WHERE t.token = ?`, token).Scan(&u.ID, &u.Email, &u.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidToken
	}
	if err != nil {
		return User{}, fmt.Errorf("query token: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeLayout, created)
	return u, nil
}

// --- Tasks ---

const taskColumns = `id, user_id, title, description, completed, due_date, tags, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (service.Task, error) {
	var (
		t                service.Task
		id               int64
		desc, due        sql.NullString
		completed        int
		tags             string
		created, updated string
	)
	if err := r.Scan(&id, &t.OwnerID, &t.Title, &desc, &completed, &due, &tags, &created, &updated); err != nil {
		return service.Task{}, err
	}
	t.ID = service.ID(strconv.FormatInt(id, 10))
	t.Description = desc.String
	t.Completed = completed != 0
	if due.Valid && due.String != "" {
		if d, err := service.ParseDate(due.String); err == nil {
			t.DueDate = &d
		}
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return service.Task{}, fmt.Errorf("decode tags: %w", err)
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	t.CreatedAt, _ = time.Parse(timeLayout, created)
	t.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return t, nil
}

// ListTasks returns a page of the user's tasks, newest first, and the user's total count.
func (s *Store) ListTasks(ctx context.Context, userID string, limit, offset int) ([]service.Task, int, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []service.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}
	return tasks, total, rows.Err()
}

// GetTask returns one of the user's tasks.
func (s *Store) GetTask(ctx context.Context, userID string, id int64) (service.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return service.Task{}, ErrNotFound
	}
	return t, err
}

// CreateTask stores a new task for the user.
func (s *Store) CreateTask(ctx context.Context, userID string, req service.CreateRequest) (service.Task, error) {
	if err := req.Validate(); err != nil {
		return service.Task{}, err
	}
	tags, err := encodeTags(req.Tags)
	if err != nil {
		return service.Task{}, err
	}

	now := s.timestamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (user_id, title, description, completed, due_date, tags, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?, ?)`,
		userID, req.Title, nullable(truncate(req.Description)), dueValue(req.DueDate), tags, now, now)
	if err != nil {
		return service.Task{}, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return service.Task{}, err
	}
	return s.GetTask(ctx, userID, id)
}

// UpdateTask changes only the fields present in req.
func (s *Store) UpdateTask(ctx context.Context, userID string, id int64, req service.UpdateRequest) (service.Task, error) {
	if err := req.Validate(); err != nil {
		return service.Task{}, err
	}
	current, err := s.GetTask(ctx, userID, id)
	if err != nil {
		return service.Task{}, err
	}
	t := req.Apply(current)
	t.Description = truncate(t.Description)

	tags, err := encodeTags(t.Tags)
	if err != nil {
		return service.Task{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, completed = ?, due_date = ?, tags = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		t.Title, nullable(t.Description), boolInt(t.Completed), dueValue(t.DueDate), tags, s.timestamp(), id, userID)
	if err != nil {
		return service.Task{}, fmt.Errorf("update task: %w", err)
	}
	return s.GetTask(ctx, userID, id)
}

// ToggleTask flips the completion flag.
func (s *Store) ToggleTask(ctx context.Context, userID string, id int64) (service.Task, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET completed = 1 - completed, updated_at = ? WHERE id = ? AND user_id = ?`,
		s.timestamp(), id, userID)
	if err != nil {
		return service.Task{}, fmt.Errorf("toggle task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return service.Task{}, ErrNotFound
	}
	return s.GetTask(ctx, userID, id)
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ParseTaskID parses a task id from a request path.
func ParseTaskID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return id, nil
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxDescriptionLength {
		return s
	}
	return string(r[:MaxDescriptionLength])
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func dueValue(d *service.Date) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.String()
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
