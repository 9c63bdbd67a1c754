package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"tasksync/internal/devstore"
	"tasksync/internal/service"
)

const (
	maxLimit   = 100
	userKey    = "user"
	authScheme = "Bearer "
)

// detail writes the store's error body: {"detail": "..."}.
func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

// invalid writes a request-shape error as a list of messages.
func invalid(c *gin.Context, msgs ...string) {
	items := make([]gin.H, len(msgs))
	for i, m := range msgs {
		items[i] = gin.H{"msg": m}
	}
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": items})
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, devstore.ErrNotFound):
		detail(c, http.StatusNotFound, "Task not found")
	case errors.Is(err, devstore.ErrEmailTaken):
		detail(c, http.StatusConflict, "Email already registered")
	case errors.Is(err, devstore.ErrWeakPassword):
		detail(c, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters", devstore.MinPasswordLength))
	case errors.Is(err, devstore.ErrInvalidEmail):
		detail(c, http.StatusBadRequest, "A valid email is required")
	case errors.Is(err, devstore.ErrInvalidCredentials):
		detail(c, http.StatusUnauthorized, "Invalid email or password")
	case service.KindOf(err) == service.Validation:
		detail(c, http.StatusBadRequest, capitalize(err.Error()))
	default:
		s.log.Printf("devserver: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		detail(c, http.StatusInternalServerError, "Internal server error")
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// --- Auth ---

type credentials struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (s *Server) bindCredentials(c *gin.Context) (credentials, bool) {
	var body credentials
	if err := c.ShouldBindJSON(&body); err != nil {
		invalid(c, "invalid request body: "+err.Error())
		return credentials{}, false
	}
	var missing []string
	if body.Email == "" {
		missing = append(missing, "email: field required")
	}
	if body.Password == "" {
		missing = append(missing, "password: field required")
	}
	if len(missing) > 0 {
		invalid(c, missing...)
		return credentials{}, false
	}
	return body, true
}

func (s *Server) handleRegister(c *gin.Context) {
	body, ok := s.bindCredentials(c)
	if !ok {
		return
	}
	u, token, err := s.store.Register(c.Request.Context(), body.Email, body.Name, body.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": u, "token": token})
}

func (s *Server) handleLogin(c *gin.Context) {
	body, ok := s.bindCredentials(c)
	if !ok {
		return
	}
	u, token, err := s.store.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "token": token})
}

// requireActor authenticates the bearer token and checks that the path actor is the caller.
func (s *Server) requireActor(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, authScheme) {
		c.Header("WWW-Authenticate", "Bearer")
		detail(c, http.StatusUnauthorized, "Not authenticated")
		return
	}
	u, err := s.store.Authenticate(c.Request.Context(), strings.TrimSpace(strings.TrimPrefix(header, authScheme)))
	if err != nil {
		c.Header("WWW-Authenticate", "Bearer")
		if errors.Is(err, devstore.ErrInvalidToken) {
			detail(c, http.StatusUnauthorized, "Invalid authentication credentials")
			return
		}
		s.fail(c, err)
		return
	}
	if c.Param("actor") != u.ID {
		detail(c, http.StatusForbidden, "You can only access your own tasks")
		return
	}
	c.Set(userKey, u)
	c.Next()
}

func actor(c *gin.Context) string {
	return c.MustGet(userKey).(devstore.User).ID
}

// --- Tasks ---

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		invalid(c, name+": must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func taskID(c *gin.Context) (int64, bool) {
	id, err := devstore.ParseTaskID(c.Param("id"))
	if err != nil {
		invalid(c, "task_id: must be an integer")
		return 0, false
	}
	return id, true
}

func (s *Server) handleList(c *gin.Context) {
	limit, ok := queryInt(c, "limit", maxLimit)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	if limit == 0 || limit > maxLimit {
		limit = maxLimit
	}

	tasks, total, err := s.store.ListTasks(c.Request.Context(), actor(c), limit, offset)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, service.Page{Tasks: tasks, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGet(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	t, err := s.store.GetTask(c.Request.Context(), actor(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleCreate(c *gin.Context) {
	var req service.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "invalid request body: "+err.Error())
		return
	}
	t, err := s.store.CreateTask(c.Request.Context(), actor(c), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) handleUpdate(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		invalid(c, "invalid request body: "+err.Error())
		return
	}
	req, errs := decodeUpdate(raw)
	if len(errs) > 0 {
		invalid(c, errs...)
		return
	}
	t, err := s.store.UpdateTask(c.Request.Context(), actor(c), id, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleToggle(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	t, err := s.store.ToggleTask(c.Request.Context(), actor(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleDelete(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteTask(c.Request.Context(), actor(c), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// decodeUpdate builds a partial update from the fields present in the body.
// An explicit null clears description, due_date and tags.
func decodeUpdate(raw map[string]json.RawMessage) (service.UpdateRequest, []string) {
	var req service.UpdateRequest
	var errs []string
	isNull := func(v json.RawMessage) bool { return strings.TrimSpace(string(v)) == "null" }

	for key, v := range raw {
		switch key {
		case "title":
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				errs = append(errs, "title: must be a string")
				continue
			}
			req.Title = &s
		case "description":
			s := ""
			if !isNull(v) {
				if err := json.Unmarshal(v, &s); err != nil {
					errs = append(errs, "description: must be a string")
					continue
				}
			}
			req.Description = &s
		case "completed":
			var b bool
			if err := json.Unmarshal(v, &b); err != nil {
				errs = append(errs, "completed: must be a boolean")
				continue
			}
			req.Completed = &b
		case "due_date":
			if isNull(v) {
				req.ClearDueDate = true
				continue
			}
			var d service.Date
			if err := json.Unmarshal(v, &d); err != nil {
				errs = append(errs, "due_date: "+err.Error())
				continue
			}
			req.DueDate = &d
		case "tags":
			tags := []string{}
			if !isNull(v) {
				if err := json.Unmarshal(v, &tags); err != nil {
					errs = append(errs, "tags: must be a list of strings")
					continue
				}
			}
			req.Tags = &tags
		}
	}
	return req, errs
}
