package devserver_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"tasksync/internal/backend/httpapi"
	"tasksync/internal/bus"
	"tasksync/internal/devserver"
	"tasksync/internal/devstore"
	"tasksync/internal/service"
	"tasksync/internal/session"
	"tasksync/internal/taskcache"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := devstore.Open(devstore.MemoryPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store.BcryptCost = bcrypt.MinCost
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(devserver.New(store, nil, false).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func signUp(t *testing.T, srv *httptest.Server, email string) (session.Session, *httpapi.Client) {
	t.Helper()
	anon, err := httpapi.New(srv.URL, session.Session{})
	if err != nil {
		t.Fatal(err)
	}
	sess, err := anon.Register(context.Background(), email, "Test User", "password1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	c, err := httpapi.New(srv.URL, sess)
	if err != nil {
		t.Fatal(err)
	}
	return sess, c
}

func TestRegisterAndLogin(t *testing.T) {
	srv := startServer(t)
	sess, _ := signUp(t, srv, "a@example.com")
	if !sess.Valid() || sess.Email != "a@example.com" || sess.Name != "Test User" {
		t.Errorf("unexpected session %+v", sess)
	}

	anon, _ := httpapi.New(srv.URL, session.Session{})
	again, err := anon.Login(context.Background(), "a@example.com", "password1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if again.ActorID != sess.ActorID || again.Token == sess.Token {
		t.Errorf("expected same actor with a new token, got %+v", again)
	}

	_, err = anon.Login(context.Background(), "a@example.com", "nope-nope")
	if service.KindOf(err) != service.Unauthorized || err.Error() != "Invalid email or password" {
		t.Errorf("expected Unauthorized, got %v", err)
	}

	_, err = anon.Register(context.Background(), "a@example.com", "", "password1")
	if service.KindOf(err) != service.Unknown || !strings.Contains(err.Error(), "already registered") {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestTaskCRUD(t *testing.T) {
	srv := startServer(t)
	sess, c := signUp(t, srv, "a@example.com")
	ctx := context.Background()
	actor := sess.ActorID

	due := service.NewDate(2025, 3, 1)
	created, err := c.Create(ctx, actor, service.CreateRequest{Title: "Buy milk", DueDate: &due, Tags: []string{"home"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.OwnerID != actor || created.DueDate == nil || created.DueDate.String() != "2025-03-01" {
		t.Errorf("unexpected task %+v", created)
	}

	got, err := c.Get(ctx, actor, created.ID)
	if err != nil || got.Title != "Buy milk" {
		t.Fatalf("Get: %+v, %v", got, err)
	}

	toggled, err := c.ToggleCompletion(ctx, actor, created.ID)
	if err != nil || !toggled.Completed {
		t.Fatalf("Toggle: %+v, %v", toggled, err)
	}

	page, err := c.List(ctx, actor, service.Pagination{})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || len(page.Tasks) != 1 || page.Limit != 100 {
		t.Errorf("unexpected page %+v", page)
	}

	if err := c.Delete(ctx, actor, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete(ctx, actor, created.ID); !service.IsNotFound(err) {
		t.Errorf("expected NotFound on second delete, got %v", err)
	}
}

func TestUpdate_OnlyGivenFields(t *testing.T) {
	srv := startServer(t)
	sess, c := signUp(t, srv, "a@example.com")
	ctx := context.Background()

	due := service.NewDate(2025, 3, 1)
	task, err := c.Create(ctx, sess.ActorID, service.CreateRequest{Title: "Buy milk", Description: "2 litres", DueDate: &due, Tags: []string{"home"}})
	if err != nil {
		t.Fatal(err)
	}
	if task, err = c.ToggleCompletion(ctx, sess.ActorID, task.ID); err != nil {
		t.Fatal(err)
	}

	title := "Buy oat milk"
	updated, err := c.Update(ctx, sess.ActorID, task.ID, service.UpdateRequest{Title: &title})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != title || !updated.Completed || updated.Description != "2 litres" ||
		updated.DueDate == nil || len(updated.Tags) != 1 {
		t.Errorf("update touched other fields: %+v", updated)
	}

	cleared, err := c.Update(ctx, sess.ActorID, task.ID, service.UpdateRequest{ClearDueDate: true})
	if err != nil {
		t.Fatal(err)
	}
	if cleared.DueDate != nil || cleared.Title != title {
		t.Errorf("expected due date cleared only, got %+v", cleared)
	}
}

func TestForeignActorForbidden(t *testing.T) {
	srv := startServer(t)
	_, alice := signUp(t, srv, "alice@example.com")
	bob, _ := signUp(t, srv, "bob@example.com")

	_, err := alice.List(context.Background(), bob.ActorID, service.Pagination{})
	if service.KindOf(err) != service.Unauthorized || err.Error() != "You can only access your own tasks" {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestBadToken(t *testing.T) {
	srv := startServer(t)
	sess, _ := signUp(t, srv, "a@example.com")
	sess.Token = "forged"
	c, _ := httpapi.New(srv.URL, sess)

	_, err := c.List(context.Background(), sess.ActorID, service.Pagination{})
	if service.KindOf(err) != service.Unauthorized {
		t.Errorf("expected Unauthorized, got %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/"+sess.ActorID+"/tasks/", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized || resp.Header.Get("WWW-Authenticate") != "Bearer" {
		t.Errorf("expected 401 with challenge, got %d %q", resp.StatusCode, resp.Header.Get("WWW-Authenticate"))
	}
}

func TestInvalidQueryAndID(t *testing.T) {
	srv := startServer(t)
	sess, _ := signUp(t, srv, "a@example.com")

	tests := map[string]string{
		"negative offset": "/tasks/?offset=-1",
		"bad limit":       "/tasks/?limit=ten",
		"bad id":          "/tasks/abc",
	}
	for name, path := range tests {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/"+sess.ActorID+path, nil)
		req.Header.Set("Authorization", "Bearer "+sess.Token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("%s: expected 422, got %d", name, resp.StatusCode)
			continue
		}
		var payload struct {
			Detail []struct {
				Msg string `json:"msg"`
			} `json:"detail"`
		}
		if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
			t.Errorf("%s: expected a detail list, got %s", name, body)
		}
	}
}

func TestCreate_ValidationFromServer(t *testing.T) {
	srv := startServer(t)
	sess, _ := signUp(t, srv, "a@example.com")

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/"+sess.ActorID+"/tasks/", strings.NewReader(`{"title":"  "}`))
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(body), "Title is required") {
		t.Errorf("expected 400 Title is required, got %d %s", resp.StatusCode, body)
	}
}

func TestCachesConvergeOverHTTP(t *testing.T) {
	srv := startServer(t)
	sess, c := signUp(t, srv, "a@example.com")
	ctx := context.Background()
	b := bus.New()

	list, err := taskcache.New(c, sess)
	if err != nil {
		t.Fatal(err)
	}
	detail, err := taskcache.New(c, sess)
	if err != nil {
		t.Fatal(err)
	}
	for _, cache := range []*taskcache.Cache{list, detail} {
		if err := cache.Refresh(ctx); err != nil {
			t.Fatal(err)
		}
		defer cache.Attach(ctx, b)()
	}

	task, err := list.Create(ctx, service.CreateRequest{Title: "Buy milk"})
	if err != nil {
		t.Fatal(err)
	}
	b.Publish(bus.EventTasksChanged)
	if got, ok := detail.Find(task.ID); !ok || got.Title != "Buy milk" {
		t.Fatalf("second cache did not see the new task")
	}

	if _, err := detail.Toggle(ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	b.Publish(bus.EventTasksChanged)
	if got, _ := list.Find(task.ID); !got.Completed {
		t.Errorf("expected list cache to converge on completed task")
	}

	if err := list.Remove(ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	b.Publish(bus.EventTasksChanged)
	if list.Len() != 0 || detail.Len() != 0 {
		t.Errorf("expected both caches empty, got %d and %d", list.Len(), detail.Len())
	}
}
