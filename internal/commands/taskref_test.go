package commands

import (
	"context"
	"errors"
	"testing"

	"tasksync/internal/service"
	"tasksync/internal/session"
	"tasksync/internal/taskcache"
	"tasksync/internal/testutil"
)

func TestParseTaskRef(t *testing.T) {
	tests := []struct {
		in   string
		want TaskRef
	}{
		{"5", TaskRef{Num: 5}},
		{"12", TaskRef{Num: 12}},
		{" 3 ", TaskRef{Num: 3}},
		{"#42", TaskRef{ID: "42"}},
		{"#MTIzNDU2Nzg5", TaskRef{ID: "MTIzNDU2Nzg5"}},
	}
	for _, tt := range tests {
		got, err := ParseTaskRef(tt.in)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: expected %+v, got %+v", tt.in, tt.want, got)
		}
	}
}

func TestParseTaskRef_Invalid(t *testing.T) {
	for _, in := range []string{"a1", "abc", "#", "1a", "-1", "#a b"} {
		_, err := ParseTaskRef(in)
		if err == nil {
			t.Errorf("%q: expected error", in)
			continue
		}
		if err.Error() != "invalid task reference: "+in {
			t.Errorf("%q: unexpected message %q", in, err.Error())
		}
	}
}

func TestParseTaskRef_Empty(t *testing.T) {
	if _, err := ParseTaskRef(""); !errors.Is(err, ErrTaskRefRequired) {
		t.Errorf("expected ErrTaskRefRequired, got %v", err)
	}
	if _, err := ParseTaskRefs(nil); !errors.Is(err, ErrTaskRefRequired) {
		t.Errorf("expected ErrTaskRefRequired for no args, got %v", err)
	}
}

func TestParseTaskRefs_StopsAtFirstInvalid(t *testing.T) {
	_, err := ParseTaskRefs([]string{"1", "#7", "x"})
	if err == nil || err.Error() != "invalid task reference: x" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestTaskRefString(t *testing.T) {
	if s := (TaskRef{Num: 3}).String(); s != "3" {
		t.Errorf("expected 3, got %q", s)
	}
	if s := (TaskRef{ID: "42"}).String(); s != "#42" {
		t.Errorf("expected #42, got %q", s)
	}
}

func loadedCache(t *testing.T, titles ...string) (*taskcache.Cache, *testutil.FakeService) {
	t.Helper()
	svc := testutil.NewFakeService()
	for _, title := range titles {
		svc.AddTask("u1", title)
	}
	cache, err := taskcache.New(svc, session.Session{ActorID: "u1", Token: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	return cache, svc
}

func TestResolve_Position(t *testing.T) {
	cache, _ := loadedCache(t, "first", "second")

	id, err := TaskRef{Num: 1}.Resolve(cache)
	if err != nil {
		t.Fatal(err)
	}
	// Newest first.
	if id != "2" {
		t.Errorf("expected id 2, got %s", id)
	}

	for _, n := range []int{0, 3} {
		_, err := TaskRef{Num: n}.Resolve(cache)
		if err == nil {
			t.Errorf("%d: expected out of range error", n)
		}
	}
}

func TestResolve_IDPassesThrough(t *testing.T) {
	cache, _ := loadedCache(t)

	id, err := TaskRef{ID: "99"}.Resolve(cache)
	if err != nil || id != service.ID("99") {
		t.Errorf("expected 99, got %s (%v)", id, err)
	}
}

func TestResolveAll_OneSnapshot(t *testing.T) {
	cache, _ := loadedCache(t, "a", "b", "c")

	ids, err := resolveAll(cache, []TaskRef{{Num: 1}, {Num: 3}, {ID: "2"}})
	if err != nil {
		t.Fatal(err)
	}
	want := []service.ID{"3", "1", "2"}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], ids[i])
		}
	}

	if _, err := resolveAll(cache, []TaskRef{{Num: 1}, {Num: 9}}); err == nil {
		t.Error("expected error when any reference is out of range")
	}
}
