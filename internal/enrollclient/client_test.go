package enrollclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"rollcall/internal/token"
)

var testScope = token.Scope{ClassID: 7, SubjectID: 3, SessionType: "lecture"}

func TestIsEnrolledSkipMode(t *testing.T) {
	c := New("http://unused", true)
	ok, err := c.IsEnrolled(context.Background(), "student-a", testScope)
	if err != nil {
		t.Fatalf("IsEnrolled: %v", err)
	}
	if !ok {
		t.Fatal("skip mode should treat everyone as enrolled")
	}
}

func TestIsEnrolledQueriesDirectory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/enrollments/check" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			StudentID string `json:"student_id"`
			ClassID   int64  `json:"class_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ClassID != 7 {
			t.Errorf("class_id = %d, want 7", req.ClassID)
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"enrolled": req.StudentID == "student-a"})
	}))
	defer srv.Close()

	c := New(srv.URL, false)

	ok, err := c.IsEnrolled(context.Background(), "student-a", testScope)
	if err != nil {
		t.Fatalf("IsEnrolled: %v", err)
	}
	if !ok {
		t.Error("student-a should be enrolled")
	}

	ok, err = c.IsEnrolled(context.Background(), "student-b", testScope)
	if err != nil {
		t.Fatalf("IsEnrolled: %v", err)
	}
	if ok {
		t.Error("student-b should not be enrolled")
	}
}

func TestIsEnrolledDirectoryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	if _, err := c.IsEnrolled(context.Background(), "student-a", testScope); err == nil {
		t.Fatal("expected error on 5xx response")
	}
}
