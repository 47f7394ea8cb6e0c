package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"taskpulse/internal/config"
	"taskpulse/internal/db"
	"taskpulse/internal/engine"
	"taskpulse/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{Engine: e, BasePath: "/v1"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":       "Ship feature",
		"assigned_to": "ada@example.com",
		"priority":    "p1",
		"due_date":    "2030-06-01",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d body %s", res.StatusCode, data)
	}
	var task struct {
		ID       string `json:"id"`
		Priority string `json:"priority"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if task.Priority != "urgent" || task.Status != "pending" {
		t.Fatalf("task fields: %+v", task)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+task.ID+"/complete", nil, map[string]string{"X-Actor": "ada@example.com"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete: status %d body %s", res.StatusCode, data)
	}
	var done struct {
		Task struct {
			Status        string  `json:"status"`
			CompletedDate *string `json:"completed_date"`
		} `json:"task"`
	}
	if err := json.Unmarshal(data, &done); err != nil {
		t.Fatalf("decode completion: %v", err)
	}
	if done.Task.Status != "completed" || done.Task.CompletedDate == nil {
		t.Fatalf("completion: %+v", done)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/users/ada@example.com/stats", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stats: status %d body %s", res.StatusCode, data)
	}
	var stats struct {
		CompletedTasks int `json:"completed_tasks"`
		Karma          int `json:"karma"`
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.CompletedTasks != 1 || stats.Karma == 0 {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestInvalidTaskIsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":       "bad priority",
		"assigned_to": "ada@example.com",
		"priority":    "p9",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d body %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if envelope.Error.Code != "bad_request" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}
}

func TestMissingTaskIsNotFound(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks/nope", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d body %s", res.StatusCode, data)
	}
}

func TestDelegationConflictOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/requests", map[string]any{
		"from_user": "ada@example.com",
		"to_user":   "bob@example.com",
		"title":     "review design",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create request: status %d body %s", res.StatusCode, data)
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/requests/"+req.ID+"/accept", nil, map[string]string{"X-Actor": "bob@example.com"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept: status %d body %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/requests/"+req.ID+"/decline", map[string]any{"reason": "late"}, map[string]string{"X-Actor": "bob@example.com"})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("decline after accept: status %d body %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if envelope.Error.Code != "conflict" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}
}

func TestViewsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	if res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":       "someday",
		"assigned_to": "ada@example.com",
	}, nil); res.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d body %s", res.StatusCode, data)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/users/ada@example.com/views", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("views: status %d body %s", res.StatusCode, data)
	}
	var view struct {
		NoDate []struct {
			Task struct {
				Title string `json:"title"`
			} `json:"task"`
		} `json:"no_date"`
	}
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if len(view.NoDate) != 1 || view.NoDate[0].Task.Title != "someday" {
		t.Fatalf("view: %s", data)
	}
}
