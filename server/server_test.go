package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"soundwaves/config"
	"soundwaves/core/session"
	"soundwaves/db"
	"soundwaves/model"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg, err := config.Read()
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	cfg.LibraryDBPath = db.MemoryDSN
	cfg.JWTSecret = testSecret
	cfg.BlobBackend = "db"
	cfg.OutboxBackend = "memory"
	cfg.RemoteHistoryEnabled = false
	cfg.ImportDir = ""

	app, err := NewApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

func TestNewAppWithoutRemoteHistoryKeepsPlaysLocal(t *testing.T) {
	app := newTestApp(t)
	if app.drainer != nil || app.outbox != nil {
		t.Fatalf("remote history disabled: drainer=%v outbox=%v", app.drainer, app.outbox)
	}

	token, err := session.NewResolver(testSecret).Issue(model.Authenticated{ID: "user-1"}, "u@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	handler := app.Handler()
	body := `{"song":{"id":"s1","title":"T","source":"youtube","duration":100},"duration":90,"completed":true}`
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/history", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("record play: %d %s", rec.Code, rec.Body.String())
		}
	}

	entries, err := app.handler.Library.GetHistory(context.Background())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 local entries, got %d", len(entries))
	}
}
