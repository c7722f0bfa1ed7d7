package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bigkaa/datadispatcher/internal/api/generated"
	"github.com/bigkaa/datadispatcher/internal/config"
)

// listOnly обслуживает только ListProjects и запоминает параметры.
type listOnly struct {
	generated.Unimplemented
	calls  int
	params generated.ListProjectsParams
}

func (l *listOnly) ListProjects(w http.ResponseWriter, r *http.Request, params generated.ListProjectsParams) {
	l.calls++
	l.params = params
	w.WriteHeader(http.StatusOK)
}

func testConfig() *config.Config {
	return &config.Config{
		Port:               0,
		ShutdownTimeout:    time.Second,
		DBStatementTimeout: 30 * time.Second,
	}
}

func newTestServer(t *testing.T, h generated.ServerInterface) *Server {
	t.Helper()
	srv, err := New(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), h)
	if err != nil {
		t.Fatalf("ошибка создания сервера: %v", err)
	}
	return srv
}

func TestServer_RequestValidation(t *testing.T) {
	h := &listOnly{}
	srv := newTestServer(t, h)

	tests := []struct {
		name      string
		method    string
		target    string
		status    int
		wantCalls int
	}{
		{"корректный запрос", http.MethodGet, "/api/v1/projects?state=held&limit=20", http.StatusOK, 1},
		{"неизвестное состояние", http.MethodGet, "/api/v1/projects?state=bogus", http.StatusBadRequest, 1},
		{"некорректный limit", http.MethodGet, "/api/v1/projects?limit=abc", http.StatusBadRequest, 1},
		{"некорректный id", http.MethodGet, "/api/v1/projects/abc", http.StatusBadRequest, 1},
		{"нереализованная операция", http.MethodGet, "/api/v1/projects/1", http.StatusNotImplemented, 1},
		{"неизвестный путь", http.MethodGet, "/api/v2/projects", http.StatusNotFound, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))

			if rec.Code != tt.status {
				t.Errorf("статус = %d, ожидалось %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if h.calls != tt.wantCalls {
				t.Errorf("вызовов обработчика = %d, ожидалось %d", h.calls, tt.wantCalls)
			}
			if rec.Code == http.StatusBadRequest {
				var resp generated.ErrorResponse
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
					t.Fatalf("ошибка декодирования: %v", err)
				}
				if resp.Error.Code != generated.ErrorResponseErrorCodeVALIDATIONERROR {
					t.Errorf("код = %s", resp.Error.Code)
				}
			}
		})
	}

	if h.params.State == nil || *h.params.State != generated.ProjectStateHeld {
		t.Errorf("state не привязан: %+v", h.params)
	}
	if h.params.Limit == nil || *h.params.Limit != 20 {
		t.Errorf("limit не привязан: %+v", h.params)
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	srv := newTestServer(t, generated.Unimplemented{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run вернул ошибку: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
}
