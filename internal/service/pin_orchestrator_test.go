package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
	"github.com/bigkaa/datadispatcher/internal/httpclient"
	"github.com/bigkaa/datadispatcher/internal/staging"
)

// stagingServer — имитация staging endpoint для обоих протоколов.
type stagingServer struct {
	t    *testing.T
	bulk bool

	mu         sync.Mutex
	next       int
	requests   map[string][]string
	created    [][]string
	deleted    [][]string
	staged     map[string]bool
	failDelete bool
}

func newStagingServer(t *testing.T, bulk bool) (*stagingServer, *httptest.Server) {
	s := &stagingServer{
		t:        t,
		bulk:     bulk,
		requests: make(map[string][]string),
		staged:   make(map[string]bool),
	}
	srv := httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *stagingServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		var body struct {
			Target []string `json:"target"`
			Files  []struct {
				Path string `json:"path"`
			} `json:"files"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.t.Errorf("некорректное тело запроса: %v", err)
		}
		paths := body.Target
		for _, f := range body.Files {
			paths = append(paths, f.Path)
		}
		sort.Strings(paths)

		s.next++
		id := fmt.Sprintf("/req/%d", s.next)
		s.requests[id] = paths
		s.created = append(s.created, paths)
		w.Header().Set("Location", id)
		w.WriteHeader(http.StatusCreated)

	case http.MethodGet:
		paths, ok := s.requests[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if s.bulk {
			type target struct {
				Target string `json:"target"`
				State  string `json:"state"`
			}
			resp := struct {
				Status  string   `json:"status"`
				Targets []target `json:"targets"`
			}{Status: "STARTED"}
			for _, p := range paths {
				state := "RUNNING"
				if s.staged[p] {
					state = "COMPLETED"
				}
				resp.Targets = append(resp.Targets, target{Target: p, State: state})
			}
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
		type file struct {
			Path   string `json:"path"`
			OnDisk bool   `json:"onDisk"`
		}
		var resp struct {
			Files []file `json:"files"`
		}
		for _, p := range paths {
			resp.Files = append(resp.Files, file{Path: p, OnDisk: s.staged[p]})
		}
		_ = json.NewEncoder(w).Encode(resp)

	case http.MethodDelete:
		if s.failDelete {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		paths, ok := s.requests[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(s.requests, r.URL.Path)
		s.deleted = append(s.deleted, paths)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *stagingServer) snapshot() (created, deleted [][]string, live int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.created...), append([][]string(nil), s.deleted...), len(s.requests)
}

func (s *stagingServer) setStaged(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		s.staged[p] = true
	}
}

func (s *stagingServer) forget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = make(map[string][]string)
}

func newTestOrchestrator(t *testing.T, srv *httptest.Server, bulk bool, opts staging.Options) (*PinOrchestrator, *fakeAvailabilityStore, *fakeSubmitter) {
	t.Helper()
	client := httpclient.NewWithHTTPClient(srv.Client(), nil, testLogger())

	var backend staging.Backend
	if bulk {
		backend = staging.NewBulk(client, srv.URL+"/bulk", "", opts, testLogger())
	} else {
		backend = staging.NewPaginated(client, srv.URL+"/tape", opts, testLogger())
	}

	store := &fakeAvailabilityStore{}
	sub := &fakeSubmitter{}
	o := NewPinOrchestrator("TAPE", backend, store, sub, time.Minute, 0, testLogger())
	return o, store, sub
}

func requestPaths(o *PinOrchestrator) [][]string {
	var out [][]string
	for _, r := range o.Requests() {
		out = append(out, r.SortedPaths())
	}
	sort.Slice(out, func(i, j int) bool { return strings.Join(out[i], ",") < strings.Join(out[j], ",") })
	return out
}

// TestPinOrchestrator_BulkDemandChange: при смене потребности {a,b} → {a,c}
// bulk-запрос отменяется целиком и создаётся новый на {a,c}.
func TestPinOrchestrator_BulkDemandChange(t *testing.T) {
	srvState, srv := newStagingServer(t, true)
	o, _, sub := newTestOrchestrator(t, srv, true, staging.Options{Lifetime: 48 * time.Hour})
	ctx := context.Background()

	o.PinProject(1, map[model.DID]string{did("a"): "/a", did("b"): "/b"})
	o.RunOnce(ctx)

	o.PinProject(1, map[model.DID]string{did("a"): "/a", did("c"): "/c"})
	o.RunOnce(ctx)

	created, deleted, live := srvState.snapshot()
	wantCreated := [][]string{{"/a", "/b"}, {"/a", "/c"}}
	if !reflect.DeepEqual(created, wantCreated) {
		t.Errorf("созданы = %v, ожидалось %v", created, wantCreated)
	}
	if !reflect.DeepEqual(deleted, [][]string{{"/a", "/b"}}) {
		t.Errorf("отменены = %v", deleted)
	}
	if live != 1 {
		t.Errorf("запросов на сервере = %d, ожидался 1", live)
	}
	if got := requestPaths(o); !reflect.DeepEqual(got, [][]string{{"/a", "/c"}}) {
		t.Errorf("локальные запросы = %v", got)
	}

	// Не staged файлы переданы poller'у
	pending := sub.submitted()
	if pending[did("a")] != "/a" || pending[did("c")] != "/c" {
		t.Errorf("переданы poller'у = %v", pending)
	}
}

// TestPinOrchestrator_PaginatedDemandChange: при смене потребности {a,b} → {a,c}
// запрос {a} сохраняется, {b} отменяется, для {c} создаётся новый.
func TestPinOrchestrator_PaginatedDemandChange(t *testing.T) {
	srvState, srv := newStagingServer(t, false)
	o, _, _ := newTestOrchestrator(t, srv, false, staging.Options{
		Lifetime:  48 * time.Hour,
		ChunkSize: 1,
		LowWater:  1,
	})
	ctx := context.Background()

	o.PinProject(1, map[model.DID]string{did("a"): "/a", did("b"): "/b"})
	o.RunOnce(ctx)

	o.PinProject(1, map[model.DID]string{did("a"): "/a", did("c"): "/c"})
	o.RunOnce(ctx)

	created, deleted, live := srvState.snapshot()
	wantCreated := [][]string{{"/a"}, {"/b"}, {"/c"}}
	if !reflect.DeepEqual(created, wantCreated) {
		t.Errorf("созданы = %v, ожидалось %v", created, wantCreated)
	}
	if !reflect.DeepEqual(deleted, [][]string{{"/b"}}) {
		t.Errorf("отменены = %v", deleted)
	}
	if live != 2 {
		t.Errorf("запросов на сервере = %d, ожидалось 2", live)
	}
	if got := requestPaths(o); !reflect.DeepEqual(got, [][]string{{"/a"}, {"/c"}}) {
		t.Errorf("локальные запросы = %v", got)
	}
}

// TestPinOrchestrator_PaginatedLowWater: запрос меньше нижней границы
// пересоздаётся вместе с остальными путями.
func TestPinOrchestrator_PaginatedLowWater(t *testing.T) {
	srvState, srv := newStagingServer(t, false)
	o, _, _ := newTestOrchestrator(t, srv, false, staging.Options{
		Lifetime:  48 * time.Hour,
		ChunkSize: 10,
		LowWater:  3,
	})
	ctx := context.Background()

	o.PinProject(1, map[model.DID]string{did("a"): "/a", did("b"): "/b"})
	o.RunOnce(ctx)
	o.PinProject(2, map[model.DID]string{did("c"): "/c"})
	o.RunOnce(ctx)

	created, deleted, _ := srvState.snapshot()
	if !reflect.DeepEqual(created, [][]string{{"/a", "/b"}, {"/a", "/b", "/c"}}) {
		t.Errorf("созданы = %v", created)
	}
	if !reflect.DeepEqual(deleted, [][]string{{"/a", "/b"}}) {
		t.Errorf("отменены = %v", deleted)
	}

	// Потребность не изменилась: запрос меньше границы уже покрывает её
	// целиком и не пересоздаётся
	o.UnpinProject(2)
	o.RunOnce(ctx)
	o.RunOnce(ctx)
	created, deleted, live := srvState.snapshot()
	if !reflect.DeepEqual(created, [][]string{{"/a", "/b"}, {"/a", "/b", "/c"}, {"/a", "/b"}}) {
		t.Errorf("созданы = %v", created)
	}
	if len(deleted) != 2 || live != 1 {
		t.Errorf("отменено %d, на сервере %d; ожидалось 2 и 1", len(deleted), live)
	}
}

// TestPinOrchestrator_StagedMarkedAvailable проверяет отметку staged-файлов в Store.
func TestPinOrchestrator_StagedMarkedAvailable(t *testing.T) {
	srvState, srv := newStagingServer(t, true)
	o, store, sub := newTestOrchestrator(t, srv, true, staging.Options{Lifetime: 48 * time.Hour})
	ctx := context.Background()

	srvState.setStaged("/a")
	o.PinProject(7, map[model.DID]string{did("a"): "/a", did("b"): "/b"})
	o.RunOnce(ctx)

	calls := store.snapshot()
	if len(calls) != 1 || calls[0].op != "update" || !calls[0].available || calls[0].rse != "TAPE" {
		t.Fatalf("вызовы Store = %+v", calls)
	}
	if !reflect.DeepEqual(calls[0].dids, []model.DID{did("a")}) {
		t.Errorf("доступными отмечены %v", calls[0].dids)
	}
	pending := sub.submitted()
	if len(pending) != 1 || pending[did("b")] != "/b" {
		t.Errorf("переданы poller'у = %v", pending)
	}
}

// TestPinOrchestrator_Unpin: после снятия потребности запрос отменяется.
func TestPinOrchestrator_Unpin(t *testing.T) {
	srvState, srv := newStagingServer(t, true)
	o, _, _ := newTestOrchestrator(t, srv, true, staging.Options{Lifetime: 48 * time.Hour})
	ctx := context.Background()

	o.PinProject(1, map[model.DID]string{did("a"): "/a"})
	o.RunOnce(ctx)
	o.UnpinProject(1)
	o.RunOnce(ctx)

	created, deleted, live := srvState.snapshot()
	if len(created) != 1 || len(deleted) != 1 || live != 0 {
		t.Errorf("созданы = %v, отменены = %v, на сервере = %d", created, deleted, live)
	}
	if len(o.Requests()) != 0 || len(o.Projects()) != 0 {
		t.Errorf("запросы = %v, проекты = %v", o.Requests(), o.Projects())
	}
}

// TestPinOrchestrator_RenewBeforeExpiry: запрос, истекающий в пределах трёх
// интервалов, пересоздаётся заранее.
func TestPinOrchestrator_RenewBeforeExpiry(t *testing.T) {
	srvState, srv := newStagingServer(t, true)
	o, _, _ := newTestOrchestrator(t, srv, true, staging.Options{Lifetime: 48 * time.Hour})
	ctx := context.Background()

	o.PinProject(1, map[model.DID]string{did("a"): "/a"})
	o.RunOnce(ctx)

	o.now = func() time.Time { return time.Now().Add(48*time.Hour - 2*time.Minute) }
	o.RunOnce(ctx)

	created, deleted, live := srvState.snapshot()
	if len(created) != 2 || len(deleted) != 1 || live != 1 {
		t.Errorf("созданы = %v, отменены = %v, на сервере = %d", created, deleted, live)
	}
}

// TestPinOrchestrator_DeleteRetry: неудачная отмена повторяется в следующем цикле.
func TestPinOrchestrator_DeleteRetry(t *testing.T) {
	srvState, srv := newStagingServer(t, true)
	o, _, _ := newTestOrchestrator(t, srv, true, staging.Options{Lifetime: 48 * time.Hour})
	ctx := context.Background()

	o.PinProject(1, map[model.DID]string{did("a"): "/a"})
	o.RunOnce(ctx)

	srvState.mu.Lock()
	srvState.failDelete = true
	srvState.mu.Unlock()

	o.UnpinProject(1)
	o.RunOnce(ctx)
	if _, deleted, live := srvState.snapshot(); len(deleted) != 0 || live != 1 {
		t.Fatalf("отменены = %v, на сервере = %d", deleted, live)
	}

	srvState.mu.Lock()
	srvState.failDelete = false
	srvState.mu.Unlock()

	o.RunOnce(ctx)
	if _, deleted, live := srvState.snapshot(); len(deleted) != 1 || live != 0 {
		t.Errorf("после повтора: отменены = %v, на сервере = %d", deleted, live)
	}
}

// TestPinOrchestrator_RequestLost: запрос, забытый RSE, создаётся заново.
func TestPinOrchestrator_RequestLost(t *testing.T) {
	srvState, srv := newStagingServer(t, true)
	o, _, _ := newTestOrchestrator(t, srv, true, staging.Options{Lifetime: 48 * time.Hour})
	ctx := context.Background()

	o.PinProject(1, map[model.DID]string{did("a"): "/a"})
	o.RunOnce(ctx)

	srvState.forget()
	o.RunOnce(ctx) // опрос получает 404, запрос удаляется локально
	if len(o.Requests()) != 0 {
		t.Fatalf("запросы = %v, ожидалось пусто", o.Requests())
	}

	o.RunOnce(ctx)
	if created, _, live := srvState.snapshot(); len(created) != 2 || live != 1 {
		t.Errorf("созданы = %v, на сервере = %d", created, live)
	}
}
