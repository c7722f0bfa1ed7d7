package service

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
	"github.com/bigkaa/datadispatcher/internal/repository"
	"github.com/bigkaa/datadispatcher/internal/scheduler"
)

// mockMonitorStore — мок MonitorStore с функциональными полями.
type mockMonitorStore struct {
	getProjectFn    func(ctx context.Context, id int64) (*model.Project, error)
	activeHandlesFn func(ctx context.Context, projectID int64) ([]*model.FileHandle, error)
	handleCountsFn  func(ctx context.Context, projectID int64) (int, int, error)
	listRSEsFn      func(ctx context.Context) ([]*model.RSE, error)
	syncReplicasFn  func(ctx context.Context, byFile map[model.DID]map[string]model.ReplicaInfo) (model.SyncStats, error)
	releaseTimedFn  func(ctx context.Context, projectID int64, before time.Time) (int, error)
}

func (m *mockMonitorStore) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	return m.getProjectFn(ctx, id)
}

func (m *mockMonitorStore) ActiveHandles(ctx context.Context, projectID int64) ([]*model.FileHandle, error) {
	return m.activeHandlesFn(ctx, projectID)
}

func (m *mockMonitorStore) HandleCounts(ctx context.Context, projectID int64) (int, int, error) {
	return m.handleCountsFn(ctx, projectID)
}

func (m *mockMonitorStore) ListRSEs(ctx context.Context) ([]*model.RSE, error) {
	return m.listRSEsFn(ctx)
}

func (m *mockMonitorStore) SyncReplicas(ctx context.Context, byFile map[model.DID]map[string]model.ReplicaInfo) (model.SyncStats, error) {
	return m.syncReplicasFn(ctx, byFile)
}

func (m *mockMonitorStore) ReleaseTimedOutHandles(ctx context.Context, projectID int64, before time.Time) (int, error) {
	return m.releaseTimedFn(ctx, projectID, before)
}

// mockCatalog — мок каталога реплик.
type mockCatalog struct {
	mu    sync.Mutex
	calls [][]model.DID
	fn    func(dids []model.DID) (map[model.DID]map[string][]string, error)
}

func (m *mockCatalog) Replicas(_ context.Context, dids []model.DID) (map[model.DID]map[string][]string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, dids)
	m.mu.Unlock()
	return m.fn(dids)
}

// recordingPinner записывает потребность проекта по RSE.
type recordingPinner struct {
	mu       sync.Mutex
	pinned   map[string]map[model.DID]string
	unpinned []string
	errs     map[string]error
	// beforePin вызывается до записи потребности, вне блокировки
	beforePin func(rse string)
}

func newRecordingPinner() *recordingPinner {
	return &recordingPinner{pinned: make(map[string]map[model.DID]string)}
}

func (p *recordingPinner) PinProject(_ context.Context, rse string, _ int64, files map[model.DID]string) error {
	if p.beforePin != nil {
		p.beforePin(rse)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.errs[rse]; err != nil {
		return err
	}
	p.pinned[rse] = files
	return nil
}

func (p *recordingPinner) UnpinProject(rse string, _ int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pinned, rse)
	p.unpinned = append(p.unpinned, rse)
}

func (p *recordingPinner) unpinnedRSEs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]string(nil), p.unpinned...)
	sort.Strings(out)
	return out
}

func testRSEs() []*model.RSE {
	return []*model.RSE{
		{Name: "DISK", IsEnabled: true, IsAvailable: true, Preference: 10},
		{Name: "TAPE", IsEnabled: true, IsAvailable: true, IsTape: true, AddPrefix: "/tape"},
		{Name: "TAPE2", IsEnabled: true, IsAvailable: true, IsTape: true},
	}
}

func handle(name string, replicas ...model.Replica) *model.FileHandle {
	return &model.FileHandle{ProjectID: 1, Namespace: "ns", Name: name, State: model.HandleInitial, Replicas: replicas}
}

func newTestMonitor(t *testing.T, store MonitorStore, cat ReplicaCatalog, pinner ProjectPinner, deregister func(int64)) (*ProjectMonitor, *scheduler.Scheduler) {
	t.Helper()
	sched := scheduler.New(context.Background(), testLogger())
	t.Cleanup(sched.Stop)
	m := NewProjectMonitor(1, store, cat, pinner, sched, MonitorConfig{
		SyncInterval:   time.Hour,
		UpdateInterval: time.Hour,
		CheckInterval:  time.Hour,
		CatalogBatch:   2,
	}, deregister, testLogger())
	return m, sched
}

// TestProjectMonitor_Sync проверяет порции запросов к каталогу, нормализацию
// путей, пропуск неизвестных RSE и включение задачи update.
func TestProjectMonitor_Sync(t *testing.T) {
	var mu sync.Mutex
	var synced []map[model.DID]map[string]model.ReplicaInfo

	store := &mockMonitorStore{
		// Включённая задача update сразу выполняется в фоне
		getProjectFn: func(context.Context, int64) (*model.Project, error) {
			return nil, repository.ErrNotFound
		},
		activeHandlesFn: func(context.Context, int64) ([]*model.FileHandle, error) {
			return []*model.FileHandle{handle("a"), handle("b"), handle("c")}, nil
		},
		listRSEsFn: func(context.Context) ([]*model.RSE, error) { return testRSEs(), nil },
		syncReplicasFn: func(_ context.Context, byFile map[model.DID]map[string]model.ReplicaInfo) (model.SyncStats, error) {
			mu.Lock()
			defer mu.Unlock()
			synced = append(synced, byFile)
			return model.SyncStats{Upserted: len(byFile)}, nil
		},
	}
	cat := &mockCatalog{fn: func(dids []model.DID) (map[model.DID]map[string][]string, error) {
		out := make(map[model.DID]map[string][]string)
		for _, d := range dids {
			if d.Name == "c" {
				continue
			}
			out[d] = map[string][]string{
				"DISK":    {"root://disk//data/" + d.Name},
				"TAPE":    {"https://tape/" + d.Name},
				"UNKNOWN": {"https://x/" + d.Name},
			}
		}
		return out, nil
	}}

	m, sched := newTestMonitor(t, store, cat, newRecordingPinner(), nil)
	m.Sync(context.Background())

	if len(cat.calls) != 2 || len(cat.calls[0]) != 2 || len(cat.calls[1]) != 1 {
		t.Fatalf("запросы к каталогу = %v, ожидались порции 2+1", cat.calls)
	}
	if len(synced) != 2 {
		t.Fatalf("вызовов SyncReplicas = %d, ожидалось 2", len(synced))
	}

	a := synced[0][did("a")]
	if len(a) != 2 {
		t.Fatalf("реплики a = %v, ожидались DISK и TAPE", a)
	}
	if a["DISK"].Path != "/data/a" || !a["DISK"].Available || a["DISK"].Preference != 10 {
		t.Errorf("DISK = %+v", a["DISK"])
	}
	if a["TAPE"].Path != "/tape/a" || a["TAPE"].Available {
		t.Errorf("TAPE = %+v", a["TAPE"])
	}

	// Файл, не найденный в каталоге, передаётся с пустым набором реплик
	c, ok := synced[1][did("c")]
	if !ok || len(c) != 0 {
		t.Errorf("c = %v, ok = %v", c, ok)
	}

	if !sched.Has("project/1/update") {
		t.Error("задача update не включена после успешной синхронизации")
	}
}

// TestProjectMonitor_SyncError: ошибка каталога не включает задачу update.
func TestProjectMonitor_SyncError(t *testing.T) {
	store := &mockMonitorStore{
		activeHandlesFn: func(context.Context, int64) ([]*model.FileHandle, error) {
			return []*model.FileHandle{handle("a")}, nil
		},
		listRSEsFn: func(context.Context) ([]*model.RSE, error) { return testRSEs(), nil },
		syncReplicasFn: func(context.Context, map[model.DID]map[string]model.ReplicaInfo) (model.SyncStats, error) {
			t.Error("SyncReplicas не должен вызываться")
			return model.SyncStats{}, nil
		},
	}
	cat := &mockCatalog{fn: func([]model.DID) (map[model.DID]map[string][]string, error) {
		return nil, errors.New("catalog unavailable")
	}}

	m, sched := newTestMonitor(t, store, cat, newRecordingPinner(), nil)
	m.Sync(context.Background())

	if sched.Has("project/1/update") {
		t.Error("задача update включена после ошибки")
	}
}

// TestProjectMonitor_Update проверяет потребность по ленточным RSE,
// снятие потребности и возврат зависших резервирований.
func TestProjectMonitor_Update(t *testing.T) {
	timeout := 10 * time.Minute
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var releasedBefore time.Time

	handles := []*model.FileHandle{
		handle("a",
			model.Replica{Namespace: "ns", Name: "a", RSE: "DISK", Path: "/data/a"},
			model.Replica{Namespace: "ns", Name: "a", RSE: "TAPE", Path: "/tape/a"},
		),
		handle("b",
			model.Replica{Namespace: "ns", Name: "b", RSE: "TAPE", Path: "/tape/b"},
			model.Replica{Namespace: "ns", Name: "b", RSE: "TAPE2", Path: "/t2/b"},
		),
	}
	var handlesMu sync.Mutex

	store := &mockMonitorStore{
		getProjectFn: func(context.Context, int64) (*model.Project, error) {
			return &model.Project{ID: 1, State: model.ProjectActive, WorkerTimeout: &timeout}, nil
		},
		activeHandlesFn: func(context.Context, int64) ([]*model.FileHandle, error) {
			handlesMu.Lock()
			defer handlesMu.Unlock()
			return handles, nil
		},
		listRSEsFn: func(context.Context) ([]*model.RSE, error) { return testRSEs(), nil },
		releaseTimedFn: func(_ context.Context, _ int64, before time.Time) (int, error) {
			releasedBefore = before
			return 1, nil
		},
	}
	pinner := newRecordingPinner()

	m, _ := newTestMonitor(t, store, nil, pinner, nil)
	m.now = func() time.Time { return now }
	m.Update(context.Background())

	want := map[string]map[model.DID]string{
		"TAPE":  {did("a"): "/tape/a", did("b"): "/tape/b"},
		"TAPE2": {did("b"): "/t2/b"},
	}
	if !reflect.DeepEqual(pinner.pinned, want) {
		t.Errorf("потребность = %v, ожидалось %v", pinner.pinned, want)
	}
	if !releasedBefore.Equal(now.Add(-timeout)) {
		t.Errorf("граница таймаута = %v, ожидалось %v", releasedBefore, now.Add(-timeout))
	}

	// b завершён: на TAPE2 потребность снимается
	handlesMu.Lock()
	handles = handles[:1]
	handlesMu.Unlock()
	m.Update(context.Background())

	if got := pinner.unpinnedRSEs(); !reflect.DeepEqual(got, []string{"TAPE2"}) {
		t.Errorf("сняты = %v, ожидалось [TAPE2]", got)
	}
}

// TestProjectMonitor_Check проверяет причины завершения монитора.
func TestProjectMonitor_Check(t *testing.T) {
	tests := []struct {
		name       string
		project    *model.Project
		err        error
		active     int
		wantRetire bool
	}{
		{"удалён", nil, repository.ErrNotFound, 0, true},
		{"неактивен", &model.Project{ID: 1, State: model.ProjectHeld}, nil, 5, true},
		{"все handle завершены", &model.Project{ID: 1, State: model.ProjectActive}, nil, 0, true},
		{"активен", &model.Project{ID: 1, State: model.ProjectActive}, nil, 3, false},
		{"ошибка БД", nil, errors.New("db down"), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockMonitorStore{
				getProjectFn: func(context.Context, int64) (*model.Project, error) {
					return tt.project, tt.err
				},
				handleCountsFn: func(context.Context, int64) (int, int, error) {
					return tt.active, 0, nil
				},
			}
			var deregistered []int64
			m, _ := newTestMonitor(t, store, nil, newRecordingPinner(), func(id int64) {
				deregistered = append(deregistered, id)
			})

			m.Check(context.Background())

			if m.Retired() != tt.wantRetire {
				t.Errorf("Retired = %v, ожидалось %v", m.Retired(), tt.wantRetire)
			}
			if tt.wantRetire && !reflect.DeepEqual(deregistered, []int64{1}) {
				t.Errorf("deregister = %v", deregistered)
			}
		})
	}
}

// TestProjectMonitor_Retire проверяет снятие задач и потребности при завершении.
func TestProjectMonitor_Retire(t *testing.T) {
	timeout := time.Minute
	store := &mockMonitorStore{
		getProjectFn: func(context.Context, int64) (*model.Project, error) {
			return &model.Project{ID: 1, State: model.ProjectActive, WorkerTimeout: &timeout}, nil
		},
		activeHandlesFn: func(context.Context, int64) ([]*model.FileHandle, error) {
			return []*model.FileHandle{handle("a",
				model.Replica{Namespace: "ns", Name: "a", RSE: "TAPE", Path: "/tape/a"},
			)}, nil
		},
		listRSEsFn: func(context.Context) ([]*model.RSE, error) { return testRSEs(), nil },
		syncReplicasFn: func(context.Context, map[model.DID]map[string]model.ReplicaInfo) (model.SyncStats, error) {
			return model.SyncStats{}, nil
		},
		releaseTimedFn: func(context.Context, int64, time.Time) (int, error) { return 0, nil },
	}
	cat := &mockCatalog{fn: func([]model.DID) (map[model.DID]map[string][]string, error) {
		return map[model.DID]map[string][]string{}, nil
	}}
	pinner := newRecordingPinner()

	calls := 0
	m, sched := newTestMonitor(t, store, cat, pinner, func(int64) { calls++ })
	if err := m.Start(); err != nil {
		t.Fatalf("Start ошибка: %v", err)
	}
	m.Update(context.Background())

	m.Retire(RetireDone)
	m.Retire(RetireDone)

	if keys := sched.Keys(); len(keys) != 0 {
		t.Errorf("задачи после завершения = %v", keys)
	}
	if got := pinner.unpinnedRSEs(); !reflect.DeepEqual(got, []string{"TAPE"}) {
		t.Errorf("сняты = %v, ожидалось [TAPE]", got)
	}
	if calls != 1 {
		t.Errorf("deregister вызван %d раз, ожидался 1", calls)
	}

	// После завершения update не включается повторно
	m.arm()
	if sched.Has("project/1/update") {
		t.Error("задача update включена после завершения")
	}
}

// TestProjectMonitor_RetireDuringUpdate проверяет, что потребность, переданная
// задачей update одновременно с завершением монитора, тоже снимается.
func TestProjectMonitor_RetireDuringUpdate(t *testing.T) {
	store := &mockMonitorStore{
		getProjectFn: func(context.Context, int64) (*model.Project, error) {
			return &model.Project{ID: 1, State: model.ProjectActive}, nil
		},
		activeHandlesFn: func(context.Context, int64) ([]*model.FileHandle, error) {
			return []*model.FileHandle{
				handle("a", model.Replica{Namespace: "ns", Name: "a", RSE: "TAPE", Path: "/tape/a"}),
				handle("b", model.Replica{Namespace: "ns", Name: "b", RSE: "TAPE2", Path: "/t2/b"}),
			}, nil
		},
		listRSEsFn: func(context.Context) ([]*model.RSE, error) { return testRSEs(), nil },
	}
	pinner := newRecordingPinner()
	m, _ := newTestMonitor(t, store, nil, pinner, nil)

	// Проект становится неактивным, пока update передаёт потребность на TAPE
	pinner.beforePin = func(rse string) {
		if rse == "TAPE" {
			m.Retire("inactive (held)")
		}
	}
	m.Update(context.Background())

	if !m.Retired() {
		t.Fatal("монитор должен быть завершён")
	}
	pinner.mu.Lock()
	remaining := len(pinner.pinned)
	pinner.mu.Unlock()
	if remaining != 0 {
		t.Errorf("после завершения осталась потребность на %d RSE", remaining)
	}
	if got := pinner.unpinnedRSEs(); !reflect.DeepEqual(got, []string{"TAPE"}) {
		t.Errorf("сняты = %v, ожидалось [TAPE]", got)
	}
}
