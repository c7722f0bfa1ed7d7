package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/datadispatcher/internal/scheduler"
)

type mockSupervisorStore struct {
	activeIDsFn     func(ctx context.Context) ([]int64, error)
	markAbandonedFn func(ctx context.Context) ([]int64, error)
	purgeFn         func(ctx context.Context) (int, error)
}

func (m *mockSupervisorStore) ActiveProjectIDs(ctx context.Context) ([]int64, error) {
	return m.activeIDsFn(ctx)
}

func (m *mockSupervisorStore) MarkAbandoned(ctx context.Context) ([]int64, error) {
	return m.markAbandonedFn(ctx)
}

func (m *mockSupervisorStore) PurgeReplicas(ctx context.Context) (int, error) {
	return m.purgeFn(ctx)
}

// fakeMonitor — монитор, завершение которого управляется тестом.
type fakeMonitor struct {
	id         int64
	deregister func(int64)
	startErr   error

	mu      sync.Mutex
	started bool
	reasons []string
}

func (f *fakeMonitor) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return f.startErr
}

func (f *fakeMonitor) Retire(reason string) {
	f.mu.Lock()
	f.reasons = append(f.reasons, reason)
	f.mu.Unlock()
	f.deregister(f.id)
}

func newTestSupervisor(t *testing.T, store SupervisorStore, startErr error) (*Supervisor, map[int64]*fakeMonitor) {
	t.Helper()
	sched := scheduler.New(context.Background(), testLogger())
	t.Cleanup(sched.Stop)
	return newTestSupervisorWith(sched, store, startErr)
}

func newTestSupervisorWith(sched *scheduler.Scheduler, store SupervisorStore, startErr error) (*Supervisor, map[int64]*fakeMonitor) {
	created := make(map[int64]*fakeMonitor)
	factory := func(id int64, deregister func(int64)) Monitor {
		m := &fakeMonitor{id: id, deregister: deregister, startErr: startErr}
		created[id] = m
		return m
	}
	return NewSupervisor(store, factory, sched, time.Hour, time.Hour, testLogger()), created
}

// TestSupervisor_Discover: монитор создаётся один раз на проект
// и удаляется из реестра только самим монитором.
func TestSupervisor_Discover(t *testing.T) {
	ids := []int64{1, 2}
	store := &mockSupervisorStore{
		activeIDsFn: func(context.Context) ([]int64, error) { return ids, nil },
	}
	s, created := newTestSupervisor(t, store, nil)

	s.Discover(context.Background())
	s.Discover(context.Background())

	if len(created) != 2 {
		t.Fatalf("создано мониторов = %d, ожидалось 2", len(created))
	}
	if !created[1].started || !created[2].started {
		t.Error("мониторы не запущены")
	}

	// Проект 2 пропал из списка активных, но монитор остаётся до самоудаления
	ids = []int64{1}
	s.Discover(context.Background())
	if got := s.Monitored(); !reflect.DeepEqual(got, []int64{1, 2}) {
		t.Errorf("мониторы = %v, ожидалось [1 2]", got)
	}

	created[2].Retire(RetireDone)
	if got := s.Monitored(); !reflect.DeepEqual(got, []int64{1}) {
		t.Errorf("мониторы после завершения = %v, ожидалось [1]", got)
	}

	// Проект снова активен: создаётся новый монитор
	ids = []int64{1, 2}
	delete(created, 2)
	s.Discover(context.Background())
	if _, ok := created[2]; !ok {
		t.Error("монитор проекта 2 не пересоздан")
	}
}

// TestSupervisor_StartError: монитор, не сумевший запуститься, не остаётся в реестре.
func TestSupervisor_StartError(t *testing.T) {
	store := &mockSupervisorStore{
		activeIDsFn: func(context.Context) ([]int64, error) { return []int64{7}, nil },
	}
	s, _ := newTestSupervisor(t, store, errors.New("exists"))

	s.Discover(context.Background())
	if got := s.Monitored(); len(got) != 0 {
		t.Errorf("мониторы = %v, ожидалось пусто", got)
	}
}

// TestSupervisor_Janitor проверяет вызовы MarkAbandoned и PurgeReplicas,
// в том числе при ошибке первого.
func TestSupervisor_Janitor(t *testing.T) {
	var abandoned, purged int
	store := &mockSupervisorStore{
		markAbandonedFn: func(context.Context) ([]int64, error) {
			abandoned++
			return nil, errors.New("db down")
		},
		purgeFn: func(context.Context) (int, error) {
			purged++
			return 3, nil
		},
	}
	s, _ := newTestSupervisor(t, store, nil)

	s.Janitor(context.Background())

	if abandoned != 1 || purged != 1 {
		t.Errorf("MarkAbandoned = %d, PurgeReplicas = %d, ожидалось 1 и 1", abandoned, purged)
	}
}

// TestSupervisor_Stop завершает все мониторы.
func TestSupervisor_Stop(t *testing.T) {
	store := &mockSupervisorStore{
		activeIDsFn: func(context.Context) ([]int64, error) { return []int64{1, 2}, nil },
	}
	s, created := newTestSupervisor(t, store, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start ошибка: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(s.Monitored()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	s.Stop()

	if got := s.Monitored(); len(got) != 0 {
		t.Errorf("мониторы после остановки = %v", got)
	}
	for id, m := range created {
		m.mu.Lock()
		if !reflect.DeepEqual(m.reasons, []string{RetireShutdown}) {
			t.Errorf("монитор %d: причины = %v", id, m.reasons)
		}
		m.mu.Unlock()
	}
}

// TestSupervisor_Kick: для проекта с монитором запускается update (или sync
// до первой синхронизации), для проекта без монитора — поиск проектов.
func TestSupervisor_Kick(t *testing.T) {
	sched := scheduler.New(context.Background(), testLogger())
	t.Cleanup(sched.Stop)

	var discovered atomic.Int32
	store := &mockSupervisorStore{
		activeIDsFn: func(context.Context) ([]int64, error) {
			discovered.Add(1)
			return []int64{1, 2}, nil
		},
	}
	s, _ := newTestSupervisorWith(sched, store, nil)
	s.Discover(context.Background())
	discovered.Store(0)

	// Задачи мониторов регистрируются тестом: fakeMonitor их не создаёт
	var update1, sync2 atomic.Int32
	delayed := scheduler.WithInitialDelay(time.Hour)
	if err := sched.Add("project/1/update", time.Hour, func(context.Context) { update1.Add(1) }, delayed); err != nil {
		t.Fatalf("Add ошибка: %v", err)
	}
	if err := sched.Add("project/2/sync", time.Hour, func(context.Context) { sync2.Add(1) }, delayed); err != nil {
		t.Fatalf("Add ошибка: %v", err)
	}
	if err := sched.Add("supervisor/discover", time.Hour, s.Discover, delayed); err != nil {
		t.Fatalf("Add ошибка: %v", err)
	}

	s.Kick(1)
	s.Kick(2)
	s.Kick(3)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if update1.Load() == 1 && sync2.Load() == 1 && discovered.Load() == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("update проекта 1 = %d, sync проекта 2 = %d, discover = %d; ожидалось по 1",
		update1.Load(), sync2.Load(), discovered.Load())
}
