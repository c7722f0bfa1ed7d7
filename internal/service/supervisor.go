// supervisor.go — запуск мониторов активных проектов и janitor.
//
// Supervisor периодически читает ID активных проектов и запускает монитор для
// каждого нового. Монитор удаляется из реестра только сам (через Deregister),
// поэтому решение о завершении принимается в одном месте.
package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/datadispatcher/internal/scheduler"
)

var (
	monitorsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dd_project_monitors",
		Help: "Количество работающих мониторов проектов",
	})

	abandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dd_projects_abandoned_total",
		Help: "Количество проектов, переведённых в abandoned",
	})

	purgedReplicasTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dd_replicas_purged_total",
		Help: "Количество удалённых сиротских реплик",
	})
)

// SupervisorStore — операции Store, нужные supervisor'у.
type SupervisorStore interface {
	ActiveProjectIDs(ctx context.Context) ([]int64, error)
	MarkAbandoned(ctx context.Context) ([]int64, error)
	PurgeReplicas(ctx context.Context) (int, error)
}

// Monitor — запущенный монитор проекта.
type Monitor interface {
	Start() error
	Retire(reason string)
}

// MonitorFactory создаёт монитор проекта. deregister монитор вызывает при завершении.
type MonitorFactory func(projectID int64, deregister func(int64)) Monitor

// Supervisor — запуск мониторов проектов и периодическая очистка.
type Supervisor struct {
	store      SupervisorStore
	newMonitor MonitorFactory
	sched      *scheduler.Scheduler
	interval   time.Duration
	janitor    time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	monitors map[int64]Monitor
	stopped  bool
}

// NewSupervisor создаёт supervisor. interval — период поиска новых проектов,
// janitor — период очистки.
func NewSupervisor(
	store SupervisorStore,
	newMonitor MonitorFactory,
	sched *scheduler.Scheduler,
	interval, janitor time.Duration,
	logger *slog.Logger,
) *Supervisor {
	return &Supervisor{
		store:      store,
		newMonitor: newMonitor,
		sched:      sched,
		interval:   interval,
		janitor:    janitor,
		logger:     logger.With(slog.String("component", "supervisor")),
		monitors:   make(map[int64]Monitor),
	}
}

// Start регистрирует задачи supervisor/discover и supervisor/janitor.
func (s *Supervisor) Start() error {
	if err := s.sched.Add("supervisor/discover", s.interval, s.Discover); err != nil {
		return err
	}
	if err := s.sched.Add("supervisor/janitor", s.janitor, s.Janitor,
		scheduler.WithInitialDelay(s.janitor)); err != nil {
		s.sched.Cancel("supervisor/discover")
		return err
	}
	s.logger.Info("Supervisor запущен",
		slog.String("interval", s.interval.String()),
		slog.String("janitor_interval", s.janitor.String()),
	)
	return nil
}

// Stop снимает задачи supervisor'а и завершает все мониторы.
func (s *Supervisor) Stop() {
	s.sched.CancelPrefix("supervisor/")

	s.mu.Lock()
	s.stopped = true
	monitors := make([]Monitor, 0, len(s.monitors))
	for _, m := range s.monitors {
		monitors = append(monitors, m)
	}
	s.mu.Unlock()

	for _, m := range monitors {
		m.Retire(RetireShutdown)
	}
}

// Discover запускает мониторы для активных проектов, у которых их ещё нет.
func (s *Supervisor) Discover(ctx context.Context) {
	ids, err := s.store.ActiveProjectIDs(ctx)
	if err != nil {
		s.logger.Warn("Ошибка чтения активных проектов", slog.String("error", err.Error()))
		return
	}

	for _, id := range ids {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		if _, ok := s.monitors[id]; ok {
			s.mu.Unlock()
			continue
		}
		m := s.newMonitor(id, s.Deregister)
		s.monitors[id] = m
		monitorsGauge.Set(float64(len(s.monitors)))
		s.mu.Unlock()

		if err := m.Start(); err != nil {
			s.logger.Error("Ошибка запуска монитора проекта",
				slog.Int64("project_id", id),
				slog.String("error", err.Error()),
			)
			s.Deregister(id)
			continue
		}
		s.logger.Info("Монитор проекта создан", slog.Int64("project_id", id))
	}
}

// Deregister удаляет монитор из реестра. Вызывается монитором при завершении.
func (s *Supervisor) Deregister(projectID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.monitors, projectID)
	monitorsGauge.Set(float64(len(s.monitors)))
}

// Kick запрашивает внеочередную обработку проекта. Без монитора запускается
// поиск активных проектов, иначе обновление доступности и pin-запросов
// монитора (до первой синхронизации — сама синхронизация).
func (s *Supervisor) Kick(projectID int64) {
	s.mu.Lock()
	_, monitored := s.monitors[projectID]
	s.mu.Unlock()

	if !monitored {
		s.sched.RunNow("supervisor/discover")
		return
	}
	prefix := monitorPrefix(projectID)
	if !s.sched.RunNow(prefix + "update") {
		s.sched.RunNow(prefix + "sync")
	}
}

// Monitored возвращает ID проектов с работающими мониторами.
func (s *Supervisor) Monitored() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.monitors))
	for id := range s.monitors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Janitor переводит простаивающие проекты в abandoned и удаляет сиротские реплики.
func (s *Supervisor) Janitor(ctx context.Context) {
	ids, err := s.store.MarkAbandoned(ctx)
	if err != nil {
		s.logger.Warn("Ошибка поиска простаивающих проектов", slog.String("error", err.Error()))
	} else if len(ids) > 0 {
		abandonedTotal.Add(float64(len(ids)))
		s.logger.Info("Проекты переведены в abandoned", slog.Any("project_ids", ids))
	}

	n, err := s.store.PurgeReplicas(ctx)
	if err != nil {
		s.logger.Warn("Ошибка очистки реплик", slog.String("error", err.Error()))
	} else if n > 0 {
		purgedReplicasTotal.Add(float64(n))
		s.logger.Info("Сиротские реплики удалены", slog.Int("count", n))
	}
}
