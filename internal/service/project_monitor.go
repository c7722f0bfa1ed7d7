// project_monitor.go — фоновое сопровождение одного активного проекта.
//
// Монитор регистрирует в планировщике три задачи:
//   - project/<id>/sync   — синхронизация реплик активных handle с каталогом;
//   - project/<id>/update — потребность в staging по ленточным RSE и возврат
//     зависших резервирований (включается после первой успешной синхронизации);
//   - project/<id>/check  — проверка состояния проекта и завершение монитора.
//
// Завершившись, монитор снимает свои задачи, снимает потребность в staging на
// всех RSE, куда её передавал, и сообщает supervisor'у через функцию deregister.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
	"github.com/bigkaa/datadispatcher/internal/repository"
	"github.com/bigkaa/datadispatcher/internal/scheduler"
)

// Причины завершения монитора.
const (
	RetireDeleted  = "deleted"
	RetireDone     = "done"
	RetireShutdown = "shutdown"
)

var (
	monitorSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dd_monitor_sync_duration_seconds",
		Help:    "Длительность синхронизации реплик проекта с каталогом",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})

	monitorSyncErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dd_monitor_sync_errors_total",
		Help: "Количество неудачных синхронизаций реплик",
	})

	monitorRetiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dd_monitor_retired_total",
		Help: "Количество завершённых мониторов по причине",
	}, []string{"reason"})

	monitorTimedOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dd_handles_timed_out_total",
		Help: "Количество резервирований, возвращённых по worker_timeout",
	})
)

// MonitorStore — операции Store, нужные монитору проекта.
type MonitorStore interface {
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	ActiveHandles(ctx context.Context, projectID int64) ([]*model.FileHandle, error)
	HandleCounts(ctx context.Context, projectID int64) (active, failed int, err error)
	ListRSEs(ctx context.Context) ([]*model.RSE, error)
	SyncReplicas(ctx context.Context, byFile map[model.DID]map[string]model.ReplicaInfo) (model.SyncStats, error)
	ReleaseTimedOutHandles(ctx context.Context, projectID int64, before time.Time) (int, error)
}

// ReplicaCatalog — каталог реплик (catalog.Client).
type ReplicaCatalog interface {
	Replicas(ctx context.Context, dids []model.DID) (map[model.DID]map[string][]string, error)
}

// ProjectPinner — передача потребности проекта в staging по RSE (Pipelines).
type ProjectPinner interface {
	PinProject(ctx context.Context, rse string, projectID int64, files map[model.DID]string) error
	UnpinProject(rse string, projectID int64)
}

// MonitorConfig — интервалы задач монитора.
type MonitorConfig struct {
	SyncInterval   time.Duration
	UpdateInterval time.Duration
	CheckInterval  time.Duration
	CatalogBatch   int
}

// ProjectMonitor — монитор одного проекта.
type ProjectMonitor struct {
	id         int64
	store      MonitorStore
	catalog    ReplicaCatalog
	pinner     ProjectPinner
	sched      *scheduler.Scheduler
	cfg        MonitorConfig
	deregister func(int64)
	logger     *slog.Logger

	mu      sync.Mutex
	pinned  map[string]struct{}
	armed   bool
	retired bool

	now func() time.Time
}

// NewProjectMonitor создаёт монитор проекта. deregister вызывается один раз
// при завершении монитора.
func NewProjectMonitor(
	id int64,
	store MonitorStore,
	catalog ReplicaCatalog,
	pinner ProjectPinner,
	sched *scheduler.Scheduler,
	cfg MonitorConfig,
	deregister func(int64),
	logger *slog.Logger,
) *ProjectMonitor {
	if cfg.CatalogBatch < 1 {
		cfg.CatalogBatch = 100
	}
	return &ProjectMonitor{
		id:         id,
		store:      store,
		catalog:    catalog,
		pinner:     pinner,
		sched:      sched,
		cfg:        cfg,
		deregister: deregister,
		logger:     logger.With(slog.String("component", "project_monitor"), slog.Int64("project_id", id)),
		pinned:     make(map[string]struct{}),
		now:        time.Now,
	}
}

func (m *ProjectMonitor) prefix() string {
	return monitorPrefix(m.id)
}

// monitorPrefix — префикс ключей задач планировщика монитора проекта.
func monitorPrefix(projectID int64) string {
	return "project/" + strconv.FormatInt(projectID, 10) + "/"
}

// Start регистрирует задачи sync и check. Задача update добавляется после
// первой успешной синхронизации.
func (m *ProjectMonitor) Start() error {
	if err := m.sched.Add(m.prefix()+"sync", m.cfg.SyncInterval, m.Sync); err != nil {
		return err
	}
	if err := m.sched.Add(m.prefix()+"check", m.cfg.CheckInterval, m.Check,
		scheduler.WithInitialDelay(m.cfg.CheckInterval)); err != nil {
		m.sched.CancelPrefix(m.prefix())
		return err
	}
	m.logger.Info("Монитор проекта запущен")
	return nil
}

// Sync синхронизирует реплики активных handle с каталогом порциями
// по CatalogBatch файлов; каждая порция — отдельная транзакция.
func (m *ProjectMonitor) Sync(ctx context.Context) {
	start := time.Now()
	defer func() {
		monitorSyncDuration.Observe(time.Since(start).Seconds())
	}()

	if err := m.sync(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		monitorSyncErrors.Inc()
		m.logger.Warn("Ошибка синхронизации реплик", slog.String("error", err.Error()))
		return
	}
	m.arm()
}

func (m *ProjectMonitor) sync(ctx context.Context) error {
	handles, err := m.store.ActiveHandles(ctx, m.id)
	if err != nil {
		return fmt.Errorf("чтение активных handle: %w", err)
	}
	if len(handles) == 0 {
		return nil
	}

	rses, err := m.rseMap(ctx)
	if err != nil {
		return err
	}

	dids := make([]model.DID, len(handles))
	for i, h := range handles {
		dids[i] = h.DID()
	}

	var total model.SyncStats
	for start := 0; start < len(dids); start += m.cfg.CatalogBatch {
		chunk := dids[start:min(start+m.cfg.CatalogBatch, len(dids))]

		// Начатый запрос к каталогу не прерывается отменой задачи,
		// но его результат после отмены не применяется
		found, err := m.catalog.Replicas(context.WithoutCancel(ctx), chunk)
		if err != nil {
			return fmt.Errorf("запрос к каталогу: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		byFile := make(map[model.DID]map[string]model.ReplicaInfo, len(chunk))
		for _, did := range chunk {
			infos := make(map[string]model.ReplicaInfo)
			for rseName, urls := range found[did] {
				rse, ok := rses[rseName]
				if !ok {
					m.logger.Debug("Реплика на неизвестном RSE пропущена",
						slog.String("did", did.String()),
						slog.String("rse", rseName),
					)
					continue
				}
				info, err := replicaInfo(rse, urls)
				if err != nil {
					m.logger.Warn("Некорректная реплика пропущена",
						slog.String("did", did.String()),
						slog.String("rse", rseName),
						slog.String("error", err.Error()),
					)
					continue
				}
				infos[rseName] = info
			}
			byFile[did] = infos
		}

		stats, err := m.store.SyncReplicas(ctx, byFile)
		if err != nil {
			return fmt.Errorf("сохранение реплик: %w", err)
		}
		total.Upserted += stats.Upserted
		total.Removed += stats.Removed
	}

	m.logger.Info("Реплики синхронизированы",
		slog.Int("files", len(dids)),
		slog.Int("upserted", total.Upserted),
		slog.Int("removed", total.Removed),
	)
	return nil
}

// arm включает задачу update после первой успешной синхронизации.
func (m *ProjectMonitor) arm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.armed || m.retired {
		return
	}
	if err := m.sched.Add(m.prefix()+"update", m.cfg.UpdateInterval, m.Update); err != nil {
		m.logger.Error("Ошибка регистрации задачи update", slog.String("error", err.Error()))
		return
	}
	m.armed = true
}

// Update передаёт потребность проекта в staging ленточных RSE и возвращает
// в очередь резервирования старше worker_timeout.
func (m *ProjectMonitor) Update(ctx context.Context) {
	project, err := m.store.GetProject(ctx, m.id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			m.logger.Warn("Ошибка чтения проекта", slog.String("error", err.Error()))
		}
		return
	}

	if err := m.updateStaging(ctx); err != nil {
		m.logger.Warn("Ошибка обновления потребности в staging", slog.String("error", err.Error()))
	}

	if project.WorkerTimeout != nil && *project.WorkerTimeout > 0 {
		n, err := m.store.ReleaseTimedOutHandles(ctx, m.id, m.now().Add(-*project.WorkerTimeout))
		if err != nil {
			m.logger.Warn("Ошибка возврата зависших резервирований", slog.String("error", err.Error()))
		} else if n > 0 {
			monitorTimedOutTotal.Add(float64(n))
			m.logger.Info("Зависшие резервирования возвращены", slog.Int("count", n))
		}
	}
}

func (m *ProjectMonitor) updateStaging(ctx context.Context) error {
	handles, err := m.store.ActiveHandles(ctx, m.id)
	if err != nil {
		return fmt.Errorf("чтение активных handle: %w", err)
	}
	rses, err := m.rseMap(ctx)
	if err != nil {
		return err
	}

	byRSE := make(map[string]map[model.DID]string)
	for _, h := range handles {
		for _, r := range h.Replicas {
			rse, ok := rses[r.RSE]
			if !ok || !rse.IsTape || !rse.IsEnabled {
				continue
			}
			files := byRSE[r.RSE]
			if files == nil {
				files = make(map[model.DID]string)
				byRSE[r.RSE] = files
			}
			files[h.DID()] = r.Path
		}
	}

	names := make([]string, 0, len(byRSE))
	for name := range byRSE {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := m.pinner.PinProject(ctx, name, m.id, byRSE[name]); err != nil {
			m.logger.Warn("Ошибка передачи потребности в staging",
				slog.String("rse", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.mu.Lock()
		retired := m.retired
		if !retired {
			m.pinned[name] = struct{}{}
		}
		m.mu.Unlock()
		// Retire уже снял потребность по своему снимку pinned, и этот RSE
		// в него не попал
		if retired {
			m.pinner.UnpinProject(name, m.id)
			return nil
		}
	}

	// RSE, где проекту больше ничего не нужно
	m.mu.Lock()
	var drop []string
	for name := range m.pinned {
		if _, ok := byRSE[name]; !ok {
			drop = append(drop, name)
			delete(m.pinned, name)
		}
	}
	m.mu.Unlock()
	for _, name := range drop {
		m.pinner.UnpinProject(name, m.id)
	}
	return nil
}

// Check завершает монитор, если проект удалён, неактивен или в нём не осталось
// активных handle.
func (m *ProjectMonitor) Check(ctx context.Context) {
	project, err := m.store.GetProject(ctx, m.id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		m.Retire(RetireDeleted)
		return
	case err != nil:
		m.logger.Warn("Ошибка чтения проекта", slog.String("error", err.Error()))
		return
	}

	if project.State != model.ProjectActive {
		m.Retire(fmt.Sprintf("inactive (%s)", project.State))
		return
	}

	active, _, err := m.store.HandleCounts(ctx, m.id)
	if err != nil {
		m.logger.Warn("Ошибка подсчёта handle", slog.String("error", err.Error()))
		return
	}
	if active == 0 {
		m.Retire(RetireDone)
	}
}

// Retire завершает монитор. Повторные вызовы ничего не делают.
func (m *ProjectMonitor) Retire(reason string) {
	m.mu.Lock()
	if m.retired {
		m.mu.Unlock()
		return
	}
	m.retired = true
	pinned := make([]string, 0, len(m.pinned))
	for name := range m.pinned {
		pinned = append(pinned, name)
	}
	m.mu.Unlock()

	m.sched.CancelPrefix(m.prefix())
	for _, name := range pinned {
		m.pinner.UnpinProject(name, m.id)
	}

	monitorRetiredTotal.WithLabelValues(retireLabel(reason)).Inc()
	m.logger.Info("Монитор проекта завершён", slog.String("reason", reason))

	if m.deregister != nil {
		m.deregister(m.id)
	}
}

// Retired сообщает, завершён ли монитор.
func (m *ProjectMonitor) Retired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retired
}

func (m *ProjectMonitor) rseMap(ctx context.Context) (map[string]*model.RSE, error) {
	list, err := m.store.ListRSEs(ctx)
	if err != nil {
		return nil, fmt.Errorf("чтение RSE: %w", err)
	}
	rses := make(map[string]*model.RSE, len(list))
	for _, r := range list {
		rses[r.Name] = r
	}
	return rses, nil
}

// retireLabel сводит причину к ограниченному набору значений метки.
func retireLabel(reason string) string {
	switch reason {
	case RetireDeleted, RetireDone, RetireShutdown:
		return reason
	}
	return "inactive"
}
