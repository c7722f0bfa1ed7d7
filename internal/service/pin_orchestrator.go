// pin_orchestrator.go — управление запросами staging одного ленточного RSE.
//
// Мониторы проектов сообщают потребность через PinProject/UnpinProject.
// Периодический цикл (задача планировщика rse/<имя>/pin) сводит потребность
// всех проектов в одно множество путей и приводит к нему набор запросов
// на staging endpoint: лишние и истекающие запросы отменяются, непокрытые
// пути отправляются новыми запросами, по каждому запросу опрашивается статус.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
	"github.com/bigkaa/datadispatcher/internal/scheduler"
	"github.com/bigkaa/datadispatcher/internal/staging"
)

var (
	pinRequestsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dd_pin_requests",
		Help: "Количество активных запросов staging",
	}, []string{"rse"})

	pinDemandGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dd_pin_demand_files",
		Help: "Количество файлов, для которых нужен staging",
	}, []string{"rse"})

	pinOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dd_pin_operations_total",
		Help: "Операции с запросами staging по типу и результату",
	}, []string{"rse", "operation", "result"})

	pinCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dd_pin_cycle_duration_seconds",
		Help:    "Длительность цикла управления запросами staging",
		Buckets: prometheus.DefBuckets,
	}, []string{"rse"})
)

// Submitter принимает файлы на проверку locality.
type Submitter interface {
	Submit(files map[model.DID]string)
}

// PinOrchestrator — управление запросами staging одного RSE.
type PinOrchestrator struct {
	rse      string
	backend  staging.Backend
	store    AvailabilityStore
	poller   Submitter
	interval time.Duration
	warmup   time.Duration
	logger   *slog.Logger

	// mu защищает demand
	mu     sync.Mutex
	demand map[int64]map[model.DID]string

	// Состояние цикла; цикл не перекрывается (single-flight планировщика),
	// runMu защищает от прямых вызовов RunOnce в обход планировщика.
	runMu       sync.Mutex
	requests    []*staging.Request
	retryDelete []*staging.Request

	now func() time.Time
}

// NewPinOrchestrator создаёт управляющий staging для RSE.
// interval — период цикла, warmup — задержка первого цикла после старта.
func NewPinOrchestrator(
	rse string,
	backend staging.Backend,
	store AvailabilityStore,
	poller Submitter,
	interval, warmup time.Duration,
	logger *slog.Logger,
) *PinOrchestrator {
	return &PinOrchestrator{
		rse:      rse,
		backend:  backend,
		store:    store,
		poller:   poller,
		interval: interval,
		warmup:   warmup,
		logger:   logger.With(slog.String("component", "pin_orchestrator"), slog.String("rse", rse)),
		demand:   make(map[int64]map[model.DID]string),
		now:      time.Now,
	}
}

// taskKey — ключ задачи цикла в планировщике.
func (o *PinOrchestrator) taskKey() string {
	return "rse/" + o.rse + "/pin"
}

// Start регистрирует цикл в планировщике с задержкой warmup.
func (o *PinOrchestrator) Start(sched *scheduler.Scheduler) error {
	o.logger.Info("Управление staging запущено",
		slog.String("interval", o.interval.String()),
		slog.String("warmup", o.warmup.String()),
	)
	return sched.Add(o.taskKey(), o.interval, o.RunOnce, scheduler.WithInitialDelay(o.warmup))
}

// Stop снимает цикл с планировщика. Запросы на RSE не отменяются:
// они истекут сами по истечении lifetime.
func (o *PinOrchestrator) Stop(sched *scheduler.Scheduler) {
	sched.Cancel(o.taskKey())
}

// PinProject заменяет потребность проекта набором файлов {DID → путь на RSE}.
func (o *PinOrchestrator) PinProject(projectID int64, files map[model.DID]string) {
	set := make(map[model.DID]string, len(files))
	for did, path := range files {
		set[did] = path
	}

	o.mu.Lock()
	if len(set) == 0 {
		delete(o.demand, projectID)
	} else {
		o.demand[projectID] = set
	}
	o.mu.Unlock()
}

// UnpinProject удаляет потребность проекта.
func (o *PinOrchestrator) UnpinProject(projectID int64) {
	o.mu.Lock()
	delete(o.demand, projectID)
	o.mu.Unlock()
}

// Projects возвращает идентификаторы проектов с непустой потребностью.
func (o *PinOrchestrator) Projects() []int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]int64, 0, len(o.demand))
	for id := range o.demand {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Requests возвращает копию списка активных запросов.
func (o *PinOrchestrator) Requests() []*staging.Request {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	return append([]*staging.Request(nil), o.requests...)
}

// wanted сводит потребность всех проектов: путь → DID.
func (o *PinOrchestrator) wanted() map[string]model.DID {
	o.mu.Lock()
	defer o.mu.Unlock()

	byPath := make(map[string]model.DID)
	for _, files := range o.demand {
		for did, path := range files {
			byPath[path] = did
		}
	}
	return byPath
}

// RunOnce выполняет один цикл управления запросами.
func (o *PinOrchestrator) RunOnce(ctx context.Context) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	start := time.Now()
	defer func() {
		pinCycleDuration.WithLabelValues(o.rse).Observe(time.Since(start).Seconds())
	}()

	byPath := o.wanted()
	wanted := make(map[string]struct{}, len(byPath))
	for path := range byPath {
		wanted[path] = struct{}{}
	}
	pinDemandGauge.WithLabelValues(o.rse).Set(float64(len(wanted)))

	o.retryDeletes(ctx)
	o.dropStale(ctx, wanted)
	o.createMissing(ctx, wanted)
	o.queryAll(ctx, byPath)

	pinRequestsGauge.WithLabelValues(o.rse).Set(float64(len(o.requests)))
}

// retryDeletes повторяет отмену запросов, не отменённых в прошлых циклах.
func (o *PinOrchestrator) retryDeletes(ctx context.Context) {
	if len(o.retryDelete) == 0 {
		return
	}
	var failed []*staging.Request
	for _, req := range o.retryDelete {
		if !o.delete(ctx, req) {
			failed = append(failed, req)
		}
	}
	o.retryDelete = failed
}

// dropStale отменяет запросы, которые протокол не сохраняет при текущей
// потребности, и запросы, истекающие в пределах трёх интервалов цикла.
func (o *PinOrchestrator) dropStale(ctx context.Context, wanted map[string]struct{}) {
	now := o.now()
	horizon := 3 * o.interval

	keep := o.backend.Keep(o.requests, wanted)
	kept := o.requests[:0]
	for i, req := range o.requests {
		switch {
		case !keep[i]:
			o.logger.Info("Запрос staging не соответствует потребности, отмена",
				slog.String("request_url", req.ID),
				slog.Int("files", len(req.Paths)),
			)
		case req.ExpiresWithin(now, horizon):
			o.logger.Info("Запрос staging истекает, отмена для обновления",
				slog.String("request_url", req.ID),
				slog.Time("expiration", req.Expiration),
			)
		default:
			kept = append(kept, req)
			continue
		}
		if !o.delete(ctx, req) {
			o.retryDelete = append(o.retryDelete, req)
		}
	}
	clear(o.requests[len(kept):])
	o.requests = kept
}

// createMissing отправляет запросы для путей, не покрытых сохранёнными запросами.
func (o *PinOrchestrator) createMissing(ctx context.Context, wanted map[string]struct{}) {
	covered := make(map[string]struct{}, len(wanted))
	for _, req := range o.requests {
		for path := range req.Paths {
			covered[path] = struct{}{}
		}
	}

	uncovered := make([]string, 0, len(wanted))
	for path := range wanted {
		if _, ok := covered[path]; !ok {
			uncovered = append(uncovered, path)
		}
	}
	if len(uncovered) == 0 {
		return
	}
	sort.Strings(uncovered)

	for _, chunk := range o.backend.Split(uncovered) {
		req, err := o.backend.Create(ctx, chunk)
		if err != nil {
			pinOperationsTotal.WithLabelValues(o.rse, "create", "error").Inc()
			o.logger.Warn("Ошибка создания запроса staging",
				slog.Int("files", len(chunk)),
				slog.String("error", err.Error()),
			)
			continue
		}
		pinOperationsTotal.WithLabelValues(o.rse, "create", "ok").Inc()
		o.requests = append(o.requests, req)
	}
}

// queryAll опрашивает запросы: staged-файлы отмечаются доступными в Store,
// остальные передаются poller'у для проверки locality.
func (o *PinOrchestrator) queryAll(ctx context.Context, byPath map[string]model.DID) {
	var staged []model.DID
	pending := make(map[model.DID]string)

	kept := o.requests[:0]
	for _, req := range o.requests {
		status, err := o.backend.Query(ctx, req)
		switch {
		case errors.Is(err, staging.ErrNotFound):
			// RSE забыл запрос; пути будут запрошены заново в следующем цикле
			pinOperationsTotal.WithLabelValues(o.rse, "query", "not_found").Inc()
			o.logger.Warn("Запрос staging не найден на RSE", slog.String("request_url", req.ID))
			continue
		case err != nil:
			pinOperationsTotal.WithLabelValues(o.rse, "query", "error").Inc()
			o.logger.Warn("Ошибка опроса запроса staging",
				slog.String("request_url", req.ID),
				slog.String("error", err.Error()),
			)
			kept = append(kept, req)
			continue
		}
		pinOperationsTotal.WithLabelValues(o.rse, "query", "ok").Inc()
		kept = append(kept, req)

		for _, path := range status.Staged {
			if did, ok := byPath[path]; ok {
				staged = append(staged, did)
			}
		}
		for _, path := range status.Pending {
			if did, ok := byPath[path]; ok {
				pending[did] = path
			}
		}
	}
	clear(o.requests[len(kept):])
	o.requests = kept

	if len(staged) > 0 {
		n, err := o.store.UpdateAvailabilityBulk(ctx, true, o.rse, staged)
		if err != nil {
			o.logger.Error("Ошибка обновления доступности staged-файлов", slog.String("error", err.Error()))
		} else if n > 0 {
			o.logger.Info("Файлы подняты на диск", slog.Int("count", n))
		}
	}
	if len(pending) > 0 && o.poller != nil {
		o.poller.Submit(pending)
	}
}

// delete отменяет запрос на RSE. Возвращает false при ошибке.
func (o *PinOrchestrator) delete(ctx context.Context, req *staging.Request) bool {
	if err := o.backend.Delete(ctx, req); err != nil {
		pinOperationsTotal.WithLabelValues(o.rse, "delete", "error").Inc()
		o.logger.Warn("Ошибка отмены запроса staging, повтор в следующем цикле",
			slog.String("request_url", req.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	pinOperationsTotal.WithLabelValues(o.rse, "delete", "ok").Inc()
	return true
}
