// pipelines.go — кэш per-RSE конвейеров staging: poller и pinner.
//
// Конвейер ленточного RSE создаётся лениво при первом обращении монитора
// проекта: poller — при наличии poll_url, pinner — при наличии pin_url и
// зарегистрированного протокола для типа RSE. Ошибка конфигурации одного RSE
// не влияет на остальные.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
	"github.com/bigkaa/datadispatcher/internal/repository"
	"github.com/bigkaa/datadispatcher/internal/scheduler"
	"github.com/bigkaa/datadispatcher/internal/staging"
)

var pipelinesGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "dd_rse_pipelines",
	Help: "Количество созданных конвейеров staging",
})

// RSELookup — чтение описания RSE.
type RSELookup interface {
	GetRSE(ctx context.Context, name string) (*model.RSE, error)
}

// BackendFactory создаёт протокол staging для RSE (staging.Registry.Backend).
type BackendFactory func(rse *model.RSE) (staging.Backend, error)

// CheckerFactory создаёт клиент locality для RSE.
type CheckerFactory func(rse *model.RSE) LocalityChecker

// PipelineConfig — параметры конвейеров.
type PipelineConfig struct {
	PollBurst   int
	PollStagger time.Duration
	PollIdle    time.Duration
	PinInterval time.Duration
	PinWarmup   time.Duration
}

// pipeline — конвейер одного RSE. poller и pinner могут отсутствовать.
type pipeline struct {
	rse    *model.RSE
	poller *AvailabilityPoller
	pinner *PinOrchestrator
}

// Pipelines — кэш конвейеров по имени RSE.
type Pipelines struct {
	ctx      context.Context
	rses     RSELookup
	store    AvailabilityStore
	backends BackendFactory
	checkers CheckerFactory
	sched    *scheduler.Scheduler
	cfg      PipelineConfig
	logger   *slog.Logger

	mu    sync.Mutex
	pipes map[string]*pipeline
}

// NewPipelines создаёт кэш конвейеров. ctx ограничивает время жизни
// горутин poller'ов, sched выполняет циклы pinner'ов.
func NewPipelines(
	ctx context.Context,
	rses RSELookup,
	store AvailabilityStore,
	backends BackendFactory,
	checkers CheckerFactory,
	sched *scheduler.Scheduler,
	cfg PipelineConfig,
	logger *slog.Logger,
) *Pipelines {
	return &Pipelines{
		ctx:      ctx,
		rses:     rses,
		store:    store,
		backends: backends,
		checkers: checkers,
		sched:    sched,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "pipelines")),
		pipes:    make(map[string]*pipeline),
	}
}

// get возвращает конвейер RSE, создавая его при первом обращении.
func (p *Pipelines) get(ctx context.Context, name string) (*pipeline, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pipe, ok := p.pipes[name]; ok {
		return pipe, nil
	}

	rse, err := p.rses.GetRSE(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: RSE %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("чтение RSE %s: %w", name, err)
	}

	pipe := &pipeline{rse: rse}

	// Протокол создаётся первым: при ошибке конфигурации конвейер не запускается
	var backend staging.Backend
	if rse.PinURL != "" {
		backend, err = p.backends(rse)
		if err != nil {
			return nil, fmt.Errorf("RSE %s: %w", name, err)
		}
	}

	if rse.PollURL != "" {
		burst := rse.MaxPollBurst
		if burst <= 0 {
			burst = p.cfg.PollBurst
		}
		pipe.poller = NewAvailabilityPoller(name, p.store, p.checkers(rse), burst, p.cfg.PollStagger, p.cfg.PollIdle, p.logger)
		pipe.poller.Start(p.ctx)
	}

	if backend != nil {
		var sub Submitter
		if pipe.poller != nil {
			sub = pipe.poller
		}
		pipe.pinner = NewPinOrchestrator(name, backend, p.store, sub, p.cfg.PinInterval, p.cfg.PinWarmup, p.logger)
		if err := pipe.pinner.Start(p.sched); err != nil {
			if pipe.poller != nil {
				pipe.poller.Stop()
			}
			return nil, fmt.Errorf("запуск pinner RSE %s: %w", name, err)
		}
	}

	p.pipes[name] = pipe
	pipelinesGauge.Set(float64(len(p.pipes)))

	p.logger.Info("Конвейер RSE создан",
		slog.String("rse", name),
		slog.String("type", rse.Type),
		slog.Bool("poller", pipe.poller != nil),
		slog.Bool("pinner", pipe.pinner != nil),
	)
	return pipe, nil
}

// PinProject передаёт потребность проекта в staging файлов на RSE.
// Без pinner'а файлы отправляются напрямую на проверку locality.
func (p *Pipelines) PinProject(ctx context.Context, rse string, projectID int64, files map[model.DID]string) error {
	pipe, err := p.get(ctx, rse)
	if err != nil {
		return err
	}
	switch {
	case pipe.pinner != nil:
		pipe.pinner.PinProject(projectID, files)
	case pipe.poller != nil:
		pipe.poller.Submit(files)
	}
	return nil
}

// UnpinProject снимает потребность проекта на RSE.
func (p *Pipelines) UnpinProject(rse string, projectID int64) {
	p.mu.Lock()
	pipe, ok := p.pipes[rse]
	p.mu.Unlock()

	if ok && pipe.pinner != nil {
		pipe.pinner.UnpinProject(projectID)
	}
}

// RSEs возвращает имена RSE с созданными конвейерами.
func (p *Pipelines) RSEs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.pipes))
	for name := range p.pipes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop останавливает все конвейеры.
func (p *Pipelines) Stop() {
	p.mu.Lock()
	pipes := p.pipes
	p.pipes = make(map[string]*pipeline)
	p.mu.Unlock()

	for _, pipe := range pipes {
		if pipe.pinner != nil {
			pipe.pinner.Stop(p.sched)
		}
		if pipe.poller != nil {
			pipe.poller.Stop()
		}
	}
	pipelinesGauge.Set(0)
}
