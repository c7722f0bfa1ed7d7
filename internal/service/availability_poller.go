// availability_poller.go — проверка locality файлов на ленточном RSE.
//
// AvailabilityPoller держит очередь {файл → путь}, пополняемую через Submit.
// Фоновая горутина забирает из очереди пачку не больше max_burst файлов,
// проверяет каждый файл на locality endpoint RSE и обновляет Store:
//   - ONLINE → available=true;
//   - не ONLINE → available=false;
//   - 404 → реплика удаляется.
//
// Пачки разделены паузой (rate.Limiter), пустая очередь ждёт DD_POLL_IDLE
// или следующего Submit.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
	"github.com/bigkaa/datadispatcher/internal/staging"
)

var (
	pollerChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dd_poller_checks_total",
		Help: "Количество проверок locality по результату",
	}, []string{"rse", "result"})

	pollerPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dd_poller_pending",
		Help: "Размер очереди проверок locality",
	}, []string{"rse"})
)

// AvailabilityStore — операции Store, которыми poller и pinner обновляют реплики.
type AvailabilityStore interface {
	UpdateAvailabilityBulk(ctx context.Context, available bool, rse string, dids []model.DID) (int, error)
	RemoveBulk(ctx context.Context, rse string, dids []model.DID) (int, error)
}

// LocalityChecker — проверка нахождения файла на диске RSE.
type LocalityChecker interface {
	Online(ctx context.Context, path string) (bool, error)
}

// AvailabilityPoller — очередь и цикл проверок locality одного RSE.
type AvailabilityPoller struct {
	rse     string
	store   AvailabilityStore
	checker LocalityChecker
	burst   int
	idle    time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[model.DID]string
	wake    chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewAvailabilityPoller создаёт poller для RSE.
// burst — максимум проверок за проход, stagger — пауза между проходами,
// idle — пауза при пустой очереди.
func NewAvailabilityPoller(
	rse string,
	store AvailabilityStore,
	checker LocalityChecker,
	burst int,
	stagger, idle time.Duration,
	logger *slog.Logger,
) *AvailabilityPoller {
	if burst < 1 {
		burst = 1
	}
	return &AvailabilityPoller{
		rse:     rse,
		store:   store,
		checker: checker,
		burst:   burst,
		idle:    idle,
		limiter: rate.NewLimiter(rate.Every(stagger), 1),
		logger:  logger.With(slog.String("component", "availability_poller"), slog.String("rse", rse)),
		pending: make(map[model.DID]string),
		wake:    make(chan struct{}, 1),
	}
}

// Submit добавляет файлы в очередь проверки и будит цикл.
// Повторно поданный файл заменяет путь в очереди.
func (p *AvailabilityPoller) Submit(files map[model.DID]string) {
	if len(files) == 0 {
		return
	}

	p.mu.Lock()
	for did, path := range files {
		p.pending[did] = path
	}
	n := len(p.pending)
	p.mu.Unlock()

	pollerPending.WithLabelValues(p.rse).Set(float64(n))

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Pending возвращает текущий размер очереди.
func (p *AvailabilityPoller) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Start запускает фоновую горутину проверок.
func (p *AvailabilityPoller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)

		p.logger.Info("Poller запущен",
			slog.Int("burst", p.burst),
			slog.String("idle", p.idle.String()),
		)

		for {
			if err := p.limiter.Wait(ctx); err != nil {
				p.logger.Info("Poller остановлен")
				return
			}

			if p.RunOnce(ctx) > 0 {
				continue
			}

			idle := time.NewTimer(p.idle)
			select {
			case <-ctx.Done():
				idle.Stop()
				p.logger.Info("Poller остановлен")
				return
			case <-p.wake:
			case <-idle.C:
			}
			idle.Stop()
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (p *AvailabilityPoller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		<-p.done
	}
}

// RunOnce выполняет один проход: до burst проверок и обновление Store.
// Возвращает количество проверенных файлов.
func (p *AvailabilityPoller) RunOnce(ctx context.Context) int {
	batch := p.take()
	if len(batch) == 0 {
		return 0
	}

	var online, offline, missing []model.DID
	for did, path := range batch {
		ok, err := p.checker.Online(ctx, path)
		switch {
		case errors.Is(err, staging.ErrNotFound):
			missing = append(missing, did)
			pollerChecksTotal.WithLabelValues(p.rse, "not_found").Inc()
		case err != nil:
			// Файл будет снова подан монитором проекта или pinner'ом
			p.logger.Warn("Ошибка проверки locality",
				slog.String("did", did.String()),
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			pollerChecksTotal.WithLabelValues(p.rse, "error").Inc()
		case ok:
			online = append(online, did)
			pollerChecksTotal.WithLabelValues(p.rse, "online").Inc()
		default:
			offline = append(offline, did)
			pollerChecksTotal.WithLabelValues(p.rse, "offline").Inc()
		}
	}

	if n, err := p.store.UpdateAvailabilityBulk(ctx, true, p.rse, online); err != nil {
		p.logger.Error("Ошибка обновления доступности", slog.String("error", err.Error()))
	} else if n > 0 {
		p.logger.Info("Реплики стали доступны", slog.Int("count", n))
	}
	if _, err := p.store.UpdateAvailabilityBulk(ctx, false, p.rse, offline); err != nil {
		p.logger.Error("Ошибка обновления доступности", slog.String("error", err.Error()))
	}
	if n, err := p.store.RemoveBulk(ctx, p.rse, missing); err != nil {
		p.logger.Error("Ошибка удаления отсутствующих реплик", slog.String("error", err.Error()))
	} else if n > 0 {
		p.logger.Info("Отсутствующие на RSE реплики удалены", slog.Int("count", n))
	}

	return len(batch)
}

// take извлекает из очереди до burst файлов.
func (p *AvailabilityPoller) take() map[model.DID]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	batch := make(map[model.DID]string, min(p.burst, len(p.pending)))
	for did, path := range p.pending {
		if len(batch) >= p.burst {
			break
		}
		batch[did] = path
		delete(p.pending, did)
	}
	pollerPending.WithLabelValues(p.rse).Set(float64(len(p.pending)))
	return batch
}
