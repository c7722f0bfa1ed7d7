// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Data Dispatcher мониторит:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode, critical);
//   - каталог реплик — HTTP checker (non-critical: без каталога резервирование
//     продолжает работать по уже синхронизированным репликам);
//   - staging и locality endpoints ленточных RSE из файла конфигурации (non-critical).
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для каталога и RSE
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"     // PostgreSQL checker (pool mode)
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
)

// catalogHealthPath — endpoint проверки доступности каталога реплик.
const catalogHealthPath = "/ping"

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// DephealthParams — параметры мониторинга зависимостей.
type DephealthParams struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — имя группы в метриках (DD_DEPHEALTH_GROUP)
	Group string
	// DB — *sql.DB, полученный из pgxpool через stdlib.OpenDBFromPool()
	DB *sql.DB
	// PgConnURL — URL PostgreSQL для меток (не для подключения)
	PgConnURL string
	// CatalogURL — базовый URL каталога реплик
	CatalogURL string
	// RSEs — ленточные RSE, endpoints которых мониторятся
	RSEs []*model.RSE
	// CheckInterval — интервал проверки (DD_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(p DephealthParams, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(p, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(p DephealthParams, logger *slog.Logger, registerer prometheus.Registerer) (*DephealthService, error) {
	return newDephealthService(p, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(p DephealthParams, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		// PostgreSQL — connection pool mode через существующий pgxpool.
		// pgcheck.New + dephealth.AddDependency напрямую, без contrib/sqldb
		// с транзитивной зависимостью на MySQL.
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(p.DB)),
			dephealth.FromURL(p.PgConnURL),
			dephealth.CheckInterval(p.CheckInterval),
			dephealth.Critical(true),
		),
		dephealth.HTTP("replica-catalog",
			dephealth.FromURL(p.CatalogURL),
			dephealth.WithHTTPHealthPath(joinHealthPath(p.CatalogURL, catalogHealthPath)),
			dephealth.CheckInterval(p.CheckInterval),
			dephealth.Critical(false),
		),
	}

	seen := make(map[string]bool)
	for _, rse := range p.RSEs {
		if !rse.IsTape {
			continue
		}
		for kind, endpoint := range map[string]string{"pin": rse.PinURL, "poll": rse.PollURL} {
			if endpoint == "" {
				continue
			}
			name := depName(rse.Name + "-" + kind)
			if seen[name] {
				continue
			}
			seen[name] = true
			opts = append(opts, dephealth.HTTP(name,
				dephealth.FromURL(endpoint),
				dephealth.WithHTTPHealthPath(joinHealthPath(endpoint, "")),
				dephealth.CheckInterval(p.CheckInterval),
				dephealth.Critical(false),
			))
		}
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(p.ServiceID, p.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (PostgreSQL + каталог + RSE)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

var depNameInvalid = regexp.MustCompile(`[^a-z0-9-]+`)

// depName приводит имя к формату имени зависимости: [a-z0-9-], не длиннее 63
// символов, начинается с буквы.
func depName(s string) string {
	name := depNameInvalid.ReplaceAllString(strings.ToLower(s), "-")
	name = strings.Trim(name, "-")
	if name == "" {
		return "unknown-rse"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "rse-" + name
	}
	if len(name) > 63 {
		name = strings.TrimRight(name[:63], "-")
	}
	return name
}

// joinHealthPath возвращает путь проверки: путь base, дополненный suffix.
func joinHealthPath(base, suffix string) string {
	path := "/"
	if u, err := url.Parse(base); err == nil && u.Path != "" {
		path = u.Path
	}
	if suffix == "" {
		return path
	}
	return strings.TrimRight(path, "/") + suffix
}

// DependencyChecker — readiness-проверка по последнему результату dephealth.
type DependencyChecker struct {
	ds       *DephealthService
	name     string
	critical bool
}

// ReadinessChecker возвращает проверку готовности для зависимости name.
// Недоступность non-critical зависимости даёт статус degraded.
func (ds *DephealthService) ReadinessChecker(name string, critical bool) *DependencyChecker {
	return &DependencyChecker{ds: ds, name: name, critical: critical}
}

// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
func (c *DependencyChecker) CheckReady() (string, string) {
	ok, known := c.ds.Health()[c.name]
	switch {
	case !known:
		return "degraded", "проверка ещё не выполнялась"
	case ok:
		return "ok", ""
	case c.critical:
		return "fail", c.name + " недоступен"
	default:
		return "degraded", c.name + " недоступен"
	}
}
