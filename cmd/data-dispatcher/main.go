// Точка входа Data Dispatcher — раздача файлов проектов воркерам с учётом
// ленточных хранилищ. Загружает конфигурацию, применяет миграции, подключается
// к PostgreSQL, регистрирует RSE из файла конфигурации, создаёт клиенты каталога
// реплик и staging endpoints, запускает supervisor мониторов проектов,
// topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/datadispatcher/internal/api/handlers"
	"github.com/bigkaa/datadispatcher/internal/catalog"
	"github.com/bigkaa/datadispatcher/internal/config"
	"github.com/bigkaa/datadispatcher/internal/database"
	"github.com/bigkaa/datadispatcher/internal/domain/model"
	"github.com/bigkaa/datadispatcher/internal/httpclient"
	"github.com/bigkaa/datadispatcher/internal/repository"
	"github.com/bigkaa/datadispatcher/internal/scheduler"
	"github.com/bigkaa/datadispatcher/internal/server"
	"github.com/bigkaa/datadispatcher/internal/service"
	"github.com/bigkaa/datadispatcher/internal/staging"
)

// httpTimeout — таймаут запросов к каталогу и staging endpoints.
const httpTimeout = 30 * time.Second

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Data Dispatcher запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool).
	// ctx отменяется по SIGINT/SIGTERM: останавливает HTTP-сервер и фоновые задачи.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	store := repository.NewStore(pool)

	// 5. RSE и карта близости из файла конфигурации
	if cfg.RSEConfigPath != "" {
		if err := loadRSEConfig(ctx, store, cfg.RSEConfigPath, logger); err != nil {
			logger.Error("Ошибка загрузки конфигурации RSE",
				slog.String("path", cfg.RSEConfigPath),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// 6. HTTP-клиент для каталога и staging endpoints
	var tokens httpclient.TokenProvider
	if cfg.TokenFile != "" {
		tokens = httpclient.FileToken(cfg.TokenFile)
	}
	client, err := httpclient.New(cfg.CACertPath, tokens, httpTimeout, logger)
	if err != nil {
		logger.Error("Ошибка создания HTTP-клиента", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. Каталог реплик и протоколы staging
	catalogClient := catalog.New(client, cfg.CatalogURL, logger)
	registry := staging.NewRegistry(client, staging.Options{
		Lifetime:  cfg.PinLifetime,
		ChunkSize: cfg.PinChunkSize,
		LowWater:  cfg.PinLowWater,
	}, logger)
	logger.Info("Протоколы staging зарегистрированы", slog.Any("types", registry.Types()))

	checkers := func(rse *model.RSE) service.LocalityChecker {
		return staging.NewLocalityClient(client, rse.PollURL)
	}

	// 8. Планировщик фоновых задач
	sched := scheduler.New(ctx, logger)

	// 9. Конвейеры staging по RSE (создаются при первой потребности)
	pipelines := service.NewPipelines(ctx, store, store, registry.Backend, checkers, sched,
		service.PipelineConfig{
			PollBurst:   cfg.PollBurst,
			PollStagger: cfg.PollStagger,
			PollIdle:    cfg.PollIdle,
			PinInterval: cfg.PinInterval,
			PinWarmup:   cfg.PinWarmup,
		}, logger)

	// 10. Supervisor мониторов проектов
	monitorCfg := service.MonitorConfig{
		SyncInterval:   cfg.SyncInterval,
		UpdateInterval: cfg.UpdateInterval,
		CheckInterval:  cfg.CheckInterval,
		CatalogBatch:   cfg.CatalogBatchSize,
	}
	newMonitor := func(projectID int64, deregister func(int64)) service.Monitor {
		return service.NewProjectMonitor(projectID, store, catalogClient, pipelines, sched, monitorCfg, deregister, logger)
	}
	supervisor := service.NewSupervisor(store, newMonitor, sched, cfg.SupervisorInterval, cfg.JanitorInterval, logger)

	// 11. Сервис резервирования; supervisor будит мониторы после activate и restart
	proximity := service.NewProximityCache(store, cfg.ProximityCacheSize, cfg.ProximityTTL)
	dispatcher := service.NewDispatcher(store, proximity, supervisor, logger)

	// 12. topologymetrics — мониторинг зависимостей (PostgreSQL + каталог + RSE)
	rses, err := store.ListRSEs(ctx)
	if err != nil {
		logger.Warn("Не удалось получить список RSE для мониторинга", slog.String("error", err.Error()))
	}
	var catalogChecker handlers.ReadinessChecker = unmonitored{}
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthParams{
		ServiceID:     "data-dispatcher",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PgConnURL:     cfg.DatabaseURL(),
		CatalogURL:    cfg.CatalogURL,
		RSEs:          rses,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		catalogChecker = dephealthSvc.ReadinessChecker("replica-catalog", false)
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 13. API handler
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), catalogChecker)
	apiHandler := handlers.NewAPIHandler(healthHandler, dispatcher, logger)

	// 14. Запуск фоновых задач
	if err := supervisor.Start(); err != nil {
		logger.Error("Ошибка запуска supervisor", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 15. Создание и запуск HTTP-сервера
	srv, err := server.New(cfg, logger, apiHandler)
	if err != nil {
		logger.Error("Ошибка создания HTTP-сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 16. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")

	supervisor.Stop()
	pipelines.Stop()
	sched.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Data Dispatcher остановлен")
}

// loadRSEConfig регистрирует RSE и карту близости из YAML-файла.
func loadRSEConfig(ctx context.Context, store *repository.Store, path string, logger *slog.Logger) error {
	rses, proximity, err := config.LoadRSEFile(path)
	if err != nil {
		return err
	}

	for i := range rses {
		created, err := store.UpsertRSE(ctx, &rses[i])
		if err != nil {
			return err
		}
		logger.Info("RSE зарегистрирован",
			slog.String("rse", rses[i].Name),
			slog.Bool("created", created),
			slog.Bool("tape", rses[i].IsTape),
			slog.String("type", rses[i].Type),
		)
	}
	for _, p := range proximity {
		if err := store.UpsertProximity(ctx, p); err != nil {
			return err
		}
	}

	logger.Info("Конфигурация RSE загружена",
		slog.Int("rses", len(rses)),
		slog.Int("proximity", len(proximity)),
	)
	return nil
}

// unmonitored — readiness каталога, когда topologymetrics не запущен.
type unmonitored struct{}

func (unmonitored) CheckReady() (string, string) {
	return "degraded", "мониторинг зависимостей не запущен"
}
