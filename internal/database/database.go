// Пакет database — пул подключений PostgreSQL для Store, миграции схемы
// (golang-migrate) и readiness-проверка пула.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/datadispatcher/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// applicationName — имя сессии в pg_stat_activity.
const applicationName = "data-dispatcher"

// PoolConfig собирает конфигурацию пула из настроек сервиса.
//
// Резервирование выбирает handle через FOR UPDATE SKIP LOCKED и не ждёт
// занятых строк, но release, restart и смена состояния проекта ждут
// блокировку. lock_timeout ограничивает это ожидание, statement_timeout —
// любой запрос сессии.
func PoolConfig(cfg *config.Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.DBMaxConns)

	params := poolCfg.ConnConfig.RuntimeParams
	if params == nil {
		params = make(map[string]string)
		poolCfg.ConnConfig.RuntimeParams = params
	}
	params["application_name"] = applicationName
	params["lock_timeout"] = pgDuration(cfg.DBLockTimeout)
	params["statement_timeout"] = pgDuration(cfg.DBStatementTimeout)

	return poolCfg, nil
}

// pgDuration форматирует длительность для параметров сессии PostgreSQL.
func pgDuration(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}

// Connect создаёт пул подключений и проверяет доступность PostgreSQL.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.DBHost),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
		slog.String("lock_timeout", cfg.DBLockTimeout.String()),
		slog.String("statement_timeout", cfg.DBStatementTimeout.String()),
	)

	return pool, nil
}

// Migrate применяет встроенные миграции схемы. База в состоянии dirty
// (прерванная миграция) требует ручного вмешательства.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	err = m.Up()
	var dirty migrate.ErrDirty
	switch {
	case errors.As(err, &dirty):
		return fmt.Errorf("схема в состоянии dirty на версии %d: исправьте миграцию вручную", dirty.Version)
	case errors.Is(err, migrate.ErrNoChange):
		logger.Debug("Схема БД актуальна")
	case err != nil:
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("ошибка чтения версии схемы: %w", err)
	}
	logger.Info("Миграции применены", slog.Uint64("version", uint64(version)))
	return nil
}

// ReadinessChecker — readiness PostgreSQL: ping и заполненность пула.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

// NewReadinessChecker создаёт проверку готовности пула.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

// CheckReady возвращает "fail", если PostgreSQL недоступен, и "degraded",
// если все подключения пула заняты (reserve ждут свободного подключения).
// Ping занимает подключение, поэтому при исчерпанном пуле не выполняется.
func (c *ReadinessChecker) CheckReady() (string, string) {
	stat := c.pool.Stat()
	status, msg := poolStatus(stat.AcquiredConns(), stat.MaxConns())
	if status != "ok" {
		return status, msg
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	return status, msg
}

func poolStatus(acquired, maxConns int32) (string, string) {
	msg := fmt.Sprintf("подключений занято %d из %d", acquired, maxConns)
	if maxConns > 0 && acquired >= maxConns {
		return "degraded", "пул исчерпан: " + msg
	}
	return "ok", msg
}
