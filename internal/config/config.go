// Пакет config — загрузка и валидация конфигурации Data Dispatcher
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Data Dispatcher.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимум подключений в пуле; резервирование держит подключение на
	// время транзакции, поэтому пул ограничивает число одновременных reserve
	DBMaxConns int
	// lock_timeout сессии: ожидание блокировки строки handle или проекта
	DBLockTimeout time.Duration
	// statement_timeout сессии
	DBStatementTimeout time.Duration

	// --- Внешние сервисы ---

	// URL каталога реплик
	CatalogURL string
	// Размер батча DID в одном запросе к каталогу
	CatalogBatchSize int
	// Путь к файлу с bearer-токеном для каталога и staging endpoints (опционально)
	TokenFile string
	// Путь к CA-сертификату для TLS-соединений (опционально)
	CACertPath string
	// Путь к YAML-описанию RSE и карты близости (опционально)
	RSEConfigPath string

	// --- Supervisor и мониторы проектов ---

	// Интервал поиска новых активных проектов
	SupervisorInterval time.Duration
	// Интервал janitor (abandoned проекты, сиротские реплики)
	JanitorInterval time.Duration
	// Интервал синхронизации реплик проекта с каталогом
	SyncInterval time.Duration
	// Интервал обновления доступности и pin-запросов проекта
	UpdateInterval time.Duration
	// Интервал проверки состояния проекта
	CheckInterval time.Duration

	// --- Staging ---

	// Интервал цикла PinOrchestrator
	PinInterval time.Duration
	// Пауза перед первым циклом PinOrchestrator
	PinWarmup time.Duration
	// Время жизни pin на диске
	PinLifetime time.Duration
	// Максимальный размер одного запроса paginated-протокола
	PinChunkSize int
	// Минимальный размер запроса paginated-протокола, который сохраняется между циклами
	PinLowWater int

	// --- Locality poller ---

	// Размер пачки проверок по умолчанию
	PollBurst int
	// Пауза между пачками
	PollStagger time.Duration
	// Пауза при пустой очереди
	PollIdle time.Duration

	// --- Карта близости ---

	// Время жизни записи кэша близости
	ProximityTTL time.Duration
	// Максимум сайтов в кэше близости
	ProximityCacheSize int

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("DD_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("DD_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("DD_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DD_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DD_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("DD_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DD_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("DD_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("DD_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("DD_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("DD_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("DD_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("DD_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("DD_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("DD_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBMaxConns, err = getEnvInt("DD_DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("DD_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 2 || cfg.DBMaxConns > 1000 {
		return nil, fmt.Errorf("DD_DB_MAX_CONNS: значение %d вне допустимого диапазона 2-1000", cfg.DBMaxConns)
	}

	// --- Внешние сервисы ---

	if cfg.CatalogURL, err = getEnvRequired("DD_CATALOG_URL"); err != nil {
		return nil, err
	}
	cfg.CatalogURL = strings.TrimRight(cfg.CatalogURL, "/")

	cfg.CatalogBatchSize, err = getEnvInt("DD_CATALOG_BATCH", 100)
	if err != nil {
		return nil, fmt.Errorf("DD_CATALOG_BATCH: %w", err)
	}
	if cfg.CatalogBatchSize < 1 || cfg.CatalogBatchSize > 1000 {
		return nil, fmt.Errorf("DD_CATALOG_BATCH: значение %d вне допустимого диапазона 1-1000", cfg.CatalogBatchSize)
	}

	cfg.TokenFile = getEnvDefault("DD_TOKEN_FILE", "")
	cfg.CACertPath = getEnvDefault("DD_CA_CERT_PATH", "")
	cfg.RSEConfigPath = getEnvDefault("DD_RSE_CONFIG", "")

	// --- Интервалы ---

	durations := []struct {
		key string
		dst *time.Duration
		def time.Duration
	}{
		{"DD_SUPERVISOR_INTERVAL", &cfg.SupervisorInterval, 10 * time.Second},
		{"DD_JANITOR_INTERVAL", &cfg.JanitorInterval, 5 * time.Minute},
		{"DD_SYNC_INTERVAL", &cfg.SyncInterval, 10 * time.Minute},
		{"DD_UPDATE_INTERVAL", &cfg.UpdateInterval, time.Minute},
		{"DD_CHECK_INTERVAL", &cfg.CheckInterval, 5 * time.Minute},
		{"DD_PIN_INTERVAL", &cfg.PinInterval, time.Minute},
		{"DD_PIN_WARMUP", &cfg.PinWarmup, 2 * time.Minute},
		{"DD_PIN_LIFETIME", &cfg.PinLifetime, 48 * time.Hour},
		{"DD_POLL_STAGGER", &cfg.PollStagger, 2 * time.Second},
		{"DD_POLL_IDLE", &cfg.PollIdle, 30 * time.Second},
		{"DD_PROXIMITY_TTL", &cfg.ProximityTTL, 10 * time.Minute},
		{"DD_DEPHEALTH_CHECK_INTERVAL", &cfg.DephealthCheckInterval, 15 * time.Second},
		{"DD_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout, 5 * time.Second},
		{"DD_DB_LOCK_TIMEOUT", &cfg.DBLockTimeout, 5 * time.Second},
		{"DD_DB_STATEMENT_TIMEOUT", &cfg.DBStatementTimeout, 30 * time.Second},
	}
	for _, d := range durations {
		*d.dst, err = getEnvDuration(d.key, d.def)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		if *d.dst <= 0 && d.key != "DD_PIN_WARMUP" {
			return nil, fmt.Errorf("%s: длительность должна быть положительной", d.key)
		}
	}

	if cfg.DBLockTimeout > cfg.DBStatementTimeout {
		return nil, fmt.Errorf("DD_DB_LOCK_TIMEOUT: значение %s больше DD_DB_STATEMENT_TIMEOUT (%s)",
			cfg.DBLockTimeout, cfg.DBStatementTimeout)
	}

	// pin-запрос обновляется за 3 интервала до истечения — иначе он будет пересоздаваться каждый цикл
	if cfg.PinLifetime <= 3*cfg.PinInterval {
		return nil, fmt.Errorf("DD_PIN_LIFETIME: значение %s должно быть больше 3 × DD_PIN_INTERVAL (%s)",
			cfg.PinLifetime, 3*cfg.PinInterval)
	}

	// --- Размеры ---

	cfg.PinChunkSize, err = getEnvInt("DD_PIN_CHUNK_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("DD_PIN_CHUNK_SIZE: %w", err)
	}
	cfg.PinLowWater, err = getEnvInt("DD_PIN_LOW_WATER", 100)
	if err != nil {
		return nil, fmt.Errorf("DD_PIN_LOW_WATER: %w", err)
	}
	if cfg.PinChunkSize < 1 {
		return nil, fmt.Errorf("DD_PIN_CHUNK_SIZE: значение %d должно быть положительным", cfg.PinChunkSize)
	}
	if cfg.PinLowWater < 0 || cfg.PinLowWater > cfg.PinChunkSize {
		return nil, fmt.Errorf("DD_PIN_LOW_WATER: значение %d вне допустимого диапазона 0-%d", cfg.PinLowWater, cfg.PinChunkSize)
	}

	cfg.PollBurst, err = getEnvInt("DD_POLL_BURST", 100)
	if err != nil {
		return nil, fmt.Errorf("DD_POLL_BURST: %w", err)
	}
	if cfg.PollBurst < 1 {
		return nil, fmt.Errorf("DD_POLL_BURST: значение %d должно быть положительным", cfg.PollBurst)
	}

	cfg.ProximityCacheSize, err = getEnvInt("DD_PROXIMITY_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("DD_PROXIMITY_CACHE_SIZE: %w", err)
	}
	if cfg.ProximityCacheSize < 1 {
		return nil, fmt.Errorf("DD_PROXIMITY_CACHE_SIZE: значение %d должно быть положительным", cfg.ProximityCacheSize)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("DD_DEPHEALTH_GROUP", "data-dispatcher")

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для метрик topologymetrics).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.User(c.DBUser),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	return u.String()
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
