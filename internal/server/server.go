// Пакет server — HTTP-сервер Data Dispatcher с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/datadispatcher/internal/api/errors"
	"github.com/bigkaa/datadispatcher/internal/api/generated"
	"github.com/bigkaa/datadispatcher/internal/api/middleware"
	"github.com/bigkaa/datadispatcher/internal/config"
)

// Server — HTTP-сервер Data Dispatcher.
type Server struct {
	httpServer      *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New создаёт HTTP-сервер. Запросы проходят метрики, журнал и проверку по
// встроенному OpenAPI-описанию, затем маршрутизируются обёрткой oapi-codegen
// в handler.
func New(cfg *config.Config, logger *slog.Logger, handler generated.ServerInterface) (*Server, error) {
	swagger, err := generated.GetSwagger()
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки OpenAPI-описания: %w", err)
	}
	validator, err := middleware.OpenAPIValidator(swagger, logger)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	router.Use(validator)

	generated.HandlerWithOptions(handler, generated.ChiServerOptions{
		BaseRouter:       router,
		ErrorHandlerFunc: apierrors.ParamError,
	})

	// WriteTimeout больше statement_timeout БД: release и restart
	// успевают вернуть ответ после долгого запроса
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      max(60*time.Second, cfg.DBStatementTimeout+10*time.Second),
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer:      srv,
		logger:          logger,
		shutdownTimeout: cfg.ShutdownTimeout,
	}, nil
}

// Handler возвращает корневой обработчик со всеми middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run обслуживает запросы до отмены ctx, затем выполняет graceful shutdown
// с таймаутом DD_SHUTDOWN_TIMEOUT.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения", slog.String("cause", context.Cause(ctx).Error()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
