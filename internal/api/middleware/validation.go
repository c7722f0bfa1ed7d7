// validation.go — проверка входящих запросов по OpenAPI-описанию (kin-openapi).
// Path и query параметры проверяются до привязки oapi-codegen: перечисления
// state, минимумы limit/offset и формат id дают 400 VALIDATION_ERROR.
package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	apierrors "github.com/bigkaa/datadispatcher/internal/api/errors"
)

// OpenAPIValidator возвращает middleware валидации запросов по swagger.
// Тела запросов разбирают обработчики: клиенты-воркеры не всегда
// передают Content-Type, поэтому тело здесь не проверяется.
// Пути, которых нет в описании, передаются дальше без проверки.
func OpenAPIValidator(swagger *openapi3.T, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	// Маршруты сопоставляются по пути запроса без учёта servers
	swagger.Servers = nil

	router, err := legacy.NewRouter(swagger)
	if err != nil {
		return nil, fmt.Errorf("ошибка построения маршрутов OpenAPI: %w", err)
	}

	options := &openapi3filter.Options{
		ExcludeRequestBody: true,
		MultiError:         false,
	}
	log := logger.With(slog.String("component", "openapi_validator"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				var routeErr *routers.RouteError
				if !errors.As(err, &routeErr) {
					log.Warn("Ошибка сопоставления маршрута", slog.String("error", err.Error()))
				}
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				log.Debug("Запрос не прошёл валидацию",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apierrors.RequestInvalid(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}
