// Пакет errors — ответы с ошибками API Data Dispatcher.
//
// Тело ответа — generated.ErrorResponse: {"error": {"code": "...", "message": "..."}}.
// HTTP-статус однозначно определяется кодом ошибки. Ошибки сервисного слоя,
// привязки параметров (oapi-codegen) и валидации запроса по OpenAPI
// (kin-openapi) сводятся к этому формату здесь.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"

	"github.com/bigkaa/datadispatcher/internal/api/generated"
	"github.com/bigkaa/datadispatcher/internal/service"
)

// statusByCode — HTTP-статус для каждого кода ошибки.
var statusByCode = map[generated.ErrorResponseErrorCode]int{
	generated.ErrorResponseErrorCodeVALIDATIONERROR: http.StatusBadRequest,
	generated.ErrorResponseErrorCodeNOTFOUND:        http.StatusNotFound,
	generated.ErrorResponseErrorCodeCONFLICT:        http.StatusConflict,
	generated.ErrorResponseErrorCodeINTERNALERROR:   http.StatusInternalServerError,
}

// Write записывает ответ с ошибкой. Неизвестный код отдаётся как 500.
func Write(w http.ResponseWriter, code generated.ErrorResponseErrorCode, message string) {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	var body generated.ErrorResponse
	body.Error.Code = code
	body.Error.Message = message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Validation — 400: некорректный запрос.
func Validation(w http.ResponseWriter, message string) {
	Write(w, generated.ErrorResponseErrorCodeVALIDATIONERROR, message)
}

// Service отображает ошибку сервисного слоя в ответ:
// ErrValidation → 400, ErrNotFound → 404, ErrConflict → 409.
// Остальные ошибки логируются, клиент получает 500 с текстом fallback.
func Service(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	switch {
	case stderrors.Is(err, service.ErrValidation):
		Write(w, generated.ErrorResponseErrorCodeVALIDATIONERROR, err.Error())
	case stderrors.Is(err, service.ErrNotFound):
		Write(w, generated.ErrorResponseErrorCodeNOTFOUND, err.Error())
	case stderrors.Is(err, service.ErrConflict):
		Write(w, generated.ErrorResponseErrorCodeCONFLICT, err.Error())
	default:
		logger.Error(fallback, slog.String("error", err.Error()))
		Write(w, generated.ErrorResponseErrorCodeINTERNALERROR, fallback)
	}
}

// ParamError — ErrorHandlerFunc для generated.ChiServerOptions: ошибка
// привязки path/query параметра превращается в VALIDATION_ERROR с именем
// параметра.
func ParamError(w http.ResponseWriter, _ *http.Request, err error) {
	Validation(w, paramMessage(err))
}

func paramMessage(err error) string {
	var (
		invalid  *generated.InvalidParamFormatError
		required *generated.RequiredParamError
		unmarsh  *generated.UnmarshalingParamError
		tooMany  *generated.TooManyValuesForParamError
	)
	switch {
	case stderrors.As(err, &invalid):
		return fmt.Sprintf("параметр %s: некорректное значение (%v)", invalid.ParamName, invalid.Err)
	case stderrors.As(err, &required):
		return fmt.Sprintf("параметр %s обязателен", required.ParamName)
	case stderrors.As(err, &unmarsh):
		return fmt.Sprintf("параметр %s: некорректный JSON (%v)", unmarsh.ParamName, unmarsh.Err)
	case stderrors.As(err, &tooMany):
		return fmt.Sprintf("параметр %s: ожидается одно значение, получено %d", tooMany.ParamName, tooMany.Count)
	default:
		return err.Error()
	}
}

// RequestInvalid — 400 по результату openapi3filter.ValidateRequest.
func RequestInvalid(w http.ResponseWriter, err error) {
	Validation(w, requestMessage(err))
}

// requestMessage сокращает ошибку kin-openapi до имени параметра и причины.
// Значение параметра в сообщение не попадает.
func requestMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if !stderrors.As(err, &reqErr) {
		return err.Error()
	}

	reason := reqErr.Reason
	var schemaErr *openapi3.SchemaError
	switch {
	case stderrors.As(reqErr.Err, &schemaErr):
		reason = schemaErr.Reason
	case reason == "" && reqErr.Err != nil:
		reason = reqErr.Err.Error()
	}

	if reqErr.Parameter != nil {
		return fmt.Sprintf("параметр %s: %s", reqErr.Parameter.Name, reason)
	}
	return reason
}
