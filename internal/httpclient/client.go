// Пакет httpclient — общий HTTP-клиент для внешних сервисов
// (каталог реплик, staging и locality endpoints RSE).
// Поддерживает TLS с кастомным CA (DD_CA_CERT_PATH) и bearer-токен из файла (DD_TOKEN_FILE).
package httpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// TokenProvider — функция, возвращающая bearer-токен для запросов.
type TokenProvider func(ctx context.Context) (string, error)

// FileToken возвращает TokenProvider, читающий токен из файла при каждом запросе:
// внешний агент может обновлять файл без перезапуска сервиса.
func FileToken(path string) TokenProvider {
	return func(context.Context) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("чтение файла токена: %w", err)
		}
		token := strings.TrimSpace(string(data))
		if token == "" {
			return "", fmt.Errorf("файл токена %s пуст", path)
		}
		return token, nil
	}
}

// Client — HTTP-клиент с авторизацией.
type Client struct {
	httpClient    *http.Client
	tokenProvider TokenProvider
	logger        *slog.Logger
}

// New создаёт клиент.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// tokenProvider — функция получения токена (nil — запросы без авторизации).
func New(caCertPath string, tokenProvider TokenProvider, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	httpClient := &http.Client{Timeout: timeout}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		httpClient:    httpClient,
		tokenProvider: tokenProvider,
		logger:        logger.With(slog.String("component", "http_client")),
	}, nil
}

// NewWithHTTPClient создаёт клиент поверх готового *http.Client (используется в тестах с httptest).
func NewWithHTTPClient(httpClient *http.Client, tokenProvider TokenProvider, logger *slog.Logger) *Client {
	return &Client{
		httpClient:    httpClient,
		tokenProvider: tokenProvider,
		logger:        logger.With(slog.String("component", "http_client")),
	}
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// Do выполняет запрос, добавляя заголовок Authorization при наличии TokenProvider.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.tokenProvider != nil {
		token, err := c.tokenProvider(req.Context())
		if err != nil {
			return nil, fmt.Errorf("получение токена: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	return resp, nil
}

// StatusError возвращает ошибку с кодом и началом тела неуспешного ответа.
func StatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("%s %s вернул статус %d: %s",
		resp.Request.Method, resp.Request.URL.Redacted(), resp.StatusCode, strings.TrimSpace(string(body)))
}
