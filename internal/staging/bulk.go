package staging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/bigkaa/datadispatcher/internal/httpclient"
)

// Состояние завершённого запроса или цели в dCache bulk API.
const bulkCompleted = "COMPLETED"

// bulkBackend — протокол dCache bulk API.
// Один запрос на весь набор путей RSE; запрос сохраняется, только если
// его набор путей в точности совпадает с текущей потребностью.
type bulkBackend struct {
	client *httpclient.Client
	pinURL string
	prefix string
	opts   Options
	logger *slog.Logger
}

// NewBulk создаёт клиент dCache bulk API.
// pinPrefix — необязательный префикс путей, передаваемый как target-prefix.
func NewBulk(client *httpclient.Client, pinURL, pinPrefix string, opts Options, logger *slog.Logger) Backend {
	return &bulkBackend{
		client: client,
		pinURL: pinURL,
		prefix: pinPrefix,
		opts:   opts,
		logger: logger.With(slog.String("component", "staging_bulk")),
	}
}

// bulkPinRequest — тело POST запроса на pin.
type bulkPinRequest struct {
	Target            []string      `json:"target"`
	Activity          string        `json:"activity"`
	ClearOnSuccess    bool          `json:"clearOnSuccess"`
	ClearOnFailure    bool          `json:"clearOnFailure"`
	ExpandDirectories *string       `json:"expandDirectories"`
	Arguments         bulkArguments `json:"arguments"`
	TargetPrefix      string        `json:"target-prefix,omitempty"`
}

type bulkArguments struct {
	Lifetime     int64  `json:"lifetime"`
	LifetimeUnit string `json:"lifetime-unit"`
}

// bulkStatusResponse — ответ GET по URL запроса.
type bulkStatusResponse struct {
	Status  string `json:"status"`
	Targets []struct {
		Target string `json:"target"`
		State  string `json:"state"`
	} `json:"targets"`
}

func (b *bulkBackend) Create(ctx context.Context, paths []string) (*Request, error) {
	targets, prefix := b.targets(paths)

	body := bulkPinRequest{
		Activity:       "PIN",
		ClearOnSuccess: false,
		ClearOnFailure: false,
		Arguments: bulkArguments{
			Lifetime:     int64(b.opts.Lifetime.Seconds()),
			LifetimeUnit: "SECONDS",
		},
		TargetPrefix: prefix,
	}
	for _, p := range paths {
		body.Target = append(body.Target, strings.TrimPrefix(p, prefix))
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("сериализация bulk-запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.pinURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("создание bulk-запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, httpclient.StatusError(resp)
	}

	location := resp.Header.Get("request-url")
	if location == "" {
		location = resp.Header.Get("Location")
	}
	if location == "" {
		return nil, fmt.Errorf("bulk API не вернул URL запроса (request-url/Location)")
	}
	id, err := resolveURL(b.pinURL, location)
	if err != nil {
		return nil, err
	}

	r := newRequest(id, paths, b.opts.Lifetime)
	r.targets = targets

	b.logger.Info("Bulk-запрос на pin создан",
		slog.String("request_url", id),
		slog.Int("files", len(paths)),
	)
	return r, nil
}

// targets строит соответствие цель → путь. target-prefix используется,
// только если все пути начинаются с префикса pin.
func (b *bulkBackend) targets(paths []string) (map[string]string, string) {
	prefix := b.prefix
	if prefix != "" {
		for _, p := range paths {
			if !strings.HasPrefix(p, prefix) {
				prefix = ""
				break
			}
		}
	}

	targets := make(map[string]string, len(paths))
	for _, p := range paths {
		targets[strings.TrimPrefix(p, prefix)] = p
	}
	return targets, prefix
}

func (b *bulkBackend) Query(ctx context.Context, r *Request) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса статуса: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: bulk-запрос %s", ErrNotFound, r.ID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.StatusError(resp)
	}

	var status bulkStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("декодирование статуса bulk-запроса: %w", err)
	}

	staged := make(map[string]bool, len(r.Paths))
	if status.Status == bulkCompleted {
		for p := range r.Paths {
			staged[p] = true
		}
		return splitStatus(r, staged), nil
	}

	for _, t := range status.Targets {
		if t.State != bulkCompleted {
			continue
		}
		if p, ok := r.targets[t.Target]; ok {
			staged[p] = true
		} else {
			staged[t.Target] = true
		}
	}
	return splitStatus(r, staged), nil
}

func (b *bulkBackend) Delete(ctx context.Context, r *Request) error {
	return deleteRequest(ctx, b.client, r.ID)
}

// Keep: bulk-запрос сохраняется только при точном совпадении наборов путей.
func (b *bulkBackend) Keep(reqs []*Request, wanted map[string]struct{}) []bool {
	keep := make([]bool, len(reqs))
	for i, r := range reqs {
		keep[i] = len(r.Paths) == len(wanted) && containsAll(wanted, r.Paths)
	}
	return keep
}

// containsAll сообщает, входят ли все пути paths в set.
func containsAll(set, paths map[string]struct{}) bool {
	for p := range paths {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}

func (b *bulkBackend) Split(paths []string) [][]string {
	if len(paths) == 0 {
		return nil
	}
	return [][]string{paths}
}

// deleteRequest отменяет запрос по его URL. Отсутствующий запрос (404) не ошибка.
func deleteRequest(ctx context.Context, client *httpclient.Client, requestURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, requestURL, nil)
	if err != nil {
		return fmt.Errorf("создание запроса отмены: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpclient.StatusError(resp)
	}
	return nil
}

// resolveURL разрешает ссылку из заголовка относительно base.
func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("некорректный URL %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("некорректный URL запроса %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}
