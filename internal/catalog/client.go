// Пакет catalog — клиент внешнего каталога реплик.
// POST <catalog>/replicas/list → для каждого файла набор RSE и URL реплик.
package catalog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
	"github.com/bigkaa/datadispatcher/internal/httpclient"
)

// Client — клиент каталога реплик.
type Client struct {
	client  *httpclient.Client
	baseURL string
	logger  *slog.Logger
}

// New создаёт клиент каталога.
func New(client *httpclient.Client, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With(slog.String("component", "catalog")),
	}
}

type didRef struct {
	Scope string `json:"scope"`
	Name  string `json:"name"`
}

type listRequest struct {
	DIDs      []didRef `json:"dids"`
	AllStates bool     `json:"all_states"`
}

type listEntry struct {
	Scope string              `json:"scope"`
	Name  string              `json:"name"`
	RSEs  map[string][]string `json:"rses"`
}

// Replicas возвращает для каждого найденного файла карту RSE → URL реплик.
// Файлы, о которых каталог ничего не сообщил, в результат не попадают.
func (c *Client) Replicas(ctx context.Context, dids []model.DID) (map[model.DID]map[string][]string, error) {
	result := make(map[model.DID]map[string][]string, len(dids))
	if len(dids) == 0 {
		return result, nil
	}

	body := listRequest{DIDs: make([]didRef, len(dids))}
	for i, d := range dids {
		body.DIDs[i] = didRef{Scope: d.Namespace, Name: d.Name}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("сериализация запроса к каталогу: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/replicas/list", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("создание запроса к каталогу: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-json-stream, application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.StatusError(resp)
	}

	entries, err := decodeEntries(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("декодирование ответа каталога: %w", err)
	}

	for _, e := range entries {
		did := model.DID{Namespace: e.Scope, Name: e.Name}
		rses := result[did]
		if rses == nil {
			rses = make(map[string][]string, len(e.RSEs))
			result[did] = rses
		}
		for rse, urls := range e.RSEs {
			rses[rse] = append(rses[rse], urls...)
		}
	}

	c.logger.Debug("Реплики получены из каталога",
		slog.Int("requested", len(dids)),
		slog.Int("found", len(result)),
	)
	return result, nil
}

// decodeEntries разбирает ответ в виде JSON-массива или NDJSON (по объекту на строку).
func decodeEntries(r io.Reader) ([]listEntry, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var entries []listEntry
		if err := dec.Decode(&entries); err != nil {
			return nil, err
		}
		return entries, nil
	}

	var entries []listEntry
	for {
		var e listEntry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return nil, err
		}
		entries = append(entries, e)
	}
}

// peekNonSpace возвращает первый непробельный байт, не извлекая его из потока.
func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.ReadByte()
		default:
			return b[0], nil
		}
	}
}
