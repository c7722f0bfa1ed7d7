package staging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strings"

	"github.com/bigkaa/datadispatcher/internal/httpclient"
)

// paginatedBackend — протокол WLCG tape REST API.
// Потребность делится на запросы не больше ChunkSize путей. Запрос сохраняется
// между циклами, если все его пути всё ещё нужны и размер не меньше LowWater;
// иначе он отменяется, а его пути попадают в новые порции. Исключение —
// хвостовой запрос, который уже покрывает весь остаток потребности.
type paginatedBackend struct {
	client   *httpclient.Client
	endpoint string
	opts     Options
	logger   *slog.Logger
}

// NewPaginated создаёт клиент WLCG tape REST API. endpoint — базовый URL API.
func NewPaginated(client *httpclient.Client, endpoint string, opts Options, logger *slog.Logger) Backend {
	return &paginatedBackend{
		client:   client,
		endpoint: strings.TrimRight(endpoint, "/"),
		opts:     opts,
		logger:   logger.With(slog.String("component", "staging_paginated")),
	}
}

type stageFile struct {
	Path         string `json:"path"`
	DiskLifetime string `json:"diskLifetime"`
}

type stageRequest struct {
	Files []stageFile `json:"files"`
}

type stageResponse struct {
	RequestID string `json:"requestId"`
}

type stageStatusResponse struct {
	CompletedAt json.RawMessage `json:"completedAt"`
	Files       []struct {
		Path   string `json:"path"`
		OnDisk *bool  `json:"onDisk"`
		State  string `json:"state"`
	} `json:"files"`
}

func (p *paginatedBackend) Create(ctx context.Context, paths []string) (*Request, error) {
	lifetime := FormatDiskLifetime(p.opts.Lifetime)
	body := stageRequest{Files: make([]stageFile, len(paths))}
	for i, path := range paths {
		body.Files[i] = stageFile{Path: path, DiskLifetime: lifetime}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("сериализация stage-запроса: %w", err)
	}

	stageURL := p.endpoint + "/stage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, stageURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("создание stage-запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, httpclient.StatusError(resp)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		// Некоторые реализации возвращают только идентификатор в теле
		var created stageResponse
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil || created.RequestID == "" {
			return nil, fmt.Errorf("tape REST API не вернул Location")
		}
		location = stageURL + "/" + created.RequestID
	}
	id, err := resolveURL(stageURL, location)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Stage-запрос создан",
		slog.String("request_url", id),
		slog.Int("files", len(paths)),
		slog.String("disk_lifetime", lifetime),
	)
	return newRequest(id, paths, p.opts.Lifetime), nil
}

func (p *paginatedBackend) Query(ctx context.Context, r *Request) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса статуса: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: stage-запрос %s", ErrNotFound, r.ID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.StatusError(resp)
	}

	var status stageStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("декодирование статуса stage-запроса: %w", err)
	}

	// completedAt — число или строка в зависимости от реализации; важен только факт наличия
	completed := len(status.CompletedAt) > 0 && string(status.CompletedAt) != "null"

	staged := make(map[string]bool, len(status.Files))
	for _, f := range status.Files {
		switch {
		case f.OnDisk != nil:
			staged[f.Path] = *f.OnDisk
		case f.State != "":
			staged[f.Path] = f.State == "COMPLETED"
		default:
			// Без сведений о файле судим по завершению всего запроса
			staged[f.Path] = completed
		}
	}
	return splitStatus(r, staged), nil
}

func (p *paginatedBackend) Delete(ctx context.Context, r *Request) error {
	return deleteRequest(ctx, p.client, r.ID)
}

// Keep: все пути запроса нужны и запрос не меньше нижней границы.
// Единственный запрос меньше границы тоже сохраняется, если он в точности
// покрывает потребность, оставшуюся за сохранёнными запросами: новая порция
// совпала бы с ним.
func (p *paginatedBackend) Keep(reqs []*Request, wanted map[string]struct{}) []bool {
	keep := make([]bool, len(reqs))
	remaining := maps.Clone(wanted)
	small := -1
	smallCount := 0
	for i, r := range reqs {
		if !containsAll(wanted, r.Paths) {
			continue
		}
		if len(r.Paths) < p.opts.LowWater {
			small = i
			smallCount++
			continue
		}
		keep[i] = true
		for path := range r.Paths {
			delete(remaining, path)
		}
	}
	if smallCount == 1 {
		r := reqs[small]
		keep[small] = len(r.Paths) == len(remaining) && containsAll(remaining, r.Paths)
	}
	return keep
}

func (p *paginatedBackend) Split(paths []string) [][]string {
	size := p.opts.ChunkSize
	if size < 1 {
		size = len(paths)
	}
	var chunks [][]string
	for start := 0; start < len(paths); start += size {
		end := min(start+size, len(paths))
		chunks = append(chunks, paths[start:end])
	}
	return chunks
}
