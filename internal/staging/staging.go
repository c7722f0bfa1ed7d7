// Пакет staging — клиенты протоколов staging (pin) ленточных RSE
// и проверки локальности файлов.
//
// Поддерживаются два протокола:
//   - bulk (dCache bulk API, тип RSE "dcache") — один запрос на весь набор файлов;
//   - paginated (WLCG tape REST API, тип RSE "wlcg") — запросы порциями ограниченного размера.
package staging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrNotFound — файл отсутствует на RSE (HTTP 404 от locality endpoint).
	ErrNotFound = errors.New("файл не найден на RSE")
	// ErrUnknownType — для типа RSE не зарегистрирован протокол staging.
	ErrUnknownType = errors.New("неизвестный тип staging-протокола")
)

// Request — отправленный на RSE запрос staging. Хранится только в памяти.
type Request struct {
	// ID — URL запроса, выданный staging endpoint
	ID string
	// Paths — пути на RSE, покрываемые запросом
	Paths map[string]struct{}
	// Created — момент создания запроса
	Created time.Time
	// Expiration — момент, после которого pin снимается
	Expiration time.Time

	// targets — соответствие имени цели в протоколе исходному пути (bulk с target-prefix)
	targets map[string]string
}

// SortedPaths возвращает пути запроса в отсортированном порядке.
func (r *Request) SortedPaths() []string {
	return sortedKeys(r.Paths)
}

// ExpiresWithin сообщает, истекает ли запрос в пределах d от now.
func (r *Request) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !now.Add(d).Before(r.Expiration)
}

// Status — результат опроса запроса.
type Status struct {
	// Staged — пути, уже находящиеся на диске
	Staged []string
	// Pending — пути, ещё не подтверждённые как staged
	Pending []string
}

// Backend — протокол staging конкретного RSE.
type Backend interface {
	// Create отправляет запрос на staging путей.
	Create(ctx context.Context, paths []string) (*Request, error)
	// Query опрашивает состояние запроса.
	Query(ctx context.Context, req *Request) (*Status, error)
	// Delete отменяет запрос.
	Delete(ctx context.Context, req *Request) error
	// Keep решает для каждого запроса, сохраняется ли он при текущем наборе
	// нужных путей.
	Keep(reqs []*Request, wanted map[string]struct{}) []bool
	// Split делит непокрытые пути на порции для новых запросов.
	Split(paths []string) [][]string
}

// Options — общие параметры протоколов.
type Options struct {
	// Lifetime — время жизни pin
	Lifetime time.Duration
	// ChunkSize — максимальный размер запроса paginated-протокола
	ChunkSize int
	// LowWater — минимальный размер запроса paginated-протокола, который сохраняется
	LowWater int
}

// newRequest создаёт Request для набора путей.
func newRequest(id string, paths []string, lifetime time.Duration) *Request {
	now := time.Now()
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return &Request{
		ID:         id,
		Paths:      set,
		Created:    now,
		Expiration: now.Add(lifetime),
	}
}

// FormatDiskLifetime форматирует длительность в ISO 8601 для поля diskLifetime:
// PT<n>H, PT<n>M или PT<n>S — в самых крупных целых единицах.
func FormatDiskLifetime(d time.Duration) string {
	secs := int64(d / time.Second)
	switch {
	case secs > 0 && secs%3600 == 0:
		return fmt.Sprintf("PT%dH", secs/3600)
	case secs > 0 && secs%60 == 0:
		return fmt.Sprintf("PT%dM", secs/60)
	default:
		return fmt.Sprintf("PT%dS", secs)
	}
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// splitStatus раскладывает пути запроса на staged и pending.
func splitStatus(req *Request, staged map[string]bool) *Status {
	st := &Status{}
	for _, p := range req.SortedPaths() {
		if staged[p] {
			st.Staged = append(st.Staged, p)
		} else {
			st.Pending = append(st.Pending, p)
		}
	}
	return st
}
