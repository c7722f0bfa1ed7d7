package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
	"github.com/bigkaa/datadispatcher/internal/staging"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// availabilityCall — вызов AvailabilityStore, записанный фейком.
type availabilityCall struct {
	op        string
	available bool
	rse       string
	dids      []model.DID
}

// fakeAvailabilityStore записывает вызовы обновления реплик.
type fakeAvailabilityStore struct {
	mu    sync.Mutex
	calls []availabilityCall
}

func (f *fakeAvailabilityStore) UpdateAvailabilityBulk(_ context.Context, available bool, rse string, dids []model.DID) (int, error) {
	if len(dids) == 0 {
		return 0, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, availabilityCall{op: "update", available: available, rse: rse, dids: sortDIDs(dids)})
	return len(dids), nil
}

func (f *fakeAvailabilityStore) RemoveBulk(_ context.Context, rse string, dids []model.DID) (int, error) {
	if len(dids) == 0 {
		return 0, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, availabilityCall{op: "remove", rse: rse, dids: sortDIDs(dids)})
	return len(dids), nil
}

func (f *fakeAvailabilityStore) snapshot() []availabilityCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]availabilityCall(nil), f.calls...)
}

// fakeChecker возвращает заранее заданный ответ locality по пути.
// Отсутствующий путь считается несуществующим файлом.
type fakeChecker struct {
	mu     sync.Mutex
	online map[string]bool
	errs   map[string]error
	calls  []string
}

func (f *fakeChecker) Online(_ context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
	if err, ok := f.errs[path]; ok {
		return false, err
	}
	online, ok := f.online[path]
	if !ok {
		return false, staging.ErrNotFound
	}
	return online, nil
}

// fakeSubmitter записывает файлы, поданные на проверку locality.
type fakeSubmitter struct {
	mu    sync.Mutex
	files map[model.DID]string
}

func (f *fakeSubmitter) Submit(files map[model.DID]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.files == nil {
		f.files = make(map[model.DID]string)
	}
	for did, path := range files {
		f.files[did] = path
	}
}

func (f *fakeSubmitter) submitted() map[model.DID]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[model.DID]string, len(f.files))
	for did, path := range f.files {
		out[did] = path
	}
	return out
}

func sortDIDs(dids []model.DID) []model.DID {
	out := append([]model.DID(nil), dids...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func did(name string) model.DID {
	return model.DID{Namespace: "ns", Name: name}
}
