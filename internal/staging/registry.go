package staging

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
	"github.com/bigkaa/datadispatcher/internal/httpclient"
)

// Типы RSE со встроенными протоколами staging.
const (
	TypeDCache = "dcache"
	TypeWLCG   = "wlcg"
)

// Factory создаёт Backend для RSE.
type Factory func(rse *model.RSE, client *httpclient.Client, opts Options, logger *slog.Logger) (Backend, error)

// Registry — реестр протоколов staging по типу RSE.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	client    *httpclient.Client
	opts      Options
	logger    *slog.Logger
}

// NewRegistry создаёт реестр со встроенными протоколами dcache и wlcg.
func NewRegistry(client *httpclient.Client, opts Options, logger *slog.Logger) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		client:    client,
		opts:      opts,
		logger:    logger,
	}
	r.Register(TypeDCache, func(rse *model.RSE, c *httpclient.Client, o Options, l *slog.Logger) (Backend, error) {
		return NewBulk(c, rse.PinURL, rse.PinPrefix, o, l.With(slog.String("rse", rse.Name))), nil
	})
	r.Register(TypeWLCG, func(rse *model.RSE, c *httpclient.Client, o Options, l *slog.Logger) (Backend, error) {
		return NewPaginated(c, rse.PinURL, o, l.With(slog.String("rse", rse.Name))), nil
	})
	return r
}

// Register регистрирует (или заменяет) фабрику для типа RSE.
func (r *Registry) Register(typ string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typ] = f
}

// Types возвращает зарегистрированные типы.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Backend создаёт протокол staging для RSE.
// Для незарегистрированного типа возвращает ErrUnknownType.
func (r *Registry) Backend(rse *model.RSE) (Backend, error) {
	if rse.PinURL == "" {
		return nil, fmt.Errorf("RSE %s: pin_url не задан", rse.Name)
	}

	r.mu.RLock()
	f, ok := r.factories[rse.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: RSE %s, тип %q", ErrUnknownType, rse.Name, rse.Type)
	}
	return f(rse, r.client, r.opts, r.logger)
}
