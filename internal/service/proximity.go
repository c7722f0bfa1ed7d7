// proximity.go — карта близости CPU-сайтов к RSE с LRU-кэшем.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
)

var (
	proximityHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dd_proximity_cache_hits_total",
		Help: "Общее количество попаданий в кэш карты близости.",
	})
	proximityMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dd_proximity_cache_misses_total",
		Help: "Общее количество промахов кэша карты близости.",
	})
)

// ProximitySource — чтение карты близости сайта из Store.
type ProximitySource interface {
	ProximityForSite(ctx context.Context, cpuSite string) (map[string]int, error)
}

// ProximityCache — кэш карты близости по CPU-сайту.
// Меньшее значение близости означает более близкий RSE; отрицательное —
// RSE недоступен с сайта.
type ProximityCache struct {
	source ProximitySource
	cache  *expirable.LRU[string, map[string]int]
}

// NewProximityCache создаёт кэш на maxSize сайтов с временем жизни записи ttl.
func NewProximityCache(source ProximitySource, maxSize int, ttl time.Duration) *ProximityCache {
	return &ProximityCache{
		source: source,
		cache:  expirable.NewLRU[string, map[string]int](maxSize, nil, ttl),
	}
}

// ForSite возвращает карту RSE → близость для сайта.
func (c *ProximityCache) ForSite(ctx context.Context, cpuSite string) (map[string]int, error) {
	if prox, ok := c.cache.Get(cpuSite); ok {
		proximityHitsTotal.Inc()
		return prox, nil
	}
	proximityMissesTotal.Inc()

	prox, err := c.source.ProximityForSite(ctx, cpuSite)
	if err != nil {
		return nil, fmt.Errorf("чтение карты близости сайта %s: %w", cpuSite, err)
	}
	c.cache.Add(cpuSite, prox)
	return prox, nil
}

// Purge очищает кэш (после обновления карты близости).
func (c *ProximityCache) Purge() {
	c.cache.Purge()
}

// RankReplicas возвращает пригодные к чтению реплики, упорядоченные по
// близости к сайту, затем по убыванию preference. Реплики на RSE,
// недоступных с сайта (отрицательная близость), исключаются. RSE без записи
// в карте идут после всех известных.
func RankReplicas(replicas []model.Replica, prox map[string]int) []model.Replica {
	ranked := make([]model.Replica, 0, len(replicas))
	for _, r := range replicas {
		if !r.Usable() {
			continue
		}
		if p, ok := prox[r.RSE]; ok && p < 0 {
			continue
		}
		ranked = append(ranked, r)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		pa, oka := prox[a.RSE]
		pb, okb := prox[b.RSE]
		if oka != okb {
			return oka
		}
		if pa != pb {
			return pa < pb
		}
		if a.Preference != b.Preference {
			return a.Preference > b.Preference
		}
		return a.RSE < b.RSE
	})
	return ranked
}
