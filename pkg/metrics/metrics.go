// Пакет metrics регистрирует метрики Prometheus сервиса записей
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntryOperations считает операции над записями по типу (insert|update|delete|retrieve|purge) и результату (ok|error)
	EntryOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entries_operations_total",
			Help: "Total number of entry lifecycle operations",
		},
		[]string{"op", "result"},
	)

	// CacheLookups считает обращения к кэшу записей (hit|miss|error)
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entries_cache_lookups_total",
			Help: "Total number of entry cache lookups",
		},
		[]string{"result"},
	)

	// EventDeliveries считает доставку событий подписчикам (ok|error)
	EventDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entries_event_deliveries_total",
			Help: "Total number of lifecycle event deliveries per subscriber",
		},
		[]string{"subscriber", "kind", "result"},
	)

	// EntryEvents считает события жизненного цикла записей по типу (created|updated|deleted)
	EntryEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entries_events_total",
			Help: "Total number of emitted entry lifecycle events",
		},
		[]string{"kind"},
	)

	// APILatency измеряет время обработки HTTP-запросов
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entries_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Result переводит ошибку в метку результата
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
