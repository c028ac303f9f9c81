package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReservationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reservations_total",
		Help: "Number of successful stock reservations",
	})

	ReleasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_releases_total",
		Help: "Number of reservation releases",
	})

	AllocationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_allocation_failures_total",
		Help: "Number of allocations rejected for insufficient stock",
	})

	SalesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_sales_total",
		Help: "Number of committed sale deductions",
	})

	TransfersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_transfers_total",
		Help: "Number of completed outlet-to-outlet transfers",
	})

	AlertsRaisedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_alerts_raised_total",
		Help: "Number of stock alerts raised, by alert type",
	}, []string{"alert_type"})

	OutboxPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_outbox_published_total",
		Help: "Number of outbox events published to the broker",
	})

	ConflictRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_conflict_retries_total",
		Help: "Number of optimistic-concurrency retries performed",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
