package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	OrdersDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_deleted_total",
		Help: "Total number of soft-deleted orders",
	})

	OrdersRestoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_restored_total",
		Help: "Total number of restored orders",
	})

	OrderPipelineLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_pipeline_latency_seconds",
		Help:    "Latency of the order creation pipeline",
		Buckets: prometheus.DefBuckets,
	})

	InventoryReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_reserve_latency_seconds",
		Help:    "Latency of inventory reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	InventoryReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_failed_total",
		Help: "Total number of failed inventory reservations",
	}, []string{"reason", "pool"})

	InventoryReleasedUnits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_released_units_total",
		Help: "Units returned to stock by release",
	}, []string{"pool"})

	CompensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_compensations_total",
		Help: "Compensating actions attempted, by outcome",
	}, []string{"step", "outcome"})

	DiscountValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discount_validations_total",
		Help: "Discount validations by result",
	}, []string{"result"})

	SideEffectFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_side_effect_failures_total",
		Help: "Post-commit side effects that failed and were swallowed",
	}, []string{"effect"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
