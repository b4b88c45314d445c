package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cartOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_operations_total",
			Help: "Total number of cart operations by result",
		},
		[]string{"operation", "outcome"},
	)

	cartOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cart_operation_duration_seconds",
			Help:    "Cart operation latency including inventory and storage round-trips",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)
