package minipool

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	pagesInUseMetric = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mini_pool",
		Subsystem: "pages",
		Name:      "in_use_count",
		Help:      "pages currently mapped across all allocators",
	})

	pageCreatedMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mini_pool",
		Subsystem: "pages",
		Name:      "created_count",
		Help:      "pages mapped since start",
	})

	pageReclaimedMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mini_pool",
		Subsystem: "pages",
		Name:      "reclaimed_count",
		Help:      "empty pages released since start",
	})

	objectsInUseMetric = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mini_pool",
		Subsystem: "objects",
		Name:      "in_use_count",
		Help:      "objects currently held by clients",
	})

	freeObjectsMetric = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mini_pool",
		Subsystem: "objects",
		Name:      "free_count",
		Help:      "objects on free lists",
	})

	allocationMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mini_pool",
		Subsystem: "objects",
		Name:      "allocation_count",
		Help:      "allocations since start",
	})

	deallocationMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mini_pool",
		Subsystem: "objects",
		Name:      "deallocation_count",
		Help:      "deallocations since start",
	})
)

func init() {
	// pages
	prometheus.MustRegister(pagesInUseMetric)
	prometheus.MustRegister(pageCreatedMetric)
	prometheus.MustRegister(pageReclaimedMetric)

	// objects
	prometheus.MustRegister(objectsInUseMetric)
	prometheus.MustRegister(freeObjectsMetric)
	prometheus.MustRegister(allocationMetric)
	prometheus.MustRegister(deallocationMetric)
}
