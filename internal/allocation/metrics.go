package allocation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AllocationsCommittedTotal counts committed allocations by type.
	AllocationsCommittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_committed_total",
		Help: "Total number of committed allocations by type",
	}, []string{"type"})

	// AllocationsNoQuantityTotal counts allocations rejected on empty rows.
	AllocationsNoQuantityTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allocation_no_quantity_total",
		Help: "Total number of allocations rejected because nothing was available",
	})

	// AllocationsFailedTotal counts allocations abandoned after all retries.
	AllocationsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allocation_failed_total",
		Help: "Total number of allocations abandoned after exhausting retries",
	})
)
