// Package metrics holds the Prometheus counters exported by the space
// manager and the directory index.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rgkit"

var (
	registerOnce sync.Once

	BlocksAllocated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alloc",
			Name:      "blocks_allocated_total",
			Help:      "Number of blocks handed out, by kind (data, meta, dinode).",
		},
		[]string{"kind"})
	BlocksFreed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alloc",
			Name:      "blocks_freed_total",
			Help:      "Number of blocks returned, by kind (data, meta, dinode).",
		},
		[]string{"kind"})
	ClumpConversions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alloc",
			Name:      "clump_conversions_total",
			Help:      "Number of batches of free data blocks converted to free metadata.",
		})
	MetaReclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alloc",
			Name:      "meta_reclaimed_blocks_total",
			Help:      "Number of free metadata blocks converted back to free data.",
		})

	Reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "place",
			Name:      "reserve_total",
			Help:      "Reservation outcomes: satisfied from the recent list, from the forward scan, or out of space.",
		},
		[]string{"result"})
	LockTryFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "place",
			Name:      "lock_try_failures_total",
			Help:      "Number of non-blocking region lock attempts that would have blocked.",
		})

	DirConversions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dir",
			Name:      "conversions_total",
			Help:      "Number of linear directories converted to hashed directories.",
		})
	DirLeafSplits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dir",
			Name:      "leaf_splits_total",
			Help:      "Number of directory leaf splits.",
		})
	DirTableDoublings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dir",
			Name:      "table_doublings_total",
			Help:      "Number of directory hash table doublings.",
		})
	DirChainExtensions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dir",
			Name:      "chain_extensions_total",
			Help:      "Number of leaves appended to an overflow chain at maximum table depth.",
		})

	ConsistencyFaults = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consist",
			Name:      "faults_total",
			Help:      "Number of on-disk consistency faults detected.",
		})
)

// Register adds every counter to the default registry. It is safe to call
// from every mount; only the first call registers.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(BlocksAllocated)
		prometheus.MustRegister(BlocksFreed)
		prometheus.MustRegister(ClumpConversions)
		prometheus.MustRegister(MetaReclaimed)
		prometheus.MustRegister(Reservations)
		prometheus.MustRegister(LockTryFailures)
		prometheus.MustRegister(DirConversions)
		prometheus.MustRegister(DirLeafSplits)
		prometheus.MustRegister(DirTableDoublings)
		prometheus.MustRegister(DirChainExtensions)
		prometheus.MustRegister(ConsistencyFaults)
	})
}
