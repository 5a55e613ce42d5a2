// Package promexporter exposes riakpb client and pool statistics as
// Prometheus metrics.
package promexporter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/riakpb/riakpb"
	"github.com/sony/gobreaker/v2"
)

// StatsSource is what the collector scrapes. *riakpb.Client satisfies it.
type StatsSource interface {
	Stats() riakpb.ClientStats
	AllPoolStats() []riakpb.ServerPoolStats
}

// Collector reads a snapshot of the client statistics on every scrape.
type Collector struct {
	source StatsSource

	// Operations
	ops    *prometheus.Desc
	errors *prometheus.Desc

	// Circuit Breaker
	circuitState    *prometheus.Desc
	circuitRequests *prometheus.Desc
	circuitFailures *prometheus.Desc

	// Pool
	poolConnections *prometheus.Desc
	poolCreated     *prometheus.Desc
	poolDestroyed   *prometheus.Desc
	poolAcquires    *prometheus.Desc
	poolWaits       *prometheus.Desc
	poolWaitSeconds *prometheus.Desc
	poolErrors      *prometheus.Desc
}

func NewCollector(source StatsSource) *Collector {
	server := []string{"server"}
	return &Collector{
		source: source,
		ops: prometheus.NewDesc(
			"riak_operations_total",
			"Total number of Riak exchanges by operation",
			[]string{"op"}, nil,
		),
		errors: prometheus.NewDesc(
			"riak_errors_total",
			"Total number of failed Riak operations",
			nil, nil,
		),
		circuitState: prometheus.NewDesc(
			"riak_circuit_breaker_state",
			"Circuit breaker state (0=closed, 1=half-open, 2=open)",
			server, nil,
		),
		circuitRequests: prometheus.NewDesc(
			"riak_circuit_breaker_requests",
			"Number of requests tracked by circuit breaker",
			server, nil,
		),
		circuitFailures: prometheus.NewDesc(
			"riak_circuit_breaker_failures",
			"Circuit breaker failure counts",
			[]string{"server", "type"}, nil, // total, consecutive
		),
		poolConnections: prometheus.NewDesc(
			"riak_pool_connections",
			"Connection pool statistics",
			[]string{"server", "state"}, nil, // total, active, idle
		),
		poolCreated: prometheus.NewDesc(
			"riak_pool_connections_created_total",
			"Total connections created",
			server, nil,
		),
		poolDestroyed: prometheus.NewDesc(
			"riak_pool_connections_destroyed_total",
			"Total connections destroyed",
			server, nil,
		),
		poolAcquires: prometheus.NewDesc(
			"riak_pool_acquires_total",
			"Total connection acquire attempts",
			server, nil,
		),
		poolWaits: prometheus.NewDesc(
			"riak_pool_acquire_waits_total",
			"Acquires that had to wait for a connection",
			server, nil,
		),
		poolWaitSeconds: prometheus.NewDesc(
			"riak_pool_acquire_wait_seconds_total",
			"Total time spent waiting for a connection",
			server, nil,
		),
		poolErrors: prometheus.NewDesc(
			"riak_pool_acquire_errors_total",
			"Total connection acquire errors",
			server, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ops
	ch <- c.errors
	ch <- c.circuitState
	ch <- c.circuitRequests
	ch <- c.circuitFailures
	ch <- c.poolConnections
	ch <- c.poolCreated
	ch <- c.poolDestroyed
	ch <- c.poolAcquires
	ch <- c.poolWaits
	ch <- c.poolWaitSeconds
	ch <- c.poolErrors
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()
	for op, n := range map[string]uint64{
		"get":        stats.Gets,
		"put":        stats.Puts,
		"delete":     stats.Deletes,
		"list":       stats.Lists,
		"map_reduce": stats.MapReduces,
	} {
		ch <- prometheus.MustNewConstMetric(c.ops, prometheus.CounterValue, float64(n), op)
	}
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(stats.Errors))

	for _, sp := range c.source.AllPoolStats() {
		addr := sp.Addr
		ps := sp.PoolStats
		cb := sp.CircuitBreakerCounts

		ch <- prometheus.MustNewConstMetric(c.circuitState, prometheus.GaugeValue, breakerState(sp.CircuitBreakerState), addr)
		ch <- prometheus.MustNewConstMetric(c.circuitRequests, prometheus.GaugeValue, float64(cb.Requests), addr)
		ch <- prometheus.MustNewConstMetric(c.circuitFailures, prometheus.GaugeValue, float64(cb.TotalFailures), addr, "total")
		ch <- prometheus.MustNewConstMetric(c.circuitFailures, prometheus.GaugeValue, float64(cb.ConsecutiveFailures), addr, "consecutive")

		ch <- prometheus.MustNewConstMetric(c.poolConnections, prometheus.GaugeValue, float64(ps.TotalConns), addr, "total")
		ch <- prometheus.MustNewConstMetric(c.poolConnections, prometheus.GaugeValue, float64(ps.ActiveConns), addr, "active")
		ch <- prometheus.MustNewConstMetric(c.poolConnections, prometheus.GaugeValue, float64(ps.IdleConns), addr, "idle")
		ch <- prometheus.MustNewConstMetric(c.poolCreated, prometheus.CounterValue, float64(ps.CreatedConns), addr)
		ch <- prometheus.MustNewConstMetric(c.poolDestroyed, prometheus.CounterValue, float64(ps.DestroyedConns), addr)
		ch <- prometheus.MustNewConstMetric(c.poolAcquires, prometheus.CounterValue, float64(ps.AcquireCount), addr)
		ch <- prometheus.MustNewConstMetric(c.poolWaits, prometheus.CounterValue, float64(ps.AcquireWaitCount), addr)
		ch <- prometheus.MustNewConstMetric(c.poolWaitSeconds, prometheus.CounterValue, float64(ps.AcquireWaitTimeNs)/1e9, addr)
		ch <- prometheus.MustNewConstMetric(c.poolErrors, prometheus.CounterValue, float64(ps.AcquireErrors), addr)
	}
}

func breakerState(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
