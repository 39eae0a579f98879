// Package metrics exposes the daemon's Prometheus gauges: free slots, live
// sessions, pending checkpoints, and event-bus subscriber count. Each is a
// GaugeFunc sampled on scrape rather than updated from call sites, since
// every underlying number is already cheaply queryable from its owning
// component.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentharness/harness/internal/eventbus"
	"github.com/agentharness/harness/internal/ptysup"
	"github.com/agentharness/harness/internal/store"
)

const namespace = "harness"

// Sources is the set of components the gauges sample from.
type Sources struct {
	Supervisor *ptysup.Supervisor
	Store      *store.Store
	Bus        *eventbus.Bus
}

// Register creates and registers the harness's gauges against registerer.
// Passing prometheus.DefaultRegisterer wires them into the default
// /metrics handler used by the operation surface.
func Register(registerer prometheus.Registerer, src Sources) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "free_slots",
			Help:      "Number of currently unclaimed PTY Supervisor slots.",
		}, func() float64 {
			return float64(src.Supervisor.FreeSlots())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions",
			Help:      "Number of sessions currently held in memory by the PTY Supervisor.",
		}, func() float64 {
			return float64(len(src.Supervisor.LiveSessionIDs()))
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_checkpoints",
			Help:      "Number of worker messages awaiting a coordinator response.",
		}, func() float64 {
			pending, err := src.Store.ListPendingWorkerMessages("", nil)
			if err != nil {
				return 0
			}
			count := 0
			for _, msg := range pending {
				if msg.Type.RequiresResponse() {
					count++
				}
			}
			return float64(count)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_bus_subscribers",
			Help:      "Number of currently registered event bus subscribers.",
		}, func() float64 {
			return float64(src.Bus.SubscriberCount())
		}),
	}

	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}
