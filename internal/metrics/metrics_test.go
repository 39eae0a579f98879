package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentharness/harness/internal/eventbus"
	"github.com/agentharness/harness/internal/ptysup"
	"github.com/agentharness/harness/internal/store"
)

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		metrics := fam.GetMetric()
		if len(metrics) != 1 {
			t.Fatalf("expected exactly one metric for %s, got %d", name, len(metrics))
		}
		return metrics[0].GetGauge().GetValue()
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestRegisterExposesFreeSlotsAndSubscriberCount(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	bus := eventbus.New()
	sub := bus.Subscribe(nil, nil, 1)
	t.Cleanup(sub.Close)

	sup := ptysup.New(ptysup.Config{MaxSlots: 3}, st, bus, nil)

	reg := prometheus.NewRegistry()
	if err := Register(reg, Sources{Supervisor: sup, Store: st, Bus: bus}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if got := gaugeValue(t, reg, "harness_free_slots"); got != 3 {
		t.Fatalf("harness_free_slots = %v, want 3", got)
	}
	if got := gaugeValue(t, reg, "harness_event_bus_subscribers"); got != 1 {
		t.Fatalf("harness_event_bus_subscribers = %v, want 1", got)
	}
	if got := gaugeValue(t, reg, "harness_live_sessions"); got != 0 {
		t.Fatalf("harness_live_sessions = %v, want 0", got)
	}
	if got := gaugeValue(t, reg, "harness_pending_checkpoints"); got != 0 {
		t.Fatalf("harness_pending_checkpoints = %v, want 0", got)
	}
}
