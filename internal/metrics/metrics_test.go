package metrics

import (
	"testing"

	"go.uber.org/net/metrics"
)

func TestNilScopeYieldsNilRegistry(t *testing.T) {
	r := New(nil)
	if r != nil {
		t.Fatal("expected a nil Registry from a nil scope")
	}

	// Nil-safe: none of these should panic.
	r.IncTicketsIssued("cpu_input")
	r.IncTicketsCompleted("cpu_input")
	r.IncTasksExecuted("pool")
	r.IncTasksFailed("pool")
	r.SetQueueDepth("pool", 3)
}

func TestRegistryIncrementsCounters(t *testing.T) {
	root := metrics.New()
	r := New(root.Scope())
	if r == nil {
		t.Fatal("expected a non-nil Registry from a real scope")
	}

	r.IncTicketsIssued("cpu_input")
	r.IncTicketsIssued("cpu_input")
	r.IncTicketsCompleted("cpu_input")
	r.IncTasksExecuted("pool")
	r.IncTasksFailed("pool")
	r.SetQueueDepth("pool", 7)

	snap := root.Snapshot()
	found := map[string]bool{}
	for _, c := range snap.Counters {
		found[c.Name] = true
	}
	for _, name := range []string{
		"inferpipe_tickets_issued",
		"inferpipe_tickets_completed",
		"inferpipe_tasks_executed",
		"inferpipe_tasks_failed",
	} {
		if !found[name] {
			t.Errorf("expected snapshot to contain counter %q", name)
		}
	}

	gaugeFound := false
	for _, g := range snap.Gauges {
		if g.Name == "inferpipe_queue_depth" {
			gaugeFound = true
			if g.Value != 7 {
				t.Errorf("expected queue depth gauge to read 7, got %d", g.Value)
			}
		}
	}
	if !gaugeFound {
		t.Error("expected snapshot to contain gauge inferpipe_queue_depth")
	}
}

func TestIncTicketsIssuedDistinguishesResources(t *testing.T) {
	root := metrics.New()
	r := New(root.Scope())

	r.IncTicketsIssued("cpu_input")
	r.IncTicketsIssued("mlu_input")
	r.IncTicketsIssued("mlu_input")

	counts := map[string]int64{}
	for _, c := range root.Snapshot().Counters {
		if c.Name != "inferpipe_tickets_issued" {
			continue
		}
		counts[c.Tags["resource"]] = c.Value
	}
	if counts["cpu_input"] != 1 {
		t.Errorf("expected cpu_input=1, got %d", counts["cpu_input"])
	}
	if counts["mlu_input"] != 2 {
		t.Errorf("expected mlu_input=2, got %d", counts["mlu_input"])
	}
}
