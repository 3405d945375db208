package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string                       { return s.name }
func (s *stubJob) Run(context.Context) (int64, error) { return 0, nil }

func TestRegistryStoresJobs(t *testing.T) {
	registry := NewRegistry()
	jobA := &stubJob{name: "stale-negotiations"}
	jobB := &stubJob{name: "outbox-retention"}
	registry.Register(jobA)
	registry.Register(jobB)
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("jobs returned out of order")
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryIgnoresDuplicatesAndNil(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "outbox-retention"}, nil)
	if registry.Register(&stubJob{name: "outbox-retention"}) {
		t.Fatal("duplicate name must be rejected")
	}
	if registry.Register(nil) {
		t.Fatal("nil job must be rejected")
	}
	names := registry.Names()
	if len(names) != 1 || names[0] != "outbox-retention" {
		t.Fatalf("unexpected names %v", names)
	}
}
