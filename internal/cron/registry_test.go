package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresJobsInOrder(t *testing.T) {
	registry, err := NewRegistry(nil, &stubJob{name: "a"})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	jobB := &stubJob{name: "b"}
	if err := registry.Register(jobB); err != nil {
		t.Fatalf("register: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0].Name() != "a" || jobs[1] != jobB {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	// callers must not be able to mutate the internal slice
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	if _, err := NewRegistry(&stubJob{name: "usage-reset"}, &stubJob{name: "usage-reset"}); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestRegistryLookup(t *testing.T) {
	registry, _ := NewRegistry(&stubJob{name: "entitlement-expiry"})
	if _, ok := registry.Lookup("entitlement-expiry"); !ok {
		t.Fatal("expected job to be found")
	}
	if _, ok := registry.Lookup("missing"); ok {
		t.Fatal("unexpected job")
	}
}
