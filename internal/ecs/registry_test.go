package ecs

import "testing"

func TestCreateAssignsIncreasingIndices(t *testing.T) {
	r := NewRegistry()
	e1 := r.Create()
	e2 := r.Create()

	if e1.ID() == e2.ID() {
		t.Fatalf("expected distinct ids, got %d and %d", e1.ID(), e2.ID())
	}
	if r.Count() != 2 {
		t.Fatalf("expected count 2, got %d", r.Count())
	}
}

func TestDestroyRecyclesIndexWithBumpedVersion(t *testing.T) {
	r := NewRegistry()
	e1 := r.Create()
	r.Destroy(e1)

	if r.IsAlive(e1) {
		t.Fatal("expected destroyed entity to be dead")
	}

	e2 := r.Create()
	if e2.ID() != e1.ID() {
		t.Fatalf("expected index reuse, got new id %d vs old %d", e2.ID(), e1.ID())
	}
	if e2.Version() != e1.Version()+1 {
		t.Fatalf("expected version bump, got %d want %d", e2.Version(), e1.Version()+1)
	}
	if r.IsAlive(e1) {
		t.Fatal("stale handle must not be reported alive after recycling")
	}
	if !r.IsAlive(e2) {
		t.Fatal("expected recycled entity to be alive")
	}
}

func TestDestroyOnDeadEntityIsNoop(t *testing.T) {
	r := NewRegistry()
	e := r.Create()
	r.Destroy(e)
	before := r.Count()
	r.Destroy(e)
	if r.Count() != before {
		t.Fatalf("expected count unchanged, got %d want %d", r.Count(), before)
	}
}

func TestDestroyNotifiesRegisteredStorages(t *testing.T) {
	r := NewRegistry()
	storage := NewComponentStorage[int]()
	r.RegisterStorage(storage)

	e := r.Create()
	storage.Add(e, 7)
	if !storage.Has(e) {
		t.Fatal("expected component to be present before destroy")
	}

	r.Destroy(e)
	if storage.Has(e) {
		t.Fatal("expected destroy to remove the entity's component")
	}
}

func TestDeferredDestroyWaitsForFlush(t *testing.T) {
	r := NewRegistry()
	e := r.Create()
	r.DestroyDeferred(e)

	if !r.IsAlive(e) {
		t.Fatal("expected entity to remain alive until FlushDeferred")
	}

	r.FlushDeferred()
	if r.IsAlive(e) {
		t.Fatal("expected entity to be dead after FlushDeferred")
	}
}

func TestFlushDeferredSkipsAlreadyDeadEntities(t *testing.T) {
	r := NewRegistry()
	e := r.Create()
	r.DestroyDeferred(e)
	r.Destroy(e) // already destroyed before flush runs

	// Must not panic or double-free.
	r.FlushDeferred()
	if r.IsAlive(e) {
		t.Fatal("expected entity to remain dead")
	}
}

func TestCapacityCountsAllocatedIndicesIncludingFreed(t *testing.T) {
	r := NewRegistry()
	e1 := r.Create()
	r.Create()
	r.Destroy(e1)

	if r.Capacity() != 2 {
		t.Fatalf("expected capacity 2, got %d", r.Capacity())
	}
	if r.Count() != 1 {
		t.Fatalf("expected count 1, got %d", r.Count())
	}
}
