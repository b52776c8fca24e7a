package gameserver

import (
	"testing"

	"github.com/kcenon/common-game-server-sub000/internal/components"
	"github.com/kcenon/common-game-server-sub000/pkg/cgserrors"
)

func TestCreateInstanceAssignsSequentialIDs(t *testing.T) {
	m := NewInstanceManager(0, nil)

	first, err := m.CreateInstance(1, components.MapOpenWorld, 50)
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	second, err := m.CreateInstance(1, components.MapOpenWorld, 50)
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct instance IDs, got %d twice", first)
	}
}

func TestCreateInstanceFailsAtCapacity(t *testing.T) {
	m := NewInstanceManager(1, nil)

	if _, err := m.CreateInstance(1, components.MapOpenWorld, 10); err != nil {
		t.Fatalf("first CreateInstance() error = %v", err)
	}
	_, err := m.CreateInstance(1, components.MapOpenWorld, 10)
	if !cgserrors.Is(err, cgserrors.MapInstanceLimitReached) {
		t.Fatalf("CreateInstance() error = %v, want MapInstanceLimitReached", err)
	}
}

func TestDestroyInstanceRejectsNonEmptyInstance(t *testing.T) {
	m := NewInstanceManager(0, nil)
	id, _ := m.CreateInstance(1, components.MapOpenWorld, 10)
	m.AddPlayer(id)

	err := m.DestroyInstance(id)
	if !cgserrors.Is(err, cgserrors.MapInstanceInvalidState) {
		t.Fatalf("DestroyInstance() error = %v, want MapInstanceInvalidState", err)
	}

	m.RemovePlayer(id)
	if err := m.DestroyInstance(id); err != nil {
		t.Fatalf("DestroyInstance() after drain error = %v", err)
	}
	if _, ok := m.GetInstance(id); ok {
		t.Fatal("expected instance gone after destroy")
	}
}

func TestDestroyInstanceNotFound(t *testing.T) {
	m := NewInstanceManager(0, nil)
	err := m.DestroyInstance(999)
	if !cgserrors.Is(err, cgserrors.MapInstanceNotFound) {
		t.Fatalf("DestroyInstance() error = %v, want MapInstanceNotFound", err)
	}
}

func TestSetInstanceStateEnforcesForwardOnlyTransitions(t *testing.T) {
	m := NewInstanceManager(0, nil)
	id, _ := m.CreateInstance(1, components.MapOpenWorld, 10)

	if m.SetInstanceState(id, InstanceShuttingDown) {
		t.Fatal("expected Active -> ShuttingDown to be rejected")
	}
	if !m.SetInstanceState(id, InstanceDraining) {
		t.Fatal("expected Active -> Draining to succeed")
	}
	if m.SetInstanceState(id, InstanceActive) {
		t.Fatal("expected Draining -> Active to be rejected")
	}
	if !m.SetInstanceState(id, InstanceShuttingDown) {
		t.Fatal("expected Draining -> ShuttingDown to succeed")
	}
}

func TestAddPlayerRespectsStateAndCapacity(t *testing.T) {
	m := NewInstanceManager(0, nil)
	id, _ := m.CreateInstance(1, components.MapOpenWorld, 1)

	if !m.AddPlayer(id) {
		t.Fatal("expected first AddPlayer to succeed")
	}
	if m.AddPlayer(id) {
		t.Fatal("expected AddPlayer to fail once instance is full")
	}

	m.SetInstanceState(id, InstanceDraining)
	other, _ := m.CreateInstance(1, components.MapOpenWorld, 10)
	m.SetInstanceState(other, InstanceDraining)
	if m.AddPlayer(other) {
		t.Fatal("expected AddPlayer to fail on a draining instance")
	}
}

func TestRemovePlayerRejectsEmptyInstance(t *testing.T) {
	m := NewInstanceManager(0, nil)
	id, _ := m.CreateInstance(1, components.MapOpenWorld, 10)

	if m.RemovePlayer(id) {
		t.Fatal("expected RemovePlayer on empty instance to fail")
	}
	m.AddPlayer(id)
	if !m.RemovePlayer(id) {
		t.Fatal("expected RemovePlayer to succeed after AddPlayer")
	}
}

func TestFindAvailableInstancesFiltersByMapStateAndCapacity(t *testing.T) {
	m := NewInstanceManager(0, nil)
	open, _ := m.CreateInstance(1, components.MapOpenWorld, 1)
	full, _ := m.CreateInstance(1, components.MapOpenWorld, 1)
	m.AddPlayer(full)
	otherMap, _ := m.CreateInstance(2, components.MapOpenWorld, 10)

	available := m.FindAvailableInstances(1)
	if len(available) != 1 || available[0] != open {
		t.Fatalf("FindAvailableInstances(1) = %v, want [%d]", available, open)
	}
	if got := m.FindAvailableInstances(2); len(got) != 1 || got[0] != otherMap {
		t.Fatalf("FindAvailableInstances(2) = %v, want [%d]", got, otherMap)
	}
}

func TestFindEmptyInstances(t *testing.T) {
	m := NewInstanceManager(0, nil)
	empty, _ := m.CreateInstance(1, components.MapOpenWorld, 10)
	occupied, _ := m.CreateInstance(1, components.MapOpenWorld, 10)
	m.AddPlayer(occupied)

	got := m.FindEmptyInstances()
	if len(got) != 1 || got[0] != empty {
		t.Fatalf("FindEmptyInstances() = %v, want [%d]", got, empty)
	}
}

func TestInstanceCountByState(t *testing.T) {
	m := NewInstanceManager(0, nil)
	a, _ := m.CreateInstance(1, components.MapOpenWorld, 10)
	m.CreateInstance(1, components.MapOpenWorld, 10)
	m.SetInstanceState(a, InstanceDraining)

	if got := m.InstanceCountByState(InstanceActive); got != 1 {
		t.Fatalf("InstanceCountByState(Active) = %d, want 1", got)
	}
	if got := m.InstanceCountByState(InstanceDraining); got != 1 {
		t.Fatalf("InstanceCountByState(Draining) = %d, want 1", got)
	}
	if got := m.InstanceCount(); got != 2 {
		t.Fatalf("InstanceCount() = %d, want 2", got)
	}
}
