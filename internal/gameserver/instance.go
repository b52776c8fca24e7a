// Package gameserver composes the ECS runtime, the six gameplay systems,
// persistence, and the database proxy into a single running server:
// the top-level type a process entrypoint starts and stops.
package gameserver

import (
	"sync"
	"time"

	"github.com/kcenon/common-game-server-sub000/internal/components"
	"github.com/kcenon/common-game-server-sub000/pkg/cgserrors"
	"github.com/kcenon/common-game-server-sub000/pkg/logger"
)

// InstanceState is a map instance's lifecycle stage. Transitions are
// forward-only: Active -> Draining -> ShuttingDown.
type InstanceState uint8

const (
	InstanceActive InstanceState = iota
	InstanceDraining
	InstanceShuttingDown
)

// InstanceInfo is a map instance's metadata snapshot.
type InstanceInfo struct {
	InstanceID  uint32
	MapID       uint32
	Type        components.MapType
	State       InstanceState
	PlayerCount uint32
	MaxPlayers  uint32
	CreatedAt   time.Time
}

// InstanceManager tracks map instance lifecycle and player counts. It
// does not own ECS entities; GameServer keeps a parallel map-entity
// table so world spatial state stays with the WorldSystem.
//
// Thread-safe: every method is guarded by an internal mutex.
type InstanceManager struct {
	maxInstances uint32
	log          *logger.Logger

	mu           sync.Mutex
	nextInstance uint32
	instances    map[uint32]*InstanceInfo
}

// DefaultMaxInstances is the default concurrent map instance ceiling.
const DefaultMaxInstances = 1000

// NewInstanceManager constructs an empty manager with the given capacity.
// A zero maxInstances uses DefaultMaxInstances. log may be nil, in which
// case the manager operates silently.
func NewInstanceManager(maxInstances uint32, log *logger.Logger) *InstanceManager {
	if maxInstances == 0 {
		maxInstances = DefaultMaxInstances
	}
	return &InstanceManager{
		maxInstances: maxInstances,
		log:          log,
		nextInstance: 1,
		instances:    make(map[uint32]*InstanceInfo),
	}
}

// CreateInstance allocates a new Active instance for mapID, or fails if
// the manager is at capacity.
func (m *InstanceManager) CreateInstance(mapID uint32, mapType components.MapType, maxPlayers uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if uint32(len(m.instances)) >= m.maxInstances {
		if m.log != nil {
			m.log.WithField("max_instances", m.maxInstances).Warn("map instance creation rejected: limit reached")
		}
		return 0, cgserrors.New(cgserrors.MapInstanceLimitReached, "maximum number of map instances reached")
	}
	if maxPlayers == 0 {
		maxPlayers = 100
	}

	id := m.nextInstance
	m.nextInstance++
	m.instances[id] = &InstanceInfo{
		InstanceID: id,
		MapID:      mapID,
		Type:       mapType,
		State:      InstanceActive,
		MaxPlayers: maxPlayers,
		CreatedAt:  time.Now(),
	}
	return id, nil
}

// DestroyInstance removes instanceId. Fails if the instance still has
// players; drain it first.
func (m *InstanceManager) DestroyInstance(instanceID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.instances[instanceID]
	if !ok {
		return cgserrors.New(cgserrors.MapInstanceNotFound, "map instance not found")
	}
	if info.PlayerCount > 0 {
		if m.log != nil {
			m.log.WithFields(map[string]interface{}{
				"instance_id":  instanceID,
				"player_count": info.PlayerCount,
			}).Warn("map instance destruction rejected: players still present")
		}
		return cgserrors.New(cgserrors.MapInstanceInvalidState, "cannot destroy instance with active players")
	}
	delete(m.instances, instanceID)
	return nil
}

// SetInstanceState transitions instanceId to state, enforcing the
// forward-only Active -> Draining -> ShuttingDown order. Reports whether
// the transition was applied.
func (m *InstanceManager) SetInstanceState(instanceID uint32, state InstanceState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.instances[instanceID]
	if !ok {
		return false
	}

	switch {
	case state == InstanceDraining && info.State != InstanceActive:
		return false
	case state == InstanceShuttingDown && info.State != InstanceDraining:
		return false
	case state == InstanceActive:
		return false
	}

	info.State = state
	return true
}

// GetInstance returns a copy of instanceId's metadata.
func (m *InstanceManager) GetInstance(instanceID uint32) (InstanceInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.instances[instanceID]
	if !ok {
		return InstanceInfo{}, false
	}
	return *info, true
}

// InstancesByMap returns every instance for mapID.
func (m *InstanceManager) InstancesByMap(mapID uint32) []InstanceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []InstanceInfo
	for _, info := range m.instances {
		if info.MapID == mapID {
			result = append(result, *info)
		}
	}
	return result
}

// InstancesByState returns every instance in state.
func (m *InstanceManager) InstancesByState(state InstanceState) []InstanceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []InstanceInfo
	for _, info := range m.instances {
		if info.State == state {
			result = append(result, *info)
		}
	}
	return result
}

// AddPlayer increments instanceId's player count. Fails if the instance
// doesn't exist, isn't Active, or is already full.
func (m *InstanceManager) AddPlayer(instanceID uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.instances[instanceID]
	if !ok || info.State != InstanceActive || info.PlayerCount >= info.MaxPlayers {
		return false
	}
	info.PlayerCount++
	return true
}

// RemovePlayer decrements instanceId's player count. Fails if the
// instance doesn't exist or already has zero players.
func (m *InstanceManager) RemovePlayer(instanceID uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.instances[instanceID]
	if !ok || info.PlayerCount == 0 {
		return false
	}
	info.PlayerCount--
	return true
}

// InstanceCount returns the total number of instances.
func (m *InstanceManager) InstanceCount() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint32(len(m.instances))
}

// InstanceCountByState returns the number of instances in state.
func (m *InstanceManager) InstanceCountByState(state InstanceState) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count uint32
	for _, info := range m.instances {
		if info.State == state {
			count++
		}
	}
	return count
}

// FindEmptyInstances returns the IDs of every instance with zero players.
func (m *InstanceManager) FindEmptyInstances() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []uint32
	for id, info := range m.instances {
		if info.PlayerCount == 0 {
			result = append(result, id)
		}
	}
	return result
}

// FindAvailableInstances returns the IDs of Active, non-full instances
// for mapID, in no particular order.
func (m *InstanceManager) FindAvailableInstances(mapID uint32) []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []uint32
	for id, info := range m.instances {
		if info.MapID == mapID && info.State == InstanceActive && info.PlayerCount < info.MaxPlayers {
			result = append(result, id)
		}
	}
	return result
}
