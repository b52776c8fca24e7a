// Package components defines the plain-data ECS components every game
// system operates on. Components are kept small and single-concern so
// sparse-set storage stays cache-friendly during system iteration.
package components

import (
	"sync/atomic"

	"github.com/kcenon/common-game-server-sub000/internal/mathutil"
)

// MaxAttributes bounds the Stats attribute array.
const MaxAttributes = 16

// ObjectType classifies a game world object.
type ObjectType uint8

const (
	ObjectTypePlayer ObjectType = iota
	ObjectTypeCreature
	ObjectTypeGameObject
)

// MovementState is the movement state machine's current state.
type MovementState uint8

const (
	MovementIdle MovementState = iota
	MovementWalking
	MovementRunning
	MovementFalling
)

// Transform is spatial position, rotation and scale in world space.
type Transform struct {
	Position mathutil.Vector3
	Rotation mathutil.Quaternion
	Scale    mathutil.Vector3
}

// NewTransform returns a Transform with identity rotation and unit scale.
func NewTransform(position mathutil.Vector3) Transform {
	return Transform{
		Position: position,
		Rotation: mathutil.IdentityQuaternion,
		Scale:    mathutil.OneVector3,
	}
}

// GUID is a globally unique object identifier. 0 is reserved as invalid.
type GUID uint64

// InvalidGUID represents "no object".
const InvalidGUID GUID = 0

var guidCounter uint64

// GenerateGUID returns a process-unique GUID, safe to call concurrently.
// Values start at 1.
func GenerateGUID() GUID {
	return GUID(atomic.AddUint64(&guidCounter, 1))
}

// Identity is an object's globally unique ID, display name,
// classification, and template (prototype) entry ID.
type Identity struct {
	GUID  GUID
	Name  string
	Type  ObjectType
	Entry uint32
}

// Stats holds health, mana, and a fixed attribute array. Use SetHealth
// and SetMana rather than writing the fields directly to keep values
// clamped to their maxima.
type Stats struct {
	Health     int32
	MaxHealth  int32
	Mana       int32
	MaxMana    int32
	Attributes [MaxAttributes]int32
}

// SetHealth clamps value to [0, MaxHealth] and stores it.
func (s *Stats) SetHealth(value int32) {
	s.Health = clamp(value, 0, s.MaxHealth)
}

// SetMana clamps value to [0, MaxMana] and stores it.
func (s *Stats) SetMana(value int32) {
	s.Mana = clamp(value, 0, s.MaxMana)
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Movement is an entity's movement dynamics: effective speed, base speed,
// facing direction, and movement state.
type Movement struct {
	Speed     float64
	BaseSpeed float64
	Direction mathutil.Vector3
	State     MovementState
}

// ApplySpeedModifier sets Speed to BaseSpeed * modifier.
func (m *Movement) ApplySpeedModifier(modifier float64) {
	m.Speed = m.BaseSpeed * modifier
}

// ResetSpeed sets Speed back to BaseSpeed.
func (m *Movement) ResetSpeed() {
	m.Speed = m.BaseSpeed
}
