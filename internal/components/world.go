package components

import "github.com/kcenon/common-game-server-sub000/internal/ecs"

// MaxZonesPerMap bounds the number of zones a map instance can contain.
const MaxZonesPerMap = 256

// DefaultCellSize is the spatial grid's default cell edge length, in
// world units.
const DefaultCellSize = 32.0

// DefaultVisibilityRange is the default interest-management radius, in
// world units.
const DefaultVisibilityRange = 100.0

// MapType classifies a map instance.
type MapType uint8

const (
	MapOpenWorld MapType = iota
	MapDungeon
	MapBattleground
)

// ZoneType classifies an area's gameplay rules.
type ZoneType uint8

const (
	ZoneNormal ZoneType = iota
	ZonePvP
	ZoneSafe
	ZoneContested
)

// ZoneFlags is a bitfield of per-zone properties.
type ZoneFlags uint32

const (
	ZoneFlagNone       ZoneFlags = 0
	ZoneFlagNoCombat   ZoneFlags = 1 << 0
	ZoneFlagNoMount    ZoneFlags = 1 << 1
	ZoneFlagNoFly      ZoneFlags = 1 << 2
	ZoneFlagSanctuary  ZoneFlags = 1 << 3
	ZoneFlagResting    ZoneFlags = 1 << 4
	ZoneFlagFreeForAll ZoneFlags = 1 << 5
	ZoneFlagIndoor     ZoneFlags = 1 << 6
)

// Has reports whether flag is set in flags.
func (flags ZoneFlags) Has(flag ZoneFlags) bool {
	return flags&flag != 0
}

// TransitionResult reports the outcome of a map transition request.
type TransitionResult uint8

const (
	TransitionSuccess TransitionResult = iota
	TransitionInvalidMap
	TransitionInvalidZone
	TransitionEntityNotFound
)

// MapInstance anchors a map entity: which map/instance pair it
// represents. Multiple instances of the same MapID can coexist (e.g.
// dungeon copies).
type MapInstance struct {
	MapID      uint32
	InstanceID uint32
	Type       MapType
}

// Zone is an area within a map instance carrying gameplay rule flags.
type Zone struct {
	ZoneID    uint32
	Type      ZoneType
	Flags     ZoneFlags
	MapEntity ecs.Entity
}

// MapMembership tags an entity as belonging to a specific map instance
// and zone.
type MapMembership struct {
	MapEntity ecs.Entity
	ZoneID    uint32
}

// VisibilityRange is an entity's interest-management radius. Absent for
// an entity means DefaultVisibilityRange applies.
type VisibilityRange struct {
	Range float64
}
