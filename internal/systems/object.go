package systems

import (
	"github.com/kcenon/common-game-server-sub000/internal/components"
	"github.com/kcenon/common-game-server-sub000/internal/ecs"
)

// ObjectUpdateSystem integrates position from movement each tick:
// position += direction * speed * deltaTime. Entities in the Idle
// movement state are skipped entirely.
type ObjectUpdateSystem struct {
	transforms *ecs.ComponentStorage[components.Transform]
	movements  *ecs.ComponentStorage[components.Movement]
	query      *ecs.Query2[components.Transform, components.Movement]
}

// NewObjectUpdateSystem wires an ObjectUpdateSystem to the component
// storages it reads and writes.
func NewObjectUpdateSystem(
	transforms *ecs.ComponentStorage[components.Transform],
	movements *ecs.ComponentStorage[components.Movement],
) *ObjectUpdateSystem {
	return &ObjectUpdateSystem{
		transforms: transforms,
		movements:  movements,
		query:      ecs.NewQuery2(transforms, movements),
	}
}

// Stage reports Update.
func (s *ObjectUpdateSystem) Stage() ecs.Stage { return ecs.Update }

// Name identifies this system for scheduler diagnostics.
func (s *ObjectUpdateSystem) Name() string { return "ObjectUpdateSystem" }

// Execute integrates every movable entity's position for one tick.
func (s *ObjectUpdateSystem) Execute(deltaTime float64) {
	s.query.ForEach(func(_ ecs.Entity, transform *components.Transform, movement *components.Movement) {
		if movement.State == components.MovementIdle {
			return
		}
		transform.Position = transform.Position.Add(movement.Direction.Scale(movement.Speed * deltaTime))
	})
}
