package systems

import (
	"github.com/kcenon/common-game-server-sub000/internal/behaviortree"
	"github.com/kcenon/common-game-server-sub000/internal/components"
	"github.com/kcenon/common-game-server-sub000/internal/ecs"
	"github.com/kcenon/common-game-server-sub000/internal/mathutil"
)

// AISystem ticks every entity's behavior tree, throttled independently
// per entity: each AIBrain accumulates deltaTime and only ticks once
// TimeSinceLastTick reaches its effective interval. Because entities
// don't all cross that threshold on the same frame, tree evaluation is
// naturally spread across frames instead of spiking on one tick.
type AISystem struct {
	brains      *ecs.ComponentStorage[components.AIBrain]
	transforms  *ecs.ComponentStorage[components.Transform]
	movements   *ecs.ComponentStorage[components.Movement]
	stats       *ecs.ComponentStorage[components.Stats]
	threatLists *ecs.ComponentStorage[components.ThreatList]

	defaultTickInterval float64
	lastTickUpdateCount uint32
}

// NewAISystem wires an AISystem to the component storages it reads and
// writes. defaultTickInterval falls back to components.DefaultAITickInterval
// when <= 0.
func NewAISystem(
	brains *ecs.ComponentStorage[components.AIBrain],
	transforms *ecs.ComponentStorage[components.Transform],
	movements *ecs.ComponentStorage[components.Movement],
	stats *ecs.ComponentStorage[components.Stats],
	threatLists *ecs.ComponentStorage[components.ThreatList],
	defaultTickInterval float64,
) *AISystem {
	if defaultTickInterval <= 0 {
		defaultTickInterval = components.DefaultAITickInterval
	}
	return &AISystem{
		brains:              brains,
		transforms:          transforms,
		movements:           movements,
		stats:               stats,
		threatLists:         threatLists,
		defaultTickInterval: defaultTickInterval,
	}
}

// Stage reports Update.
func (s *AISystem) Stage() ecs.Stage { return ecs.Update }

// Name identifies this system for scheduler diagnostics.
func (s *AISystem) Name() string { return "AISystem" }

// Execute advances the throttling timer for every brain and ticks the
// behavior tree of any brain whose interval has elapsed.
func (s *AISystem) Execute(deltaTime float64) {
	var updateCount uint32

	for i := 0; i < s.brains.Size(); i++ {
		id := s.brains.EntityAt(i)
		entity := ecs.NewEntity(id, 0)
		brain := s.brains.Get(entity)

		if brain.State == components.AIDead {
			continue
		}
		if brain.BehaviorTree == nil {
			continue
		}

		brain.TimeSinceLastTick += deltaTime

		interval := s.defaultTickInterval
		if brain.TickInterval > 0 {
			interval = brain.TickInterval
		}

		if brain.TimeSinceLastTick < interval {
			continue
		}

		if brain.Blackboard == nil {
			brain.Blackboard = behaviortree.NewBlackboard()
		}

		ctx := &behaviortree.Context{
			Entity:     entity,
			DeltaTime:  brain.TimeSinceLastTick,
			Blackboard: brain.Blackboard,
		}

		brain.BehaviorTree.Tick(ctx)
		brain.TimeSinceLastTick = 0
		updateCount++
	}

	s.lastTickUpdateCount = updateCount
}

// SetDefaultTickInterval overrides the system-wide default used by
// brains whose own TickInterval is unset. Non-positive values are
// ignored.
func (s *AISystem) SetDefaultTickInterval(interval float64) {
	if interval > 0 {
		s.defaultTickInterval = interval
	}
}

// DefaultTickInterval returns the system-wide default tick interval.
func (s *AISystem) DefaultTickInterval() float64 { return s.defaultTickInterval }

// GetLastTickUpdateCount returns how many brains actually ticked their
// behavior tree on the most recent Execute call.
func (s *AISystem) GetLastTickUpdateCount() uint32 { return s.lastTickUpdateCount }

// CreateMoveToTask returns an Action that steers the entity toward the
// blackboard's "move_target" position, succeeding on arrival.
func (s *AISystem) CreateMoveToTask() behaviortree.Node {
	return &behaviortree.Action{Fn: func(ctx *behaviortree.Context) behaviortree.Status {
		target, ok := behaviortree.Get[mathutil.Vector3](ctx.Blackboard, "move_target")
		if !ok {
			return behaviortree.Failure
		}
		if !s.transforms.Has(ctx.Entity) || !s.movements.Has(ctx.Entity) {
			return behaviortree.Failure
		}

		transform := s.transforms.Get(ctx.Entity)
		movement := s.movements.Get(ctx.Entity)

		diff := target.Sub(transform.Position)
		distSq := diff.X*diff.X + diff.Z*diff.Z

		if distSq <= components.MoveToArrivalDistance*components.MoveToArrivalDistance {
			movement.State = components.MovementIdle
			movement.Direction = mathutil.ZeroVector3
			return behaviortree.Success
		}

		movement.Direction = diff.Normalized()
		movement.State = components.MovementRunning
		return behaviortree.Running
	}}
}

// CreateAttackTask returns an Action that reports success when the
// blackboard's "target" is alive and within melee range. It never
// applies damage itself — that's CombatSystem's job via DamageEvent.
func (s *AISystem) CreateAttackTask() behaviortree.Node {
	return &behaviortree.Action{Fn: func(ctx *behaviortree.Context) behaviortree.Status {
		target, ok := behaviortree.Get[ecs.Entity](ctx.Blackboard, "target")
		if !ok || !target.IsValid() {
			return behaviortree.Failure
		}
		if !s.transforms.Has(ctx.Entity) || !s.transforms.Has(target) {
			return behaviortree.Failure
		}
		if s.stats.Has(target) && s.stats.Get(target).Health <= 0 {
			return behaviortree.Failure
		}

		attackerPos := s.transforms.Get(ctx.Entity).Position
		targetPos := s.transforms.Get(target).Position

		diff := targetPos.Sub(attackerPos)
		distSq := diff.X*diff.X + diff.Z*diff.Z

		if distSq > components.DefaultAttackRange*components.DefaultAttackRange {
			return behaviortree.Failure
		}
		return behaviortree.Success
	}}
}

// CreatePatrolTask returns an Action that walks the entity between the
// blackboard's "waypoints", advancing "patrol_index" on arrival at each.
func (s *AISystem) CreatePatrolTask() behaviortree.Node {
	return &behaviortree.Action{Fn: func(ctx *behaviortree.Context) behaviortree.Status {
		waypoints, ok := behaviortree.Get[[]mathutil.Vector3](ctx.Blackboard, "waypoints")
		if !ok || len(waypoints) == 0 {
			return behaviortree.Failure
		}

		index, _ := behaviortree.Get[int](ctx.Blackboard, "patrol_index")
		if index < 0 || index >= len(waypoints) {
			index = 0
		}

		if !s.transforms.Has(ctx.Entity) || !s.movements.Has(ctx.Entity) {
			return behaviortree.Failure
		}

		transform := s.transforms.Get(ctx.Entity)
		movement := s.movements.Get(ctx.Entity)

		target := waypoints[index]
		diff := target.Sub(transform.Position)
		distSq := diff.X*diff.X + diff.Z*diff.Z

		if distSq <= components.MoveToArrivalDistance*components.MoveToArrivalDistance {
			index = (index + 1) % len(waypoints)
			behaviortree.Set(ctx.Blackboard, "patrol_index", index)
			return behaviortree.Running
		}

		movement.Direction = diff.Normalized()
		movement.State = components.MovementWalking
		return behaviortree.Running
	}}
}

// CreateFleeTask returns an Action that runs the entity away from its
// threat list's top entry, succeeding once far enough away.
func (s *AISystem) CreateFleeTask() behaviortree.Node {
	return &behaviortree.Action{Fn: func(ctx *behaviortree.Context) behaviortree.Status {
		if !s.transforms.Has(ctx.Entity) || !s.movements.Has(ctx.Entity) {
			return behaviortree.Failure
		}

		threatSource := ecs.InvalidEntity
		if s.threatLists.Has(ctx.Entity) {
			threatSource = s.threatLists.Get(ctx.Entity).GetTopThreat()
		}

		if !threatSource.IsValid() || !s.transforms.Has(threatSource) {
			return behaviortree.Failure
		}

		entityPos := s.transforms.Get(ctx.Entity).Position
		threatPos := s.transforms.Get(threatSource).Position

		awayDir := entityPos.Sub(threatPos)
		distSq := awayDir.X*awayDir.X + awayDir.Z*awayDir.Z

		movement := s.movements.Get(ctx.Entity)
		if distSq >= components.DefaultFleeDistance*components.DefaultFleeDistance {
			movement.State = components.MovementIdle
			movement.Direction = mathutil.ZeroVector3
			return behaviortree.Success
		}

		movement.Direction = awayDir.Normalized()
		movement.State = components.MovementRunning
		return behaviortree.Running
	}}
}

// CreateIdleTask returns an Action that halts movement and always
// succeeds.
func (s *AISystem) CreateIdleTask() behaviortree.Node {
	return &behaviortree.Action{Fn: func(ctx *behaviortree.Context) behaviortree.Status {
		if !s.movements.Has(ctx.Entity) {
			return behaviortree.Success
		}
		movement := s.movements.Get(ctx.Entity)
		movement.State = components.MovementIdle
		movement.Direction = mathutil.ZeroVector3
		return behaviortree.Success
	}}
}
