package systems

import (
	"testing"

	"github.com/kcenon/common-game-server-sub000/internal/behaviortree"
	"github.com/kcenon/common-game-server-sub000/internal/components"
	"github.com/kcenon/common-game-server-sub000/internal/ecs"
	"github.com/kcenon/common-game-server-sub000/internal/mathutil"
)

type aiFixture struct {
	registry    *ecs.Registry
	brains      *ecs.ComponentStorage[components.AIBrain]
	transforms  *ecs.ComponentStorage[components.Transform]
	movements   *ecs.ComponentStorage[components.Movement]
	stats       *ecs.ComponentStorage[components.Stats]
	threatLists *ecs.ComponentStorage[components.ThreatList]
	system      *AISystem
}

func newAIFixture(defaultInterval float64) *aiFixture {
	f := &aiFixture{
		registry:    ecs.NewRegistry(),
		brains:      ecs.NewComponentStorage[components.AIBrain](),
		transforms:  ecs.NewComponentStorage[components.Transform](),
		movements:   ecs.NewComponentStorage[components.Movement](),
		stats:       ecs.NewComponentStorage[components.Stats](),
		threatLists: ecs.NewComponentStorage[components.ThreatList](),
	}
	f.registry.RegisterStorage(f.brains)
	f.registry.RegisterStorage(f.transforms)
	f.registry.RegisterStorage(f.movements)
	f.registry.RegisterStorage(f.stats)
	f.registry.RegisterStorage(f.threatLists)
	f.system = NewAISystem(f.brains, f.transforms, f.movements, f.stats, f.threatLists, defaultInterval)
	return f
}

func TestExecuteThrottlesTicksByDefaultInterval(t *testing.T) {
	f := newAIFixture(1.0)
	entity := f.registry.Create()
	tree := &behaviortree.Action{Fn: func(ctx *behaviortree.Context) behaviortree.Status { return behaviortree.Success }}
	f.brains.Add(entity, components.NewAIBrain(tree))

	f.system.Execute(0.4)
	if f.system.GetLastTickUpdateCount() != 0 {
		t.Fatal("expected no tick before interval elapses")
	}

	f.system.Execute(0.7)
	if f.system.GetLastTickUpdateCount() != 1 {
		t.Fatalf("GetLastTickUpdateCount = %d, want 1", f.system.GetLastTickUpdateCount())
	}
	if f.brains.Get(entity).TimeSinceLastTick != 0 {
		t.Fatal("expected timer reset after a tick")
	}
}

func TestExecuteSkipsDeadBrains(t *testing.T) {
	f := newAIFixture(0.1)
	entity := f.registry.Create()
	tree := &behaviortree.Action{Fn: func(ctx *behaviortree.Context) behaviortree.Status { return behaviortree.Success }}
	brain := components.NewAIBrain(tree)
	brain.State = components.AIDead
	f.brains.Add(entity, brain)

	f.system.Execute(1.0)
	if f.system.GetLastTickUpdateCount() != 0 {
		t.Fatal("expected dead brain to be skipped")
	}
}

func TestExecutePerEntityTickIntervalOverridesDefault(t *testing.T) {
	f := newAIFixture(10.0)
	entity := f.registry.Create()
	tree := &behaviortree.Action{Fn: func(ctx *behaviortree.Context) behaviortree.Status { return behaviortree.Success }}
	brain := components.NewAIBrain(tree)
	brain.TickInterval = 0.2
	f.brains.Add(entity, brain)

	f.system.Execute(0.3)
	if f.system.GetLastTickUpdateCount() != 1 {
		t.Fatal("expected brain's own tick interval to override the system default")
	}
}

func TestMoveToTaskReturnsSuccessOnArrival(t *testing.T) {
	f := newAIFixture(0.1)
	entity := f.registry.Create()
	f.transforms.Add(entity, components.NewTransform(mathutil.Vector3{}))
	f.movements.Add(entity, components.Movement{})

	task := f.system.CreateMoveToTask()
	bb := behaviortree.NewBlackboard()
	behaviortree.Set(bb, "move_target", mathutil.Vector3{X: 0.1})

	got := task.Tick(&behaviortree.Context{Entity: entity, Blackboard: bb})
	if got != behaviortree.Success {
		t.Fatalf("Tick = %v, want Success within arrival distance", got)
	}
	if f.movements.Get(entity).State != components.MovementIdle {
		t.Fatal("expected movement state Idle on arrival")
	}
}

func TestMoveToTaskRunsTowardDistantTarget(t *testing.T) {
	f := newAIFixture(0.1)
	entity := f.registry.Create()
	f.transforms.Add(entity, components.NewTransform(mathutil.Vector3{}))
	f.movements.Add(entity, components.Movement{})

	task := f.system.CreateMoveToTask()
	bb := behaviortree.NewBlackboard()
	behaviortree.Set(bb, "move_target", mathutil.Vector3{X: 50})

	got := task.Tick(&behaviortree.Context{Entity: entity, Blackboard: bb})
	if got != behaviortree.Running {
		t.Fatalf("Tick = %v, want Running", got)
	}
	if f.movements.Get(entity).Direction.X <= 0 {
		t.Fatal("expected movement direction pointed toward +X target")
	}
}

func TestMoveToTaskFailsWithoutBlackboardTarget(t *testing.T) {
	f := newAIFixture(0.1)
	entity := f.registry.Create()
	f.transforms.Add(entity, components.NewTransform(mathutil.Vector3{}))
	f.movements.Add(entity, components.Movement{})

	task := f.system.CreateMoveToTask()
	got := task.Tick(&behaviortree.Context{Entity: entity, Blackboard: behaviortree.NewBlackboard()})
	if got != behaviortree.Failure {
		t.Fatalf("Tick = %v, want Failure", got)
	}
}

func TestAttackTaskFailsWhenTargetOutOfRange(t *testing.T) {
	f := newAIFixture(0.1)
	attacker := f.registry.Create()
	target := f.registry.Create()
	f.transforms.Add(attacker, components.NewTransform(mathutil.Vector3{}))
	f.transforms.Add(target, components.NewTransform(mathutil.Vector3{X: 100}))

	task := f.system.CreateAttackTask()
	bb := behaviortree.NewBlackboard()
	behaviortree.Set(bb, "target", target)

	got := task.Tick(&behaviortree.Context{Entity: attacker, Blackboard: bb})
	if got != behaviortree.Failure {
		t.Fatalf("Tick = %v, want Failure out of range", got)
	}
}

func TestAttackTaskSucceedsInRangeAgainstLivingTarget(t *testing.T) {
	f := newAIFixture(0.1)
	attacker := f.registry.Create()
	target := f.registry.Create()
	f.transforms.Add(attacker, components.NewTransform(mathutil.Vector3{}))
	f.transforms.Add(target, components.NewTransform(mathutil.Vector3{X: 1}))
	f.stats.Add(target, components.Stats{Health: 10, MaxHealth: 10})

	task := f.system.CreateAttackTask()
	bb := behaviortree.NewBlackboard()
	behaviortree.Set(bb, "target", target)

	got := task.Tick(&behaviortree.Context{Entity: attacker, Blackboard: bb})
	if got != behaviortree.Success {
		t.Fatalf("Tick = %v, want Success", got)
	}
}

func TestAttackTaskFailsAgainstDeadTarget(t *testing.T) {
	f := newAIFixture(0.1)
	attacker := f.registry.Create()
	target := f.registry.Create()
	f.transforms.Add(attacker, components.NewTransform(mathutil.Vector3{}))
	f.transforms.Add(target, components.NewTransform(mathutil.Vector3{X: 1}))
	f.stats.Add(target, components.Stats{Health: 0, MaxHealth: 10})

	task := f.system.CreateAttackTask()
	bb := behaviortree.NewBlackboard()
	behaviortree.Set(bb, "target", target)

	got := task.Tick(&behaviortree.Context{Entity: attacker, Blackboard: bb})
	if got != behaviortree.Failure {
		t.Fatalf("Tick = %v, want Failure against dead target", got)
	}
}

func TestPatrolTaskAdvancesWaypointIndexOnArrival(t *testing.T) {
	f := newAIFixture(0.1)
	entity := f.registry.Create()
	f.transforms.Add(entity, components.NewTransform(mathutil.Vector3{}))
	f.movements.Add(entity, components.Movement{})

	task := f.system.CreatePatrolTask()
	bb := behaviortree.NewBlackboard()
	behaviortree.Set(bb, "waypoints", []mathutil.Vector3{{X: 0.1}, {X: 50}})

	got := task.Tick(&behaviortree.Context{Entity: entity, Blackboard: bb})
	if got != behaviortree.Running {
		t.Fatalf("Tick = %v, want Running", got)
	}
	index, _ := behaviortree.Get[int](bb, "patrol_index")
	if index != 1 {
		t.Fatalf("patrol_index = %d, want 1 after arriving at waypoint 0", index)
	}
}

func TestFleeTaskSucceedsOnceFarEnoughAway(t *testing.T) {
	f := newAIFixture(0.1)
	entity := f.registry.Create()
	threat := f.registry.Create()
	f.transforms.Add(entity, components.NewTransform(mathutil.Vector3{X: 100}))
	f.transforms.Add(threat, components.NewTransform(mathutil.Vector3{}))
	f.movements.Add(entity, components.Movement{})
	threatList := components.ThreatList{}
	threatList.AddThreat(threat, 50)
	f.threatLists.Add(entity, threatList)

	task := f.system.CreateFleeTask()
	got := task.Tick(&behaviortree.Context{Entity: entity, Blackboard: behaviortree.NewBlackboard()})
	if got != behaviortree.Success {
		t.Fatalf("Tick = %v, want Success", got)
	}
}

func TestFleeTaskRunsAwayWhenTooClose(t *testing.T) {
	f := newAIFixture(0.1)
	entity := f.registry.Create()
	threat := f.registry.Create()
	f.transforms.Add(entity, components.NewTransform(mathutil.Vector3{X: 1}))
	f.transforms.Add(threat, components.NewTransform(mathutil.Vector3{}))
	f.movements.Add(entity, components.Movement{})
	threatList := components.ThreatList{}
	threatList.AddThreat(threat, 50)
	f.threatLists.Add(entity, threatList)

	task := f.system.CreateFleeTask()
	got := task.Tick(&behaviortree.Context{Entity: entity, Blackboard: behaviortree.NewBlackboard()})
	if got != behaviortree.Running {
		t.Fatalf("Tick = %v, want Running", got)
	}
	if f.movements.Get(entity).Direction.X <= 0 {
		t.Fatal("expected direction pointed away from threat at origin")
	}
}

func TestIdleTaskHaltsMovementAndSucceeds(t *testing.T) {
	f := newAIFixture(0.1)
	entity := f.registry.Create()
	f.movements.Add(entity, components.Movement{State: components.MovementRunning, Direction: mathutil.Vector3{X: 1}})

	task := f.system.CreateIdleTask()
	got := task.Tick(&behaviortree.Context{Entity: entity, Blackboard: behaviortree.NewBlackboard()})
	if got != behaviortree.Success {
		t.Fatalf("Tick = %v, want Success", got)
	}
	if f.movements.Get(entity).State != components.MovementIdle {
		t.Fatal("expected movement halted to Idle")
	}
}
