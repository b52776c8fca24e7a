package components

import (
	"github.com/kcenon/common-game-server-sub000/internal/behaviortree"
	"github.com/kcenon/common-game-server-sub000/internal/ecs"
	"github.com/kcenon/common-game-server-sub000/internal/mathutil"
)

// MaxPatrolWaypoints bounds a patrol path's waypoint list.
const MaxPatrolWaypoints = 32

// DefaultAITickInterval is the throttled AI update interval in seconds
// used when a brain's own TickInterval is unset.
const DefaultAITickInterval = 0.1

// MoveToArrivalDistance is the distance threshold for MoveTo/Patrol
// completion, in world units.
const MoveToArrivalDistance = 1.0

// DefaultFleeDistance is how far an entity runs from a threat source
// before the Flee task reports success.
const DefaultFleeDistance = 20.0

// DefaultAttackRange is the melee range the Attack task checks against.
const DefaultAttackRange = 3.0

// AIState is the AIBrain's high-level behavior classification.
type AIState uint8

const (
	AIIdle AIState = iota
	AIPatrolling
	AIChasing
	AIAttacking
	AIFleeing
	AIDead
)

// AIBrain drives one entity's behavior tree. BehaviorTree is typically
// shared across every entity of the same archetype (e.g. "wolf"); the
// remaining fields are per-entity instance state.
type AIBrain struct {
	BehaviorTree      behaviortree.Node
	Blackboard        *behaviortree.Blackboard
	State             AIState
	TimeSinceLastTick float64
	TickInterval      float64 // <= 0 means use the system default
	HomePosition      mathutil.Vector3
	Target            ecs.Entity
}

// NewAIBrain returns an AIBrain with an initialized blackboard, ready to
// have its BehaviorTree assigned.
func NewAIBrain(tree behaviortree.Node) AIBrain {
	return AIBrain{BehaviorTree: tree, Blackboard: behaviortree.NewBlackboard()}
}
