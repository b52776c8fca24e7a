package components

import "github.com/kcenon/common-game-server-sub000/internal/ecs"

// MaxActiveQuests bounds a QuestLog's in-progress quest list.
const MaxActiveQuests = 25

// MaxObjectivesPerQuest bounds a quest's objective list.
const MaxObjectivesPerQuest = 8

// QuestState is a quest instance's progression state.
//
// Available -> Accepted -> ObjectivesComplete -> TurnedIn
//                       \-> Failed (expired/abandoned)
type QuestState uint8

const (
	QuestAvailable QuestState = iota
	QuestAccepted
	QuestObjectivesComplete
	QuestTurnedIn
	QuestFailed
)

// ObjectiveType classifies a quest objective.
type ObjectiveType uint8

const (
	ObjectiveKill ObjectiveType = iota
	ObjectiveCollect
	ObjectiveExplore
	ObjectiveInteract
	ObjectiveEscort
	ObjectiveCustom
)

// QuestFlags is a bitfield of quest properties.
type QuestFlags uint16

const (
	QuestFlagNone       QuestFlags = 0
	QuestFlagRepeatable QuestFlags = 1 << 0
	QuestFlagDaily      QuestFlags = 1 << 1
	QuestFlagWeekly     QuestFlags = 1 << 2
	QuestFlagShareable  QuestFlags = 1 << 3
	QuestFlagAutoAccept QuestFlags = 1 << 4
	QuestFlagTimed      QuestFlags = 1 << 5
)

// Has reports whether flag is set within f.
func (f QuestFlags) Has(flag QuestFlags) bool { return f&flag != 0 }

// QuestEventType classifies an incoming QuestEvent.
type QuestEventType uint8

const (
	QuestEventKill QuestEventType = iota
	QuestEventCollect
	QuestEventExplore
	QuestEventInteract
)

// QuestObjective is a single objective within a quest. Script is only
// meaningful when Type is ObjectiveCustom: it's a JS predicate body
// evaluated by internal/scripting as `function complete(progress, event)`.
type QuestObjective struct {
	Type      ObjectiveType
	TargetID  uint32
	Current   int32
	Required  int32
	Completed bool
	Script    string
}

// AddProgress raises Current by amount, clamped to Required, and marks
// the objective Completed once the requirement is met. A no-op on an
// already-completed objective.
func (o *QuestObjective) AddProgress(amount int32) {
	if o.Completed {
		return
	}
	o.Current += amount
	if o.Current > o.Required {
		o.Current = o.Required
	}
	if o.Current >= o.Required {
		o.Completed = true
	}
}

// IsComplete reports whether the objective is fulfilled.
func (o *QuestObjective) IsComplete() bool {
	return o.Completed || o.Current >= o.Required
}

// QuestReward is granted on turn-in.
type QuestReward struct {
	Experience int64
	Currency   int64
	Items      []ItemStack
}

// ItemStack pairs an item ID with a quantity.
type ItemStack struct {
	ItemID uint32
	Count  uint32
}

// QuestTemplate is static, shared quest definition data.
type QuestTemplate struct {
	ID              uint32
	Name            string
	Description     string
	Level           uint32
	Prerequisites   []uint32
	ChainNext       *uint32
	Objectives      []QuestObjective
	Rewards         QuestReward
	Flags           QuestFlags
	TimeLimitSeconds float64
}

// QuestEntry is a single active quest instance on a player.
type QuestEntry struct {
	QuestID     uint32
	TemplateID  uint32
	State       QuestState
	Objectives  []QuestObjective
	ElapsedTime float64
	TimeLimit   float64
}

// AllObjectivesComplete reports whether every objective is fulfilled.
func (e *QuestEntry) AllObjectivesComplete() bool {
	for i := range e.Objectives {
		if !e.Objectives[i].IsComplete() {
			return false
		}
	}
	return true
}

// UpdateObjective advances progress on every matching, incomplete
// objective and transitions the quest to ObjectivesComplete once all
// objectives are fulfilled. Returns whether any objective was updated.
func (e *QuestEntry) UpdateObjective(objType ObjectiveType, targetID uint32, amount int32) bool {
	if e.State != QuestAccepted {
		return false
	}
	var updated bool
	for i := range e.Objectives {
		obj := &e.Objectives[i]
		if obj.Type == objType && obj.TargetID == targetID && !obj.Completed {
			obj.AddProgress(amount)
			updated = true
		}
	}
	if updated && e.AllObjectivesComplete() {
		e.State = QuestObjectivesComplete
	}
	return updated
}

// QuestLog is a player's quest tracking component: active quests plus a
// set of completed quest IDs for prerequisite checks and chain unlocks.
type QuestLog struct {
	ActiveQuests     []QuestEntry
	CompletedQuestIDs map[uint32]struct{}
	MaxActiveQuests  uint32
}

// Accept adds a quest from tmpl if capacity, prerequisites, and repeat
// rules all allow it.
func (l *QuestLog) Accept(tmpl QuestTemplate) bool {
	max := l.MaxActiveQuests
	if max == 0 {
		max = MaxActiveQuests
	}
	if uint32(len(l.ActiveQuests)) >= max {
		return false
	}
	if !l.CanAccept(tmpl) {
		return false
	}

	entry := QuestEntry{
		QuestID:    tmpl.ID,
		TemplateID: tmpl.ID,
		State:      QuestAccepted,
		Objectives: append([]QuestObjective(nil), tmpl.Objectives...),
		TimeLimit:  tmpl.TimeLimitSeconds,
	}
	l.ActiveQuests = append(l.ActiveQuests, entry)
	return true
}

// Abandon removes questID from the active list. Returns whether it was
// found.
func (l *QuestLog) Abandon(questID uint32) bool {
	for i := range l.ActiveQuests {
		if l.ActiveQuests[i].QuestID == questID {
			l.ActiveQuests = append(l.ActiveQuests[:i], l.ActiveQuests[i+1:]...)
			return true
		}
	}
	return false
}

// TurnIn completes questID, recording it as completed. Returns false if
// the quest isn't active or its objectives aren't yet complete.
func (l *QuestLog) TurnIn(questID uint32) bool {
	entry := l.GetQuest(questID)
	if entry == nil || entry.State != QuestObjectivesComplete {
		return false
	}
	entry.State = QuestTurnedIn
	if l.CompletedQuestIDs == nil {
		l.CompletedQuestIDs = make(map[uint32]struct{})
	}
	l.CompletedQuestIDs[questID] = struct{}{}
	return true
}

// GetQuest returns a pointer to the active entry for questID, or nil.
func (l *QuestLog) GetQuest(questID uint32) *QuestEntry {
	for i := range l.ActiveQuests {
		if l.ActiveQuests[i].QuestID == questID {
			return &l.ActiveQuests[i]
		}
	}
	return nil
}

// HasQuest reports whether questID is currently active.
func (l *QuestLog) HasQuest(questID uint32) bool {
	return l.GetQuest(questID) != nil
}

// IsCompleted reports whether questID has ever been turned in.
func (l *QuestLog) IsCompleted(questID uint32) bool {
	_, ok := l.CompletedQuestIDs[questID]
	return ok
}

// CanAccept reports whether every prerequisite and repeat rule for tmpl
// is satisfied.
func (l *QuestLog) CanAccept(tmpl QuestTemplate) bool {
	if l.HasQuest(tmpl.ID) {
		return false
	}
	if l.IsCompleted(tmpl.ID) && !tmpl.Flags.Has(QuestFlagRepeatable) {
		return false
	}
	for _, prereq := range tmpl.Prerequisites {
		if !l.IsCompleted(prereq) {
			return false
		}
	}
	return true
}

// CleanupFinished drops turned-in and failed quests from the active list.
func (l *QuestLog) CleanupFinished() {
	kept := l.ActiveQuests[:0]
	for _, e := range l.ActiveQuests {
		if e.State == QuestTurnedIn || e.State == QuestFailed {
			continue
		}
		kept = append(kept, e)
	}
	l.ActiveQuests = kept
}

// QuestEvent notifies QuestSystem of a kill/collect/explore/interact
// occurrence to apply toward objective progress. Mirrors DamageEvent's
// inter-system notification pattern.
type QuestEvent struct {
	Player    ecs.Entity
	Type      QuestEventType
	TargetID  uint32
	Count     int32
	Processed bool
}
