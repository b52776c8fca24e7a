package systems

import (
	"github.com/kcenon/common-game-server-sub000/internal/components"
	"github.com/kcenon/common-game-server-sub000/internal/ecs"
	"github.com/kcenon/common-game-server-sub000/internal/scripting"
)

// QuestSystem processes quest timers and incoming quest events each
// tick: fails timed-out quests, then drains pending QuestEvents into
// matching objective progress. It runs in PostUpdate so that combat
// kills, zone entries, and other Update-stage events are already
// available as QuestEvents.
type QuestSystem struct {
	questLogs   *ecs.ComponentStorage[components.QuestLog]
	questEvents *ecs.ComponentStorage[components.QuestEvent]
	templates   []components.QuestTemplate
}

// NewQuestSystem wires a QuestSystem to the component storages it
// reads and writes.
func NewQuestSystem(
	questLogs *ecs.ComponentStorage[components.QuestLog],
	questEvents *ecs.ComponentStorage[components.QuestEvent],
) *QuestSystem {
	return &QuestSystem{questLogs: questLogs, questEvents: questEvents}
}

// Stage reports PostUpdate.
func (s *QuestSystem) Stage() ecs.Stage { return ecs.PostUpdate }

// Name identifies this system for scheduler diagnostics.
func (s *QuestSystem) Name() string { return "QuestSystem" }

// Execute updates timed-quest timers, then processes pending events.
func (s *QuestSystem) Execute(deltaTime float64) {
	s.updateTimers(deltaTime)
	s.processEvents()
}

// RegisterTemplate adds or replaces a template keyed by its ID.
func (s *QuestSystem) RegisterTemplate(tmpl components.QuestTemplate) {
	for i := range s.templates {
		if s.templates[i].ID == tmpl.ID {
			s.templates[i] = tmpl
			return
		}
	}
	s.templates = append(s.templates, tmpl)
}

// GetTemplate looks up a registered template by ID.
func (s *QuestSystem) GetTemplate(templateID uint32) (components.QuestTemplate, bool) {
	for _, t := range s.templates {
		if t.ID == templateID {
			return t, true
		}
	}
	return components.QuestTemplate{}, false
}

func (s *QuestSystem) updateTimers(deltaTime float64) {
	for i := 0; i < s.questLogs.Size(); i++ {
		id := s.questLogs.EntityAt(i)
		log := s.questLogs.Get(ecs.NewEntity(id, 0))

		for q := range log.ActiveQuests {
			quest := &log.ActiveQuests[q]
			if quest.State != components.QuestAccepted {
				continue
			}
			if quest.TimeLimit <= 0 {
				continue
			}

			quest.ElapsedTime += deltaTime
			if quest.ElapsedTime >= quest.TimeLimit {
				quest.State = components.QuestFailed
			}
		}
	}
}

func (s *QuestSystem) processEvents() {
	for i := 0; i < s.questEvents.Size(); i++ {
		id := s.questEvents.EntityAt(i)
		event := s.questEvents.Get(ecs.NewEntity(id, 0))
		if event.Processed {
			continue
		}

		objType, ok := objectiveTypeFor(event.Type)
		if !ok {
			event.Processed = true
			continue
		}

		if s.questLogs.Has(event.Player) {
			log := s.questLogs.Get(event.Player)
			for q := range log.ActiveQuests {
				quest := &log.ActiveQuests[q]
				quest.UpdateObjective(objType, event.TargetID, event.Count)
				s.evaluateCustomObjectives(quest, *event)
			}
		}

		event.Processed = true
	}
}

// evaluateCustomObjectives runs the scripted predicate on every
// ObjectiveCustom objective matching the event's target, completing it
// when the script reports true. A script error or false result leaves
// the objective unchanged rather than failing the whole quest.
func (s *QuestSystem) evaluateCustomObjectives(quest *components.QuestEntry, event components.QuestEvent) {
	if quest.State != components.QuestAccepted {
		return
	}
	for i := range quest.Objectives {
		obj := &quest.Objectives[i]
		if obj.Type != components.ObjectiveCustom || obj.Completed || obj.Script == "" {
			continue
		}
		if obj.TargetID != event.TargetID {
			continue
		}

		done, err := scripting.EvaluateComplete(obj.Script, scripting.Progress{
			Current:  obj.Current,
			Required: obj.Required,
			TargetID: obj.TargetID,
		}, scripting.Event{
			Type:     uint8(event.Type),
			TargetID: event.TargetID,
			Count:    event.Count,
		})
		if err != nil || !done {
			continue
		}
		obj.Completed = true
		obj.Current = obj.Required
	}
	if quest.AllObjectivesComplete() {
		quest.State = components.QuestObjectivesComplete
	}
}

func objectiveTypeFor(eventType components.QuestEventType) (components.ObjectiveType, bool) {
	switch eventType {
	case components.QuestEventKill:
		return components.ObjectiveKill, true
	case components.QuestEventCollect:
		return components.ObjectiveCollect, true
	case components.QuestEventExplore:
		return components.ObjectiveExplore, true
	case components.QuestEventInteract:
		return components.ObjectiveInteract, true
	default:
		return 0, false
	}
}
