package systems

import (
	"github.com/kcenon/common-game-server-sub000/internal/components"
	"github.com/kcenon/common-game-server-sub000/internal/ecs"
)

// InventorySystem processes equipment durability loss and enchant
// expiry each tick. It runs in PostUpdate so that DurabilityEvents
// added during Update are visible the same tick.
type InventorySystem struct {
	inventories       *ecs.ComponentStorage[components.Inventory]
	equipment         *ecs.ComponentStorage[components.Equipment]
	durabilityEvts    *ecs.ComponentStorage[components.DurabilityEvent]
	templates         []components.ItemTemplate
}

// NewInventorySystem wires an InventorySystem to the component storages
// it reads and writes.
func NewInventorySystem(
	inventories *ecs.ComponentStorage[components.Inventory],
	equipment *ecs.ComponentStorage[components.Equipment],
	durabilityEvts *ecs.ComponentStorage[components.DurabilityEvent],
) *InventorySystem {
	return &InventorySystem{
		inventories:    inventories,
		equipment:      equipment,
		durabilityEvts: durabilityEvts,
	}
}

// Stage reports PostUpdate.
func (s *InventorySystem) Stage() ecs.Stage { return ecs.PostUpdate }

// Name identifies this system for scheduler diagnostics.
func (s *InventorySystem) Name() string { return "InventorySystem" }

// Execute processes durability events, then ticks enchant durations.
func (s *InventorySystem) Execute(deltaTime float64) {
	s.processDurabilityEvents()
	s.updateEnchants(deltaTime)
}

// RegisterTemplate adds or replaces a template keyed by its ID.
func (s *InventorySystem) RegisterTemplate(tmpl components.ItemTemplate) {
	for i := range s.templates {
		if s.templates[i].ID == tmpl.ID {
			s.templates[i] = tmpl
			return
		}
	}
	s.templates = append(s.templates, tmpl)
}

// GetTemplate looks up a registered template by ID.
func (s *InventorySystem) GetTemplate(templateID uint32) (components.ItemTemplate, bool) {
	for _, t := range s.templates {
		if t.ID == templateID {
			return t, true
		}
	}
	return components.ItemTemplate{}, false
}

// Templates returns every registered template, for stat-bonus
// calculation by Equipment.CalculateStatBonuses.
func (s *InventorySystem) Templates() []components.ItemTemplate {
	return s.templates
}

func (s *InventorySystem) processDurabilityEvents() {
	for i := 0; i < s.durabilityEvts.Size(); i++ {
		id := s.durabilityEvts.EntityAt(i)
		event := s.durabilityEvts.Get(ecs.NewEntity(id, 0))
		if event.Processed {
			continue
		}

		if s.equipment.Has(event.Player) {
			equip := s.equipment.Get(event.Player)
			slotIdx := int(event.Slot)
			if slotIdx < components.EquipSlotCount {
				equip.Slots[slotIdx].ReduceDurability(event.Amount)
			}
		}

		event.Processed = true
	}
}

func (s *InventorySystem) updateEnchants(deltaTime float64) {
	for i := 0; i < s.equipment.Size(); i++ {
		id := s.equipment.EntityAt(i)
		equip := s.equipment.Get(ecs.NewEntity(id, 0))
		for slotIdx := range equip.Slots {
			slot := &equip.Slots[slotIdx]
			if slot.IsEmpty() {
				continue
			}
			tickEnchants(slot, deltaTime)
		}
	}

	for i := 0; i < s.inventories.Size(); i++ {
		id := s.inventories.EntityAt(i)
		inv := s.inventories.Get(ecs.NewEntity(id, 0))
		for slotIdx := range inv.Slots {
			slot := &inv.Slots[slotIdx]
			if slot.IsEmpty() {
				continue
			}
			tickEnchants(slot, deltaTime)
		}
	}
}

func tickEnchants(slot *components.InventorySlot, deltaTime float64) {
	for i := range slot.Enchants {
		if slot.Enchants[i].DurationRemaining != nil {
			*slot.Enchants[i].DurationRemaining -= deltaTime
		}
	}
	slot.RemoveExpiredEnchants()
}
