package systems

import (
	"testing"

	"github.com/kcenon/common-game-server-sub000/internal/components"
	"github.com/kcenon/common-game-server-sub000/internal/ecs"
)

type inventoryFixture struct {
	registry       *ecs.Registry
	inventories    *ecs.ComponentStorage[components.Inventory]
	equipment      *ecs.ComponentStorage[components.Equipment]
	durabilityEvts *ecs.ComponentStorage[components.DurabilityEvent]
	system         *InventorySystem
}

func newInventoryFixture() *inventoryFixture {
	f := &inventoryFixture{
		registry:       ecs.NewRegistry(),
		inventories:    ecs.NewComponentStorage[components.Inventory](),
		equipment:      ecs.NewComponentStorage[components.Equipment](),
		durabilityEvts: ecs.NewComponentStorage[components.DurabilityEvent](),
	}
	f.registry.RegisterStorage(f.inventories)
	f.registry.RegisterStorage(f.equipment)
	f.registry.RegisterStorage(f.durabilityEvts)
	f.system = NewInventorySystem(f.inventories, f.equipment, f.durabilityEvts)
	return f
}

func TestRegisterTemplateReplacesExistingID(t *testing.T) {
	f := newInventoryFixture()
	f.system.RegisterTemplate(components.ItemTemplate{ID: 1, Name: "Sword"})
	f.system.RegisterTemplate(components.ItemTemplate{ID: 1, Name: "Sharper Sword"})

	got, ok := f.system.GetTemplate(1)
	if !ok || got.Name != "Sharper Sword" {
		t.Fatalf("GetTemplate = %+v,%v, want Sharper Sword", got, ok)
	}
	if len(f.system.Templates()) != 1 {
		t.Fatalf("Templates() = %v, want 1 entry", f.system.Templates())
	}
}

func TestAddItemStacksBeforeFillingNewSlots(t *testing.T) {
	inv := components.Inventory{Capacity: 2}
	tmpl := components.ItemTemplate{ID: 5, MaxStackSize: 10}

	added := inv.AddItem(tmpl, 4)
	if added != 4 {
		t.Fatalf("AddItem = %d, want 4", added)
	}
	added = inv.AddItem(tmpl, 10)
	if added != 10 {
		t.Fatalf("second AddItem = %d, want 10 (6 stack + 4 new slot)", added)
	}
	if inv.CountItem(5) != 14 {
		t.Fatalf("CountItem = %d, want 14", inv.CountItem(5))
	}
}

func TestAddItemReturnsPartialWhenFull(t *testing.T) {
	inv := components.Inventory{Capacity: 1}
	tmpl := components.ItemTemplate{ID: 1, MaxStackSize: 5}
	inv.AddItem(tmpl, 5)

	got := inv.AddItem(components.ItemTemplate{ID: 2, MaxStackSize: 5}, 3)
	if got != 0 {
		t.Fatalf("AddItem into full inventory = %d, want 0", got)
	}
}

func TestExecuteReducesEquippedSlotDurability(t *testing.T) {
	f := newInventoryFixture()
	player := f.registry.Create()
	equip := components.Equipment{}
	equip.Equip(components.EquipChest, components.InventorySlot{ItemID: 9, Durability: 10, MaxDurability: 10})
	f.equipment.Add(player, equip)
	f.durabilityEvts.Add(player, components.DurabilityEvent{Player: player, Slot: components.EquipChest, Amount: 4})

	f.system.Execute(0.016)

	slot := f.equipment.Get(player).GetEquipped(components.EquipChest)
	if slot.Durability != 6 {
		t.Fatalf("Durability = %d, want 6", slot.Durability)
	}
	if !f.durabilityEvts.Get(player).Processed {
		t.Fatal("expected durability event marked processed")
	}
}

func TestExecuteRemovesExpiredEnchantsFromEquipment(t *testing.T) {
	f := newInventoryFixture()
	player := f.registry.Create()
	remaining := 0.5
	equip := components.Equipment{}
	slot := components.InventorySlot{ItemID: 9, Enchants: []components.Enchant{{EnchantID: 1, DurationRemaining: &remaining}}}
	equip.Equip(components.EquipMainHand, slot)
	f.equipment.Add(player, equip)

	f.system.Execute(1.0)

	got := f.equipment.Get(player).GetEquipped(components.EquipMainHand)
	if len(got.Enchants) != 0 {
		t.Fatalf("Enchants = %v, want empty after expiry", got.Enchants)
	}
}

func TestEquipmentCalculateStatBonusesSkipsBrokenItems(t *testing.T) {
	equip := components.Equipment{}
	equip.Equip(components.EquipHead, components.InventorySlot{ItemID: 1, Durability: 0, MaxDurability: 10})
	equip.Equip(components.EquipChest, components.InventorySlot{ItemID: 2, Durability: 5, MaxDurability: 10})

	templates := map[uint32]components.ItemTemplate{
		1: {ID: 1, StatBonuses: components.StatBonuses{Armor: 100}},
		2: {ID: 2, StatBonuses: components.StatBonuses{Armor: 20}},
	}
	bonuses := equip.CalculateStatBonuses(func(id uint32) (components.ItemTemplate, bool) {
		t, ok := templates[id]
		return t, ok
	})
	if bonuses.Armor != 20 {
		t.Fatalf("Armor = %d, want 20 (broken head excluded)", bonuses.Armor)
	}
}
