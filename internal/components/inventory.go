package components

import "github.com/kcenon/common-game-server-sub000/internal/ecs"

// DefaultInventoryCapacity is the number of bag slots a new Inventory
// gets when Initialize is called.
const DefaultInventoryCapacity = 40

// Indestructible marks a slot's Durability/MaxDurability as never
// degrading.
const Indestructible = -1

// EquipSlot classifies an equipment slot. EquipSlotCount is a sentinel
// meaning "not equippable", never a real slot.
type EquipSlot uint8

const (
	EquipHead EquipSlot = iota
	EquipNeck
	EquipShoulders
	EquipChest
	EquipWaist
	EquipLegs
	EquipFeet
	EquipWrists
	EquipHands
	EquipFinger1
	EquipFinger2
	EquipTrinket1
	EquipTrinket2
	EquipMainHand
	EquipOffHand
	EquipRanged
	EquipTabard
	equipSlotCount
)

// EquipSlotCount is the number of real equipment slots.
const EquipSlotCount = int(equipSlotCount)

// ItemType classifies an item template.
type ItemType uint8

const (
	ItemConsumable ItemType = iota
	ItemWeapon
	ItemArmor
	ItemAccessory
	ItemMaterial
	ItemQuest
	ItemContainer
	ItemReagent
	ItemMiscellaneous
)

// ItemQuality is an item's rarity tier.
type ItemQuality uint8

const (
	QualityPoor ItemQuality = iota
	QualityCommon
	QualityUncommon
	QualityRare
	QualityEpic
	QualityLegendary
)

// StatBonuses is the additive stat contribution from an item or
// enchant. Attribute indices match Stats.Attributes.
type StatBonuses struct {
	Attributes  [MaxAttributes]int32
	Armor       int32
	AttackSpeed float64
	MinDamage   int32
	MaxDamage   int32
}

// Add returns the element-wise sum of b and other.
func (b StatBonuses) Add(other StatBonuses) StatBonuses {
	var result StatBonuses
	for i := range b.Attributes {
		result.Attributes[i] = b.Attributes[i] + other.Attributes[i]
	}
	result.Armor = b.Armor + other.Armor
	result.AttackSpeed = b.AttackSpeed + other.AttackSpeed
	result.MinDamage = b.MinDamage + other.MinDamage
	result.MaxDamage = b.MaxDamage + other.MaxDamage
	return result
}

// Enchant is an enchantment applied to an item. DurationRemaining is
// nil for a permanent enchant.
type Enchant struct {
	EnchantID         uint32
	Bonuses           StatBonuses
	DurationRemaining *float64
}

// InventorySlot is a single slot in an Inventory or Equipment. ItemID 0
// means empty.
type InventorySlot struct {
	ItemID        uint32
	Count         uint32
	Durability    int32
	MaxDurability int32
	Enchants      []Enchant
}

// IsEmpty reports whether the slot holds no item.
func (s InventorySlot) IsEmpty() bool { return s.ItemID == 0 }

// Clear resets the slot to empty.
func (s *InventorySlot) Clear() {
	*s = InventorySlot{}
}

// IsBroken reports whether the item has run out of durability without
// being indestructible.
func (s InventorySlot) IsBroken() bool {
	return s.Durability == 0 && s.MaxDurability > 0
}

// ReduceDurability lowers durability by amount, floored at 0. Returns
// true if this reduction broke the item. Indestructible or already-broken
// items are unaffected.
func (s *InventorySlot) ReduceDurability(amount int32) bool {
	if s.Durability == Indestructible || s.Durability <= 0 {
		return false
	}
	s.Durability -= amount
	if s.Durability < 0 {
		s.Durability = 0
	}
	return s.Durability == 0
}

// GetEnchantBonuses sums the stat bonuses of every enchant on this slot.
func (s InventorySlot) GetEnchantBonuses() StatBonuses {
	var total StatBonuses
	for _, e := range s.Enchants {
		total = total.Add(e.Bonuses)
	}
	return total
}

// RemoveExpiredEnchants drops every timed enchant whose
// DurationRemaining has reached zero or below.
func (s *InventorySlot) RemoveExpiredEnchants() {
	kept := s.Enchants[:0]
	for _, e := range s.Enchants {
		if e.DurationRemaining != nil && *e.DurationRemaining <= 0 {
			continue
		}
		kept = append(kept, e)
	}
	s.Enchants = kept
}

// ItemTemplate is shared, static item definition data looked up by ID.
type ItemTemplate struct {
	ID             uint32
	Name           string
	Type           ItemType
	Quality        ItemQuality
	MaxStackSize   uint32
	MaxDurability  int32
	EquipSlot      EquipSlot // equipSlotCount sentinel = not equippable
	StatBonuses    StatBonuses
	RequiredLevel  uint32
	VendorPrice    uint32
}

// IsStackable reports whether more than one of this item fits a slot.
func (t ItemTemplate) IsStackable() bool { return t.MaxStackSize > 1 }

// IsEquippable reports whether this item has a real equip slot.
func (t ItemTemplate) IsEquippable() bool { return int(t.EquipSlot) != EquipSlotCount }

// Inventory is an entity's bag-style item storage.
type Inventory struct {
	Slots    []InventorySlot
	Capacity uint32
	Currency int64
}

// Initialize (re)sizes Slots to match Capacity, discarding any existing
// contents.
func (inv *Inventory) Initialize() {
	if inv.Capacity == 0 {
		inv.Capacity = DefaultInventoryCapacity
	}
	inv.Slots = make([]InventorySlot, inv.Capacity)
}

// AddItem adds up to addCount of tmpl, first stacking onto compatible
// existing slots, then filling empty slots. Returns the number actually
// added, which is less than addCount if the inventory is full.
func (inv *Inventory) AddItem(tmpl ItemTemplate, addCount uint32) uint32 {
	if len(inv.Slots) == 0 {
		inv.Initialize()
	}
	remaining := addCount

	if tmpl.IsStackable() {
		for i := range inv.Slots {
			if remaining == 0 {
				break
			}
			slot := &inv.Slots[i]
			if slot.ItemID == tmpl.ID && slot.Count < tmpl.MaxStackSize {
				space := tmpl.MaxStackSize - slot.Count
				toAdd := remaining
				if toAdd > space {
					toAdd = space
				}
				slot.Count += toAdd
				remaining -= toAdd
			}
		}
	}

	for i := range inv.Slots {
		if remaining == 0 {
			break
		}
		slot := &inv.Slots[i]
		if slot.IsEmpty() {
			toAdd := uint32(1)
			if tmpl.IsStackable() {
				toAdd = remaining
				if toAdd > tmpl.MaxStackSize {
					toAdd = tmpl.MaxStackSize
				}
			}
			slot.ItemID = tmpl.ID
			slot.Count = toAdd
			slot.Durability = tmpl.MaxDurability
			slot.MaxDurability = tmpl.MaxDurability
			remaining -= toAdd
		}
	}

	return addCount - remaining
}

// RemoveItem removes removeCount items from slotIndex. Returns false if
// the index is out of range or the slot doesn't hold enough.
func (inv *Inventory) RemoveItem(slotIndex int, removeCount uint32) bool {
	if slotIndex < 0 || slotIndex >= len(inv.Slots) {
		return false
	}
	slot := &inv.Slots[slotIndex]
	if slot.IsEmpty() || slot.Count < removeCount {
		return false
	}
	slot.Count -= removeCount
	if slot.Count == 0 {
		slot.Clear()
	}
	return true
}

// MoveItem swaps the contents of fromSlot and toSlot. Returns false if
// either index is out of range, they're equal, or the source is empty.
func (inv *Inventory) MoveItem(fromSlot, toSlot int) bool {
	if fromSlot < 0 || fromSlot >= len(inv.Slots) || toSlot < 0 || toSlot >= len(inv.Slots) {
		return false
	}
	if fromSlot == toSlot {
		return false
	}
	if inv.Slots[fromSlot].IsEmpty() {
		return false
	}
	inv.Slots[fromSlot], inv.Slots[toSlot] = inv.Slots[toSlot], inv.Slots[fromSlot]
	return true
}

// SplitStack moves splitCount items from slotIndex into the first empty
// slot. Returns the new slot's index and true on success.
func (inv *Inventory) SplitStack(slotIndex int, splitCount uint32) (int, bool) {
	if slotIndex < 0 || slotIndex >= len(inv.Slots) {
		return 0, false
	}
	src := &inv.Slots[slotIndex]
	if src.IsEmpty() || src.Count <= splitCount || splitCount == 0 {
		return 0, false
	}

	for i := range inv.Slots {
		if inv.Slots[i].IsEmpty() {
			inv.Slots[i].ItemID = src.ItemID
			inv.Slots[i].Count = splitCount
			inv.Slots[i].Durability = src.Durability
			inv.Slots[i].MaxDurability = src.MaxDurability
			src.Count -= splitCount
			return i, true
		}
	}
	return 0, false
}

// GetItem returns the slot at slotIndex, or nil if out of range or empty.
func (inv *Inventory) GetItem(slotIndex int) *InventorySlot {
	if slotIndex < 0 || slotIndex >= len(inv.Slots) {
		return nil
	}
	if inv.Slots[slotIndex].IsEmpty() {
		return nil
	}
	return &inv.Slots[slotIndex]
}

// FindItem returns the index of the first slot containing itemID.
func (inv *Inventory) FindItem(itemID uint32) (int, bool) {
	for i, slot := range inv.Slots {
		if slot.ItemID == itemID {
			return i, true
		}
	}
	return 0, false
}

// FreeSlots counts empty slots.
func (inv *Inventory) FreeSlots() uint32 {
	var count uint32
	for _, slot := range inv.Slots {
		if slot.IsEmpty() {
			count++
		}
	}
	return count
}

// CountItem sums the quantity of itemID across every slot.
func (inv *Inventory) CountItem(itemID uint32) uint32 {
	var total uint32
	for _, slot := range inv.Slots {
		if slot.ItemID == itemID {
			total += slot.Count
		}
	}
	return total
}

// Equipment is an entity's fixed equipment slots.
type Equipment struct {
	Slots [EquipSlotCount]InventorySlot
}

// Equip places item into slot, forcing its count to 1, and returns
// whatever was previously equipped there.
func (e *Equipment) Equip(slot EquipSlot, item InventorySlot) InventorySlot {
	idx := int(slot)
	if idx >= EquipSlotCount {
		return InventorySlot{}
	}
	previous := e.Slots[idx]
	item.Count = 1
	e.Slots[idx] = item
	return previous
}

// Unequip clears slot and returns whatever was equipped there.
func (e *Equipment) Unequip(slot EquipSlot) InventorySlot {
	idx := int(slot)
	if idx >= EquipSlotCount {
		return InventorySlot{}
	}
	removed := e.Slots[idx]
	e.Slots[idx] = InventorySlot{}
	return removed
}

// GetEquipped returns the item in slot, or nil if empty.
func (e *Equipment) GetEquipped(slot EquipSlot) *InventorySlot {
	idx := int(slot)
	if idx >= EquipSlotCount {
		return nil
	}
	if e.Slots[idx].IsEmpty() {
		return nil
	}
	return &e.Slots[idx]
}

// CalculateStatBonuses sums the stat bonuses of every equipped,
// non-broken item (template base bonuses plus enchants). templates
// resolves an item ID to its template; a miss contributes zero base
// bonus but enchants still apply.
func (e *Equipment) CalculateStatBonuses(templates func(itemID uint32) (ItemTemplate, bool)) StatBonuses {
	var total StatBonuses
	for _, slot := range e.Slots {
		if slot.IsEmpty() || slot.IsBroken() {
			continue
		}
		if tmpl, ok := templates(slot.ItemID); ok {
			total = total.Add(tmpl.StatBonuses)
		}
		total = total.Add(slot.GetEnchantBonuses())
	}
	return total
}

// DurabilityEvent notifies InventorySystem that an equipped item should
// lose durability, e.g. raised by CombatSystem on a successful hit.
type DurabilityEvent struct {
	Player    ecs.Entity
	Slot      EquipSlot // equipSlotCount sentinel = no slot
	Amount    int32
	Processed bool
}
