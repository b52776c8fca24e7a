package components

import "github.com/kcenon/common-game-server-sub000/internal/ecs"

// MaxAuras is the aura-count limit for an AuraHolder. AddOrStack does
// not enforce it: a new aura is appended whatever the current count.
const MaxAuras = 32

// MaxAuraStacks caps a single aura instance's stack count.
const MaxAuraStacks = 99

// CastState is a spell cast's lifecycle state.
type CastState uint8

const (
	CastIdle CastState = iota
	CastCasting
	CastChanneling
	CastComplete
	CastInterrupted
)

// DamageType classifies damage for mitigation purposes.
type DamageType uint8

const (
	DamagePhysical DamageType = iota
	DamageMagic
	DamageFire
	DamageFrost
	DamageNature
	DamageShadow
	DamageHoly
	damageTypeCount
)

// DamageTypeCount is the number of distinct damage types, for array sizing.
const DamageTypeCount = int(damageTypeCount)

// SpellCast is an entity's in-progress spell cast, if any.
type SpellCast struct {
	SpellID       uint32
	Target        ecs.Entity
	State         CastState
	CastTime      float64
	RemainingTime float64
}

// Begin starts casting spell against target for the given duration.
func (c *SpellCast) Begin(spell uint32, target ecs.Entity, duration float64) {
	c.SpellID = spell
	c.Target = target
	c.CastTime = duration
	c.RemainingTime = duration
	c.State = CastCasting
}

// Interrupt stops an in-progress cast or channel.
func (c *SpellCast) Interrupt() {
	if c.State == CastCasting || c.State == CastChanneling {
		c.State = CastInterrupted
		c.RemainingTime = 0
	}
}

// Reset returns the cast to idle.
func (c *SpellCast) Reset() {
	*c = SpellCast{}
}

// AuraInstance is a single active buff/debuff on an entity.
type AuraInstance struct {
	AuraID         uint32
	Caster         ecs.Entity
	Stacks         int32
	Duration       float64
	RemainingTime  float64
	TickInterval   float64
	TickTimer      float64
	TickDamage     int32
	TickDamageType DamageType
}

// AuraHolder is the set of active auras on an entity.
type AuraHolder struct {
	Auras []AuraInstance
}

// AddOrStack adds a new aura, or stacks onto an existing one from the
// same caster with the same AuraID, refreshing its duration. Returns a
// pointer to the added/stacked instance.
func (h *AuraHolder) AddOrStack(aura AuraInstance) *AuraInstance {
	for i := range h.Auras {
		existing := &h.Auras[i]
		if existing.AuraID == aura.AuraID && existing.Caster == aura.Caster {
			existing.Stacks += aura.Stacks
			if existing.Stacks > MaxAuraStacks {
				existing.Stacks = MaxAuraStacks
			}
			existing.RemainingTime = aura.Duration
			existing.Duration = aura.Duration
			return existing
		}
	}
	h.Auras = append(h.Auras, aura)
	return &h.Auras[len(h.Auras)-1]
}

// RemoveByID removes every aura with the given AuraID.
func (h *AuraHolder) RemoveByID(auraID uint32) {
	kept := h.Auras[:0]
	for _, a := range h.Auras {
		if a.AuraID != auraID {
			kept = append(kept, a)
		}
	}
	h.Auras = kept
}

// RemoveExpired drops every aura with RemainingTime <= 0.
func (h *AuraHolder) RemoveExpired() {
	kept := h.Auras[:0]
	for _, a := range h.Auras {
		if a.RemainingTime > 0 {
			kept = append(kept, a)
		}
	}
	h.Auras = kept
}

// HasAura reports whether any aura with auraID is present.
func (h *AuraHolder) HasAura(auraID uint32) bool {
	for _, a := range h.Auras {
		if a.AuraID == auraID {
			return true
		}
	}
	return false
}

// GetStacks sums stacks across every instance of auraID.
func (h *AuraHolder) GetStacks(auraID uint32) int32 {
	var total int32
	for _, a := range h.Auras {
		if a.AuraID == auraID {
			total += a.Stacks
		}
	}
	return total
}

// DamageEvent is a pending damage instance awaiting processing by
// CombatSystem. FinalDamage and IsProcessed are written by the system;
// callers only populate the remaining fields.
type DamageEvent struct {
	Attacker    ecs.Entity
	Victim      ecs.Entity
	Type        DamageType
	BaseDamage  int32
	FinalDamage int32
	IsCritical  bool
	IsProcessed bool
}

// ThreatEntry links a threat source to an accumulated amount.
type ThreatEntry struct {
	Source ecs.Entity
	Threat float64
}

// ThreatList is a descending-sorted list of threat sources, used by AI
// to pick a target. The highest-threat entry is always at index 0.
type ThreatList struct {
	Entries []ThreatEntry
}

// AddThreat adds to source's threat, creating an entry if none exists,
// then re-sorts descending.
func (t *ThreatList) AddThreat(source ecs.Entity, amount float64) {
	for i := range t.Entries {
		if t.Entries[i].Source == source {
			t.Entries[i].Threat += amount
			t.sortDescending()
			return
		}
	}
	t.Entries = append(t.Entries, ThreatEntry{Source: source, Threat: amount})
	t.sortDescending()
}

// Remove drops source from the threat list.
func (t *ThreatList) Remove(source ecs.Entity) {
	kept := t.Entries[:0]
	for _, e := range t.Entries {
		if e.Source != source {
			kept = append(kept, e)
		}
	}
	t.Entries = kept
}

// GetTopThreat returns the highest-threat source, or ecs.InvalidEntity
// if the list is empty.
func (t *ThreatList) GetTopThreat() ecs.Entity {
	if len(t.Entries) == 0 {
		return ecs.InvalidEntity
	}
	return t.Entries[0].Source
}

// GetThreat returns source's accumulated threat, or 0 if absent.
func (t *ThreatList) GetThreat(source ecs.Entity) float64 {
	for _, e := range t.Entries {
		if e.Source == source {
			return e.Threat
		}
	}
	return 0
}

// Clear empties the threat list.
func (t *ThreatList) Clear() {
	t.Entries = nil
}

func (t *ThreatList) sortDescending() {
	entries := t.Entries
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].Threat < entries[j].Threat; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}
