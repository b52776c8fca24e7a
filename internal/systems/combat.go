package systems

import (
	"github.com/kcenon/common-game-server-sub000/internal/components"
	"github.com/kcenon/common-game-server-sub000/internal/ecs"
)

// Damage mitigation constants, indexed by DamageCalcParams.
const (
	armorMitigationConstant      = 400.0
	resistanceMitigationConstant = 200.0
	criticalDamageMultiplier     = 2.0
)

// DamageCalcParams carries the victim-side values the mitigation
// pipeline needs: armor for Physical damage, per-type resistance for
// everything else.
type DamageCalcParams struct {
	Armor       int32
	Resistances [components.DamageTypeCount]int32
}

// CombatSystem advances spell casts, ticks auras, and resolves damage
// events each tick: finalDamage = base * (crit ? 2 : 1) * (1 -
// mitigation), where mitigation = value / (value + constant).
type CombatSystem struct {
	spellCasts  *ecs.ComponentStorage[components.SpellCast]
	auraHolders *ecs.ComponentStorage[components.AuraHolder]
	damageEvts  *ecs.ComponentStorage[components.DamageEvent]
	stats       *ecs.ComponentStorage[components.Stats]
	threatLists *ecs.ComponentStorage[components.ThreatList]
}

// NewCombatSystem wires a CombatSystem to the component storages it
// reads and writes.
func NewCombatSystem(
	spellCasts *ecs.ComponentStorage[components.SpellCast],
	auraHolders *ecs.ComponentStorage[components.AuraHolder],
	damageEvts *ecs.ComponentStorage[components.DamageEvent],
	stats *ecs.ComponentStorage[components.Stats],
	threatLists *ecs.ComponentStorage[components.ThreatList],
) *CombatSystem {
	return &CombatSystem{
		spellCasts:  spellCasts,
		auraHolders: auraHolders,
		damageEvts:  damageEvts,
		stats:       stats,
		threatLists: threatLists,
	}
}

// Stage reports Update.
func (s *CombatSystem) Stage() ecs.Stage { return ecs.Update }

// Name identifies this system for scheduler diagnostics.
func (s *CombatSystem) Name() string { return "CombatSystem" }

// Execute advances spell casts, ticks auras, then resolves damage
// events, in that order.
func (s *CombatSystem) Execute(deltaTime float64) {
	s.updateSpellCasts(deltaTime)
	s.updateAuras(deltaTime)
	s.processDamageEvents()
}

// CalculateDamage is a pure function computing final damage after
// critical and mitigation, exposed directly for testing and for
// callers that need to preview damage.
func CalculateDamage(baseDamage int32, damageType components.DamageType, isCritical bool, params DamageCalcParams) int32 {
	if baseDamage <= 0 {
		return 0
	}

	damage := float64(baseDamage)
	if isCritical {
		damage *= criticalDamageMultiplier
	}

	var mitigation float64
	if damageType == components.DamagePhysical {
		armor := params.Armor
		if armor < 0 {
			armor = 0
		}
		a := float64(armor)
		mitigation = a / (a + armorMitigationConstant)
	} else {
		var resistance int32
		idx := int(damageType)
		if idx < len(params.Resistances) {
			resistance = params.Resistances[idx]
		}
		if resistance < 0 {
			resistance = 0
		}
		r := float64(resistance)
		mitigation = r / (r + resistanceMitigationConstant)
	}

	damage *= 1 - mitigation

	final := int32(damage)
	if final < 1 {
		final = 1
	}
	return final
}

func (s *CombatSystem) updateSpellCasts(deltaTime float64) {
	for i := 0; i < s.spellCasts.Size(); i++ {
		id := s.spellCasts.EntityAt(i)
		cast := s.spellCasts.Get(ecs.NewEntity(id, 0))
		if cast.State != components.CastCasting && cast.State != components.CastChanneling {
			continue
		}
		cast.RemainingTime -= deltaTime
		if cast.RemainingTime <= 0 {
			cast.RemainingTime = 0
			cast.State = components.CastComplete
		}
	}
}

func (s *CombatSystem) updateAuras(deltaTime float64) {
	for i := 0; i < s.auraHolders.Size(); i++ {
		id := s.auraHolders.EntityAt(i)
		entity := ecs.NewEntity(id, 0)
		holder := s.auraHolders.Get(entity)

		for a := range holder.Auras {
			aura := &holder.Auras[a]
			aura.RemainingTime -= deltaTime

			if aura.TickInterval > 0 {
				aura.TickTimer -= deltaTime
				for aura.TickTimer <= 0 && aura.RemainingTime > -aura.TickInterval {
					if s.stats.Has(entity) && aura.TickDamage != 0 {
						entityStats := s.stats.Get(entity)
						effective := aura.TickDamage * aura.Stacks
						entityStats.SetHealth(entityStats.Health - effective)
					}
					aura.TickTimer += aura.TickInterval
				}
			}
		}

		holder.RemoveExpired()
	}
}

func (s *CombatSystem) processDamageEvents() {
	for i := 0; i < s.damageEvts.Size(); i++ {
		id := s.damageEvts.EntityAt(i)
		event := s.damageEvts.Get(ecs.NewEntity(id, 0))
		if event.IsProcessed {
			continue
		}

		var params DamageCalcParams
		if s.stats.Has(event.Victim) {
			victimStats := s.stats.Get(event.Victim)
			params.Armor = victimStats.Attributes[0]
			for r := 0; r < components.DamageTypeCount && r+1 < components.MaxAttributes; r++ {
				params.Resistances[r] = victimStats.Attributes[r+1]
			}
		}

		event.FinalDamage = CalculateDamage(event.BaseDamage, event.Type, event.IsCritical, params)

		if s.stats.Has(event.Victim) {
			victimStats := s.stats.Get(event.Victim)
			victimStats.SetHealth(victimStats.Health - event.FinalDamage)
		}

		if s.threatLists.Has(event.Victim) {
			threats := s.threatLists.Get(event.Victim)
			threats.AddThreat(event.Attacker, float64(event.FinalDamage))
		}

		event.IsProcessed = true
	}
}
