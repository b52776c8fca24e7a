package gameserver

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/kcenon/common-game-server-sub000/internal/components"
	"github.com/kcenon/common-game-server-sub000/internal/ecs"
	"github.com/kcenon/common-game-server-sub000/internal/mathutil"
	"github.com/kcenon/common-game-server-sub000/internal/persistence"
	"github.com/kcenon/common-game-server-sub000/internal/systems"
	"github.com/kcenon/common-game-server-sub000/pkg/cgserrors"
	"github.com/kcenon/common-game-server-sub000/pkg/logger"
)

// PlayerID identifies a logically connected player across sessions.
type PlayerID uint64

// PlayerSession is one connected player's entity and current instance.
type PlayerSession struct {
	PlayerID   PlayerID
	Entity     ecs.Entity
	InstanceID uint32
}

// Config configures a Server's tick rate, spatial indexing, instance
// capacity, and per-entity AI throttling.
type Config struct {
	TickRateHz        int
	SpatialCellSize   float64
	AITickInterval    float64
	MaxInstances      uint32
	MaxPlayersPerInst uint32
}

// GameServerStats aggregates runtime counters for observability.
type GameServerStats struct {
	TotalTicks            uint64
	LastUpdateTimeMs      float64
	LastBudgetUtilization float64
	EntityCount           int
	PlayerCount           int
	ActiveInstances       uint32
	DrainingInstances     uint32
	PlayersJoined         uint64
	PlayersLeft           uint64
}

// playerState is the JSON-serialized shape of a player's persisted
// state: the component values that must survive a snapshot/WAL
// round-trip. Everything not here (spatial index membership, in-flight
// spell casts) is reconstructed from these fields plus the next tick's
// system execution rather than persisted directly.
type playerState struct {
	GUID       components.GUID      `json:"guid"`
	InstanceID uint32               `json:"instance_id"`
	Position   mathutil.Vector3     `json:"position"`
	Stats      components.Stats     `json:"stats"`
	Inventory  components.Inventory `json:"inventory"`
	Equipment  components.Equipment `json:"equipment"`
	QuestLog   components.QuestLog  `json:"quest_log"`
}

// Server composes the ECS runtime, the six game systems, the tick loop,
// and map instance / player session bookkeeping into one running
// simulation core. It does not own persistence or the database proxy
// directly; CollectPlayerStates, RestoreSnapshot, and ApplyWalEntry
// adapt its in-memory state to a persistence.Manager started by the
// caller.
type Server struct {
	config Config
	log    *logger.Logger

	registry  *ecs.Registry
	scheduler *ecs.Scheduler
	loop      *GameLoop
	instances *InstanceManager

	transforms       *ecs.ComponentStorage[components.Transform]
	identities       *ecs.ComponentStorage[components.Identity]
	stats            *ecs.ComponentStorage[components.Stats]
	movements        *ecs.ComponentStorage[components.Movement]
	mapInstances     *ecs.ComponentStorage[components.MapInstance]
	memberships      *ecs.ComponentStorage[components.MapMembership]
	visibilityRanges *ecs.ComponentStorage[components.VisibilityRange]
	zones            *ecs.ComponentStorage[components.Zone]

	spellCasts  *ecs.ComponentStorage[components.SpellCast]
	auraHolders *ecs.ComponentStorage[components.AuraHolder]
	damageEvts  *ecs.ComponentStorage[components.DamageEvent]
	threatLists *ecs.ComponentStorage[components.ThreatList]

	aiBrains *ecs.ComponentStorage[components.AIBrain]

	questLogs   *ecs.ComponentStorage[components.QuestLog]
	questEvents *ecs.ComponentStorage[components.QuestEvent]

	inventories    *ecs.ComponentStorage[components.Inventory]
	equipment      *ecs.ComponentStorage[components.Equipment]
	durabilityEvts *ecs.ComponentStorage[components.DurabilityEvent]

	questSystem     *systems.QuestSystem
	inventorySystem *systems.InventorySystem

	playerMu         sync.Mutex
	playerSessions   map[PlayerID]PlayerSession
	instanceEntities map[uint32]ecs.Entity

	playersJoined uint64
	playersLeft   uint64
}

// NewServer constructs a Server from config. Call Start before ticking.
// log may be nil, in which case the server and the subsystems it owns
// operate silently.
func NewServer(config Config, log *logger.Logger) *Server {
	s := &Server{
		config:    config,
		log:       log,
		registry:  ecs.NewRegistry(),
		scheduler: ecs.NewScheduler(),
		loop:      NewGameLoop(config.TickRateHz, log),
		instances: NewInstanceManager(config.MaxInstances, log),

		transforms:       ecs.NewComponentStorage[components.Transform](),
		identities:       ecs.NewComponentStorage[components.Identity](),
		stats:            ecs.NewComponentStorage[components.Stats](),
		movements:        ecs.NewComponentStorage[components.Movement](),
		mapInstances:     ecs.NewComponentStorage[components.MapInstance](),
		memberships:      ecs.NewComponentStorage[components.MapMembership](),
		visibilityRanges: ecs.NewComponentStorage[components.VisibilityRange](),
		zones:            ecs.NewComponentStorage[components.Zone](),

		spellCasts:  ecs.NewComponentStorage[components.SpellCast](),
		auraHolders: ecs.NewComponentStorage[components.AuraHolder](),
		damageEvts:  ecs.NewComponentStorage[components.DamageEvent](),
		threatLists: ecs.NewComponentStorage[components.ThreatList](),

		aiBrains: ecs.NewComponentStorage[components.AIBrain](),

		questLogs:   ecs.NewComponentStorage[components.QuestLog](),
		questEvents: ecs.NewComponentStorage[components.QuestEvent](),

		inventories:    ecs.NewComponentStorage[components.Inventory](),
		equipment:      ecs.NewComponentStorage[components.Equipment](),
		durabilityEvts: ecs.NewComponentStorage[components.DurabilityEvent](),

		playerSessions:   make(map[PlayerID]PlayerSession),
		instanceEntities: make(map[uint32]ecs.Entity),
	}
	return s
}

// registerStorages wires every component storage into the registry so
// destroying an entity cleans up its components in every storage.
func (s *Server) registerStorages() {
	s.registry.RegisterStorage(s.transforms)
	s.registry.RegisterStorage(s.identities)
	s.registry.RegisterStorage(s.stats)
	s.registry.RegisterStorage(s.movements)
	s.registry.RegisterStorage(s.mapInstances)
	s.registry.RegisterStorage(s.memberships)
	s.registry.RegisterStorage(s.visibilityRanges)
	s.registry.RegisterStorage(s.zones)
	s.registry.RegisterStorage(s.spellCasts)
	s.registry.RegisterStorage(s.auraHolders)
	s.registry.RegisterStorage(s.damageEvts)
	s.registry.RegisterStorage(s.threatLists)
	s.registry.RegisterStorage(s.aiBrains)
	s.registry.RegisterStorage(s.questLogs)
	s.registry.RegisterStorage(s.questEvents)
	s.registry.RegisterStorage(s.inventories)
	s.registry.RegisterStorage(s.equipment)
	s.registry.RegisterStorage(s.durabilityEvts)
}

// registerSystems wires the six game systems into the scheduler by
// stage and builds the execution order.
func (s *Server) registerSystems() bool {
	s.scheduler.Register(systems.NewWorldSystem(
		s.transforms, s.memberships, s.mapInstances,
		s.visibilityRanges, s.zones, s.config.SpatialCellSize))

	s.scheduler.Register(systems.NewObjectUpdateSystem(s.transforms, s.movements))

	s.scheduler.Register(systems.NewCombatSystem(
		s.spellCasts, s.auraHolders, s.damageEvts, s.stats, s.threatLists))

	s.scheduler.Register(systems.NewAISystem(
		s.aiBrains, s.transforms, s.movements, s.stats, s.threatLists,
		s.config.AITickInterval))

	s.questSystem = systems.NewQuestSystem(s.questLogs, s.questEvents)
	s.inventorySystem = systems.NewInventorySystem(s.inventories, s.equipment, s.durabilityEvts)
	s.scheduler.Register(s.questSystem)
	s.scheduler.Register(s.inventorySystem)

	return s.scheduler.Build()
}

// Start wires up storages and systems, binds the tick callback, and
// starts the background tick loop.
func (s *Server) Start() error {
	if s.loop.IsRunning() {
		return cgserrors.New(cgserrors.GameLoopAlreadyRunning, "game server is already running")
	}

	s.registerStorages()
	if !s.registerSystems() {
		return cgserrors.New(cgserrors.SystemSchedulerBuildFailed, "failed to build system scheduler: "+s.scheduler.LastError())
	}

	s.loop.SetTickCallback(func(dt float64) {
		s.scheduler.Execute(dt)
		s.registry.FlushDeferred()
	})

	if !s.loop.Start() {
		return cgserrors.New(cgserrors.GameLoopAlreadyRunning, "failed to start game loop")
	}
	return nil
}

// Stop halts the background tick loop.
func (s *Server) Stop() { s.loop.Stop() }

// IsRunning reports whether the tick loop is active.
func (s *Server) IsRunning() bool { return s.loop.IsRunning() }

// Tick steps the simulation once synchronously. Fails while the
// background loop is running; wiring happens on first manual tick if
// Start was never called.
func (s *Server) Tick() error {
	if s.loop.IsRunning() {
		return cgserrors.New(cgserrors.GameLoopAlreadyRunning, "cannot tick manually while game loop is running")
	}

	if s.scheduler.SystemCount() == 0 {
		s.registerStorages()
		if !s.registerSystems() {
			return cgserrors.New(cgserrors.SystemSchedulerBuildFailed, "failed to build system scheduler: "+s.scheduler.LastError())
		}
		s.loop.SetTickCallback(func(dt float64) {
			s.scheduler.Execute(dt)
			s.registry.FlushDeferred()
		})
	}

	s.loop.Tick()
	return nil
}

// findMapEntity returns the map entity tracking instanceId's spatial
// state, if one exists.
func (s *Server) findMapEntity(instanceID uint32) (ecs.Entity, bool) {
	e, ok := s.instanceEntities[instanceID]
	return e, ok
}

// CreateInstance allocates a new map instance and a paired ECS map
// entity for spatial indexing.
func (s *Server) CreateInstance(mapID uint32, mapType components.MapType) (uint32, error) {
	maxPlayers := s.config.MaxPlayersPerInst
	id, err := s.instances.CreateInstance(mapID, mapType, maxPlayers)
	if err != nil {
		return 0, err
	}

	mapEntity := s.registry.Create()
	s.mapInstances.Add(mapEntity, components.MapInstance{MapID: mapID, InstanceID: id, Type: mapType})
	s.instanceEntities[id] = mapEntity

	return id, nil
}

// DestroyInstance removes instanceId and its paired map entity. Fails
// if the instance still has players.
func (s *Server) DestroyInstance(instanceID uint32) error {
	if err := s.instances.DestroyInstance(instanceID); err != nil {
		return err
	}
	if mapEntity, ok := s.findMapEntity(instanceID); ok {
		s.registry.Destroy(mapEntity)
	}
	delete(s.instanceEntities, instanceID)
	return nil
}

// AvailableInstances lists Active, non-full instance IDs for mapID.
func (s *Server) AvailableInstances(mapID uint32) []uint32 {
	return s.instances.FindAvailableInstances(mapID)
}

// AddPlayer creates a player entity with the standard component bundle
// in instanceId and records its session. Rejects a player already in
// the world, a missing instance, or a full/non-active instance.
func (s *Server) AddPlayer(playerID PlayerID, instanceID uint32) (ecs.Entity, error) {
	s.playerMu.Lock()
	defer s.playerMu.Unlock()

	if _, exists := s.playerSessions[playerID]; exists {
		return ecs.InvalidEntity, cgserrors.New(cgserrors.PlayerAlreadyInWorld, "player is already in the world")
	}

	if _, ok := s.instances.GetInstance(instanceID); !ok {
		return ecs.InvalidEntity, cgserrors.New(cgserrors.MapInstanceNotFound, "map instance not found")
	}

	if !s.instances.AddPlayer(instanceID) {
		return ecs.InvalidEntity, cgserrors.New(cgserrors.InstanceFull, "map instance is full or not active")
	}

	mapEntity, ok := s.findMapEntity(instanceID)
	if !ok {
		s.instances.RemovePlayer(instanceID)
		return ecs.InvalidEntity, cgserrors.New(cgserrors.MapInstanceNotFound, "map entity not found in world")
	}

	entity := s.registry.Create()

	s.transforms.Add(entity, components.NewTransform(mathutil.Vector3{}))
	s.identities.Add(entity, components.Identity{GUID: components.GenerateGUID(), Type: components.ObjectTypePlayer})
	s.stats.Add(entity, components.Stats{Health: 100, MaxHealth: 100, Mana: 100, MaxMana: 100})
	s.movements.Add(entity, components.Movement{Speed: 7.0, BaseSpeed: 7.0})
	s.memberships.Add(entity, components.MapMembership{MapEntity: mapEntity})
	s.questLogs.Add(entity, components.QuestLog{})

	var inv components.Inventory
	inv.Initialize()
	s.inventories.Add(entity, inv)
	s.equipment.Add(entity, components.Equipment{})

	s.playerSessions[playerID] = PlayerSession{PlayerID: playerID, Entity: entity, InstanceID: instanceID}
	atomic.AddUint64(&s.playersJoined, 1)

	return entity, nil
}

// RemovePlayer ends playerId's session: releases its instance slot and
// destroys its entity (storages auto-cleanup via the registry).
func (s *Server) RemovePlayer(playerID PlayerID) error {
	s.playerMu.Lock()
	defer s.playerMu.Unlock()

	session, ok := s.playerSessions[playerID]
	if !ok {
		return cgserrors.New(cgserrors.PlayerNotInWorld, "player is not in the world")
	}
	delete(s.playerSessions, playerID)

	s.instances.RemovePlayer(session.InstanceID)
	s.registry.Destroy(session.Entity)
	atomic.AddUint64(&s.playersLeft, 1)

	return nil
}

// GetPlayerSession returns a copy of playerId's current session.
func (s *Server) GetPlayerSession(playerID PlayerID) (PlayerSession, bool) {
	s.playerMu.Lock()
	defer s.playerMu.Unlock()
	session, ok := s.playerSessions[playerID]
	return session, ok
}

// TransferPlayer moves playerId into targetInstanceId: reserves
// capacity there, releases the old instance, and rewrites the entity's
// MapMembership. Position is left for the next tick's WorldSystem sync.
func (s *Server) TransferPlayer(playerID PlayerID, targetInstanceID uint32) error {
	s.playerMu.Lock()
	defer s.playerMu.Unlock()

	session, ok := s.playerSessions[playerID]
	if !ok {
		return cgserrors.New(cgserrors.PlayerNotInWorld, "player is not in the world")
	}
	if session.InstanceID == targetInstanceID {
		return nil
	}

	if !s.instances.AddPlayer(targetInstanceID) {
		return cgserrors.New(cgserrors.InstanceFull, "target instance is full or not active")
	}

	targetMapEntity, ok := s.findMapEntity(targetInstanceID)
	if !ok {
		s.instances.RemovePlayer(targetInstanceID)
		return cgserrors.New(cgserrors.MapInstanceNotFound, "target map entity not found in world")
	}

	s.instances.RemovePlayer(session.InstanceID)

	if membership := s.memberships.Get(session.Entity); membership != nil {
		membership.MapEntity = targetMapEntity
		membership.ZoneID = 0
	}

	session.InstanceID = targetInstanceID
	s.playerSessions[playerID] = session

	return nil
}

// Stats aggregates the server's current runtime counters.
func (s *Server) Stats() GameServerStats {
	loopMetrics := s.loop.LastMetrics()

	s.playerMu.Lock()
	playerCount := len(s.playerSessions)
	s.playerMu.Unlock()

	return GameServerStats{
		TotalTicks:            loopMetrics.TickNumber,
		LastUpdateTimeMs:      float64(loopMetrics.UpdateTime.Microseconds()) / 1000.0,
		LastBudgetUtilization: loopMetrics.BudgetUtilization,
		EntityCount:           s.registry.Count(),
		PlayerCount:           playerCount,
		ActiveInstances:       s.instances.InstanceCountByState(InstanceActive),
		DrainingInstances:     s.instances.InstanceCountByState(InstanceDraining),
		PlayersJoined:         atomic.LoadUint64(&s.playersJoined),
		PlayersLeft:           atomic.LoadUint64(&s.playersLeft),
	}
}

// Config returns the server's configuration.
func (s *Server) Config() Config { return s.config }

// CollectPlayerStates snapshots every connected player's persisted
// state. Intended as the StateCollector passed to persistence.Manager.Start.
func (s *Server) CollectPlayerStates() []persistence.PlayerSnapshot {
	s.playerMu.Lock()
	sessions := make([]PlayerSession, 0, len(s.playerSessions))
	for _, session := range s.playerSessions {
		sessions = append(sessions, session)
	}
	s.playerMu.Unlock()

	out := make([]persistence.PlayerSnapshot, 0, len(sessions))
	for _, session := range sessions {
		data, err := json.Marshal(s.buildPlayerState(session))
		if err != nil {
			continue
		}
		out = append(out, persistence.PlayerSnapshot{
			PlayerID:   uint64(session.PlayerID),
			InstanceID: session.InstanceID,
			Data:       data,
		})
	}
	return out
}

func (s *Server) buildPlayerState(session PlayerSession) playerState {
	var state playerState
	state.InstanceID = session.InstanceID

	if identity := s.identities.Get(session.Entity); identity != nil {
		state.GUID = identity.GUID
	}
	if transform := s.transforms.Get(session.Entity); transform != nil {
		state.Position = transform.Position
	}
	if st := s.stats.Get(session.Entity); st != nil {
		state.Stats = *st
	}
	if inv := s.inventories.Get(session.Entity); inv != nil {
		state.Inventory = *inv
	}
	if eq := s.equipment.Get(session.Entity); eq != nil {
		state.Equipment = *eq
	}
	if ql := s.questLogs.Get(session.Entity); ql != nil {
		state.QuestLog = *ql
	}
	return state
}

// RestoreSnapshot recreates every player recorded in snap, restoring
// the persisted component values onto fresh entities. Intended as the
// StateRestorer passed to persistence.Manager.Start, invoked once
// before WAL replay.
func (s *Server) RestoreSnapshot(snap persistence.Snapshot) {
	for _, p := range snap.Players {
		var state playerState
		if err := json.Unmarshal(p.Data, &state); err != nil {
			continue
		}
		s.restorePlayer(PlayerID(p.PlayerID), p.InstanceID, state)
	}
}

func (s *Server) restorePlayer(playerID PlayerID, instanceID uint32, state playerState) {
	s.playerMu.Lock()
	defer s.playerMu.Unlock()

	if _, exists := s.playerSessions[playerID]; exists {
		return
	}
	mapEntity, ok := s.findMapEntity(instanceID)
	if !ok {
		return
	}

	entity := s.registry.Create()
	transform := components.NewTransform(state.Position)
	s.transforms.Add(entity, transform)
	s.identities.Add(entity, components.Identity{GUID: state.GUID, Type: components.ObjectTypePlayer})
	s.stats.Add(entity, state.Stats)
	s.movements.Add(entity, components.Movement{Speed: 7.0, BaseSpeed: 7.0})
	s.memberships.Add(entity, components.MapMembership{MapEntity: mapEntity})
	s.questLogs.Add(entity, state.QuestLog)
	s.inventories.Add(entity, state.Inventory)
	s.equipment.Add(entity, state.Equipment)

	s.instances.AddPlayer(instanceID)
	s.playerSessions[playerID] = PlayerSession{PlayerID: playerID, Entity: entity, InstanceID: instanceID}
}

// ApplyWalEntry is the WalApplier passed to persistence.Manager.Start,
// replaying a single journaled mutation against in-memory state.
// Entry replay is a game-logic concern (which operation mutates which
// component) left to the caller that owns the operation set; this core
// only guarantees ordered, exactly-once delivery of the raw entry.
func (s *Server) ApplyWalEntry(persistence.WalEntry) {}
