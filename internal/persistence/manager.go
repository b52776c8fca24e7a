package persistence

import (
	"sync"
	"time"

	"github.com/kcenon/common-game-server-sub000/pkg/cgserrors"
	"github.com/kcenon/common-game-server-sub000/pkg/logger"
)

// StateCollector gathers every active player's current state for a
// snapshot.
type StateCollector func() []PlayerSnapshot

// StateRestorer applies a loaded snapshot to world state during recovery.
type StateRestorer func(Snapshot)

// WalApplier replays one WAL entry during recovery, after the restorer
// has applied the preceding snapshot.
type WalApplier func(WalEntry)

// ManagerConfig bundles WAL and snapshot configuration plus the periodic
// snapshot cadence.
type ManagerConfig struct {
	Wal              WalConfig
	Snapshot         SnapshotConfig
	SnapshotInterval time.Duration
}

// DefaultManagerConfig returns production defaults: a 60 second snapshot
// interval over the WAL/snapshot package defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Wal:              DefaultWalConfig(),
		Snapshot:         DefaultSnapshotConfig(),
		SnapshotInterval: 60 * time.Second,
	}
}

// pollInterval is how often the background timer wakes to check whether
// a snapshot is due, so Stop doesn't have to wait out a full
// SnapshotInterval to join the goroutine.
const pollInterval = 500 * time.Millisecond

// Manager coordinates a WriteAheadLog and a SnapshotStore: on Start it
// recovers from the latest snapshot plus WAL replay, then runs a
// background timer that takes a fresh snapshot and truncates the log
// every SnapshotInterval.
type Manager struct {
	config ManagerConfig
	log    *logger.Logger

	wal       *WriteAheadLog
	snapshots *SnapshotStore

	collector StateCollector

	snapshotMu           sync.Mutex
	lastSnapshotSequence uint64

	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool
	runningMu sync.Mutex
}

// NewManager constructs a Manager against config without touching disk.
// log may be nil, in which case the manager and its WAL/snapshot store
// operate silently.
func NewManager(config ManagerConfig, log *logger.Logger) *Manager {
	return &Manager{
		config:    config,
		log:       log,
		wal:       NewWriteAheadLog(config.Wal, log),
		snapshots: NewSnapshotStore(config.Snapshot, log),
	}
}

// Start opens the WAL and snapshot store, recovers world state (latest
// snapshot via restorer, then WAL entries after it via applier), and
// launches the background snapshot timer. Returns a
// *cgserrors.Error(PersistenceAlreadyStarted) if already running.
func (m *Manager) Start(collector StateCollector, restorer StateRestorer, applier WalApplier) error {
	m.runningMu.Lock()
	defer m.runningMu.Unlock()

	if m.running {
		return cgserrors.New(cgserrors.PersistenceAlreadyStarted, "persistence manager is already running")
	}

	if err := m.wal.Open(); err != nil {
		return err
	}
	if err := m.snapshots.Open(); err != nil {
		_ = m.wal.Close()
		return err
	}

	m.collector = collector

	if err := m.recover(restorer, applier); err != nil {
		_ = m.wal.Close()
		m.snapshots.Close()
		return err
	}

	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.running = true

	go m.timerLoop()

	return nil
}

func (m *Manager) recover(restorer StateRestorer, applier WalApplier) error {
	snap, err := m.snapshots.LoadLatest()
	if err == nil {
		m.lastSnapshotSequence = snap.WalSequence
		restorer(snap)
	}
	// Absence of any snapshot is expected on a fresh deployment; only a
	// snapshot load error other than SnapshotReadFailed (such as a
	// corrupt snapshot) aborts recovery. WAL replay reports no errors.
	if err != nil && !cgserrors.Is(err, cgserrors.SnapshotReadFailed) {
		if m.log != nil {
			m.log.WithField("error", err).Error("failed to load latest snapshot during recovery")
		}
		return cgserrors.Wrap(cgserrors.RecoveryFailed, "load latest snapshot", err)
	}

	replayed := m.wal.Replay(m.lastSnapshotSequence, applier)
	if m.log != nil {
		m.log.WithFields(map[string]interface{}{
			"snapshot_sequence": m.lastSnapshotSequence,
			"replayed_entries":  replayed,
		}).Info("persistence recovery complete")
	}
	return nil
}

func (m *Manager) timerLoop() {
	defer close(m.doneCh)

	next := time.Now().Add(m.config.SnapshotInterval)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			if now.Before(next) {
				continue
			}
			_ = m.doSnapshot()
			next = time.Now().Add(m.config.SnapshotInterval)
		}
	}
}

// doSnapshot collects current state, saves it, and truncates the WAL up
// to the snapshot's sequence. A truncation failure is logged here but
// does not fail the snapshot itself: the extra entries are simply
// truncated on the next successful cycle.
func (m *Manager) doSnapshot() error {
	m.snapshotMu.Lock()
	defer m.snapshotMu.Unlock()

	if m.collector == nil {
		return cgserrors.New(cgserrors.PersistenceError, "no state collector registered")
	}

	players := m.collector()
	snap := Snapshot{
		WalSequence: m.wal.CurrentSequence(),
		TimestampUs: uint64(time.Now().UnixMicro()),
		Players:     players,
	}

	if err := m.snapshots.Save(snap); err != nil {
		if m.log != nil {
			m.log.WithField("error", err).Error("failed to save snapshot")
		}
		return err
	}

	if err := m.wal.TruncateBefore(snap.WalSequence); err != nil && m.log != nil {
		m.log.WithField("error", err).Warn("WAL truncation after snapshot failed; retrying on next cycle")
	}

	m.lastSnapshotSequence = snap.WalSequence
	return nil
}

// Stop signals the timer to exit, waits for it, takes one final
// snapshot, then flushes and closes the WAL and snapshot store. Safe to
// call on a Manager that was never started.
func (m *Manager) Stop() {
	m.runningMu.Lock()
	defer m.runningMu.Unlock()

	if !m.running {
		return
	}

	close(m.stopCh)
	<-m.doneCh

	_ = m.doSnapshot()

	_ = m.wal.Flush()
	_ = m.wal.Close()
	m.snapshots.Close()

	m.running = false
}

// RecordChange appends entry to the WAL, returning its assigned sequence.
func (m *Manager) RecordChange(entry WalEntry) (uint64, error) {
	return m.wal.Append(entry)
}

// TakeSnapshot triggers an immediate out-of-band snapshot. Returns
// PersistenceNotStarted if the manager isn't running.
func (m *Manager) TakeSnapshot() error {
	m.runningMu.Lock()
	running := m.running
	m.runningMu.Unlock()

	if !running {
		return cgserrors.New(cgserrors.PersistenceNotStarted, "persistence manager is not running")
	}
	return m.doSnapshot()
}

// IsRunning reports whether the manager's background timer is active.
func (m *Manager) IsRunning() bool {
	m.runningMu.Lock()
	defer m.runningMu.Unlock()
	return m.running
}

// PendingWalEntries returns the number of WAL entries since the last
// snapshot.
func (m *Manager) PendingWalEntries() int {
	return m.wal.EntryCount()
}

// CurrentWalSequence returns the WAL's current sequence number.
func (m *Manager) CurrentWalSequence() uint64 {
	return m.wal.CurrentSequence()
}
