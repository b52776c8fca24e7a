package persistence

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kcenon/common-game-server-sub000/pkg/cgserrors"
	"github.com/kcenon/common-game-server-sub000/pkg/logger"
)

// PlayerSnapshot is one player's serialized state at snapshot time. Data
// is opaque to the persistence layer; callers choose their own encoding.
type PlayerSnapshot struct {
	PlayerID   uint64
	InstanceID uint32
	Data       []byte
}

// Snapshot is a full capture of every active player's state, anchored to
// the WAL sequence current at the time it was taken so replay can resume
// from exactly where the snapshot left off.
type Snapshot struct {
	WalSequence uint64
	TimestampUs uint64
	Players     []PlayerSnapshot
}

// SnapshotConfig controls where snapshots live and how many are kept.
type SnapshotConfig struct {
	Directory   string
	MaxRetained uint32
}

// DefaultSnapshotConfig returns production defaults: retain the 3 most
// recent snapshots.
func DefaultSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{Directory: "/var/cgs/snapshots", MaxRetained: 3}
}

// snapshotHeaderSize is walSequence(8) + timestampUs(8) + playerCount(4).
const snapshotHeaderSize = 8 + 8 + 4

// playerHeaderSize is playerID(8) + instanceID(4) + dataSize(4).
const playerHeaderSize = 8 + 4 + 4

// SnapshotStore manages creation, storage, and retrieval of point-in-time
// player snapshots on disk, pruning old files beyond a retention limit.
type SnapshotStore struct {
	config SnapshotConfig
	log    *logger.Logger

	mu   sync.Mutex
	open bool
}

// NewSnapshotStore constructs a store against config without touching disk.
// log may be nil, in which case the store operates silently.
func NewSnapshotStore(config SnapshotConfig, log *logger.Logger) *SnapshotStore {
	return &SnapshotStore{config: config, log: log}
}

// Open creates the snapshot directory if needed. Idempotent.
func (s *SnapshotStore) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return nil
	}
	if err := os.MkdirAll(s.config.Directory, 0o755); err != nil {
		return cgserrors.Wrap(cgserrors.SnapshotWriteFailed, "create snapshot directory", err)
	}
	s.open = true
	return nil
}

// Close marks the store unavailable for further Save/LoadLatest calls.
func (s *SnapshotStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
}

// Save writes snapshot to disk as "snapshot_<timestampUs>.bin", then
// prunes the oldest files beyond MaxRetained. A zero TimestampUs is
// filled in with the current time.
func (s *SnapshotStore) Save(snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return cgserrors.New(cgserrors.PersistenceNotStarted, "snapshot store is not open")
	}

	if snapshot.TimestampUs == 0 {
		snapshot.TimestampUs = uint64(time.Now().UnixMicro())
	}

	path := s.snapshotPath(snapshot.TimestampUs)
	data := serializeSnapshot(snapshot)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return cgserrors.Wrap(cgserrors.SnapshotWriteFailed, "write snapshot file", err)
	}

	s.pruneOldSnapshots()
	return nil
}

// LoadLatest reads the most recently timestamped snapshot file. Returns
// a *cgserrors.Error with SnapshotReadFailed if none exist, or
// SnapshotCorrupted if the newest file fails to parse.
func (s *SnapshotStore) LoadLatest() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.listSnapshots()
	if len(files) == 0 {
		return Snapshot{}, cgserrors.New(cgserrors.SnapshotReadFailed, "no snapshots found")
	}

	latest := files[len(files)-1]
	data, err := os.ReadFile(latest)
	if err != nil {
		return Snapshot{}, cgserrors.Wrap(cgserrors.SnapshotReadFailed, "read snapshot file", err)
	}

	return deserializeSnapshot(data)
}

// Count returns the number of snapshot files currently on disk.
func (s *SnapshotStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listSnapshots())
}

// IsOpen reports whether the store is ready to save or load.
func (s *SnapshotStore) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *SnapshotStore) snapshotPath(timestampUs uint64) string {
	return filepath.Join(s.config.Directory, "snapshot_"+strconv.FormatUint(timestampUs, 10)+".bin")
}

// listSnapshots returns snapshot file paths sorted oldest-first; the
// lexical sort on the timestamp-named files matches numeric order since
// all timestamps are the same microsecond-epoch magnitude.
func (s *SnapshotStore) listSnapshots() []string {
	entries, err := os.ReadDir(s.config.Directory)
	if err != nil {
		return nil
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "snapshot_") || !strings.HasSuffix(name, ".bin") {
			continue
		}
		files = append(files, filepath.Join(s.config.Directory, name))
	}
	sort.Strings(files)
	return files
}

func (s *SnapshotStore) pruneOldSnapshots() {
	files := s.listSnapshots()
	max := int(s.config.MaxRetained)
	for len(files) > max {
		if err := os.Remove(files[0]); err != nil && s.log != nil {
			s.log.WithFields(map[string]interface{}{"file": files[0], "error": err}).
				Warn("failed to prune old snapshot file; retained past MaxRetained")
		}
		files = files[1:]
	}
}

func serializeSnapshot(snap Snapshot) []byte {
	size := snapshotHeaderSize
	for _, p := range snap.Players {
		size += playerHeaderSize + len(p.Data)
	}

	buf := make([]byte, size)
	binary.LittleEndian.PutUint64(buf[0:8], snap.WalSequence)
	binary.LittleEndian.PutUint64(buf[8:16], snap.TimestampUs)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(snap.Players)))

	offset := snapshotHeaderSize
	for _, p := range snap.Players {
		binary.LittleEndian.PutUint64(buf[offset:offset+8], p.PlayerID)
		binary.LittleEndian.PutUint32(buf[offset+8:offset+12], p.InstanceID)
		binary.LittleEndian.PutUint32(buf[offset+12:offset+16], uint32(len(p.Data)))
		copy(buf[offset+playerHeaderSize:], p.Data)
		offset += playerHeaderSize + len(p.Data)
	}

	return buf
}

func deserializeSnapshot(buf []byte) (Snapshot, error) {
	if len(buf) < snapshotHeaderSize {
		return Snapshot{}, cgserrors.New(cgserrors.SnapshotCorrupted, "snapshot too small for header")
	}

	var snap Snapshot
	snap.WalSequence = binary.LittleEndian.Uint64(buf[0:8])
	snap.TimestampUs = binary.LittleEndian.Uint64(buf[8:16])
	count := binary.LittleEndian.Uint32(buf[16:20])

	offset := snapshotHeaderSize
	for i := uint32(0); i < count; i++ {
		if offset+playerHeaderSize > len(buf) {
			return Snapshot{}, cgserrors.New(cgserrors.SnapshotCorrupted, "snapshot truncated at player header")
		}

		var p PlayerSnapshot
		p.PlayerID = binary.LittleEndian.Uint64(buf[offset : offset+8])
		p.InstanceID = binary.LittleEndian.Uint32(buf[offset+8 : offset+12])
		dataSize := binary.LittleEndian.Uint32(buf[offset+12 : offset+16])
		offset += playerHeaderSize

		if offset+int(dataSize) > len(buf) {
			return Snapshot{}, cgserrors.New(cgserrors.SnapshotCorrupted, "player data truncated")
		}
		p.Data = append([]byte(nil), buf[offset:offset+int(dataSize)]...)
		offset += int(dataSize)

		snap.Players = append(snap.Players, p)
	}

	return snap, nil
}
