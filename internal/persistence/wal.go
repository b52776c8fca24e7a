// Package persistence implements crash-safe storage for player state: a
// write-ahead log of individual changes and periodic full snapshots,
// coordinated by Manager to bound both recovery time and steady-state
// write volume.
package persistence

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kcenon/common-game-server-sub000/pkg/cgserrors"
	"github.com/kcenon/common-game-server-sub000/pkg/logger"
)

// WalOperation classifies the kind of change a WalEntry records.
type WalOperation uint8

const (
	WalOpPlayerJoin WalOperation = iota + 1
	WalOpPlayerLeave
	WalOpStateUpdate
	WalOpInventoryChange
	WalOpQuestUpdate
)

// WalEntry is a single durable change record. Sequence and TimestampUs
// are assigned by Append and should be left zero by callers.
type WalEntry struct {
	Sequence    uint64
	TimestampUs uint64
	PlayerID    uint64
	Operation   WalOperation
	Data        []byte
}

// WalConfig controls where the log lives and how aggressively it syncs.
type WalConfig struct {
	Directory   string
	MaxFileSize int64
	SyncOnWrite bool
}

// DefaultWalConfig returns the log's production defaults: a MaxFileSize
// of 64MB and fsync on every append. The log does not read MaxFileSize;
// the file grows without a size limit.
func DefaultWalConfig() WalConfig {
	return WalConfig{
		Directory:   "/var/cgs/wal",
		MaxFileSize: 64 * 1024 * 1024,
		SyncOnWrite: true,
	}
}

// entryHeaderSize is sequence(8) + timestamp(8) + playerID(8) + op(1) + dataSize(4).
const entryHeaderSize = 8 + 8 + 8 + 1 + 4

// frameCRCSize is the trailing checksum appended after every entry body.
const frameCRCSize = 4

// WriteAheadLog is an append-only, checksummed log of player state
// changes. A single log file is kept open for the process lifetime and
// rewritten wholesale on truncation, which is acceptable because entries
// are pruned down to a small working set after every snapshot.
type WriteAheadLog struct {
	config WalConfig
	log    *logger.Logger

	mu           sync.Mutex
	file         *os.File
	open         bool
	nextSequence uint64
	entries      []WalEntry
	currentSize  int64
}

// NewWriteAheadLog constructs a log against config without touching disk.
// log may be nil, in which case the log operates silently.
func NewWriteAheadLog(config WalConfig, log *logger.Logger) *WriteAheadLog {
	return &WriteAheadLog{config: config, log: log, nextSequence: 1}
}

func (w *WriteAheadLog) path() string {
	return filepath.Join(w.config.Directory, "wal.bin")
}

// Open creates the log directory if needed, rebuilds its in-memory index
// from any existing file (truncating silently at the first corrupt or
// partial frame), and opens the file for appending. Open is idempotent.
func (w *WriteAheadLog) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.open {
		return nil
	}

	if err := os.MkdirAll(w.config.Directory, 0o755); err != nil {
		return cgserrors.Wrap(cgserrors.WalWriteFailed, "create WAL directory", err)
	}

	if err := w.rebuildIndex(); err != nil {
		return err
	}

	f, err := os.OpenFile(w.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return cgserrors.Wrap(cgserrors.WalWriteFailed, "open WAL file for writing", err)
	}

	w.file = f
	w.open = true
	return nil
}

// rebuildIndex replays the on-disk file into memory, stopping at the
// first frame that fails its length or checksum check. Mid-file
// corruption is treated the same as a clean EOF: everything before it is
// trusted, everything after it is discarded.
func (w *WriteAheadLog) rebuildIndex() error {
	data, err := os.ReadFile(w.path())
	if err != nil {
		if os.IsNotExist(err) {
			w.entries = nil
			w.nextSequence = 1
			w.currentSize = 0
			return nil
		}
		return cgserrors.Wrap(cgserrors.WalReadFailed, "read WAL file", err)
	}

	var entries []WalEntry
	var maxSeq uint64
	offset := 0

	for offset < len(data) {
		if offset+4 > len(data) {
			break
		}
		totalSize := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		offset += 4

		if totalSize < frameCRCSize || offset+totalSize > len(data) {
			break
		}

		frame := data[offset : offset+totalSize]
		body := frame[:totalSize-frameCRCSize]
		storedCRC := binary.LittleEndian.Uint32(frame[totalSize-frameCRCSize:])

		if crc32.ChecksumIEEE(body) != storedCRC {
			break
		}

		entry, ok := deserializeEntry(body)
		if !ok {
			break
		}

		if entry.Sequence > maxSeq {
			maxSeq = entry.Sequence
		}
		entries = append(entries, entry)
		offset += totalSize
	}

	if offset < len(data) && w.log != nil {
		w.log.WithFields(map[string]interface{}{
			"discarded_bytes":   len(data) - offset,
			"recovered_entries": len(entries),
		}).Warn("WAL file truncated at first corrupt or partial frame during recovery")
	}

	w.entries = entries
	w.nextSequence = maxSeq + 1
	w.currentSize = int64(offset)
	return nil
}

// Close flushes and closes the underlying file. Safe to call when
// already closed.
func (w *WriteAheadLog) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *WriteAheadLog) closeLocked() error {
	if !w.open {
		return nil
	}
	var err error
	if w.file != nil {
		_ = w.file.Sync()
		err = w.file.Close()
		w.file = nil
	}
	w.open = false
	return err
}

// Append assigns entry a sequence number and timestamp, writes it as a
// checksummed frame, and returns the assigned sequence.
func (w *WriteAheadLog) Append(entry WalEntry) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.open {
		return 0, cgserrors.New(cgserrors.PersistenceNotStarted, "WAL is not open")
	}

	entry.Sequence = w.nextSequence
	w.nextSequence++
	entry.TimestampUs = uint64(time.Now().UnixMicro())

	body := serializeEntry(entry)
	checksum := crc32.ChecksumIEEE(body)

	frame := make([]byte, 4+len(body)+frameCRCSize)
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(body)+frameCRCSize))
	copy(frame[4:], body)
	binary.LittleEndian.PutUint32(frame[4+len(body):], checksum)

	if _, err := w.file.Write(frame); err != nil {
		return 0, cgserrors.Wrap(cgserrors.WalWriteFailed, "write WAL entry", err)
	}

	if w.config.SyncOnWrite {
		if err := w.file.Sync(); err != nil {
			return 0, cgserrors.Wrap(cgserrors.WalWriteFailed, "sync WAL entry", err)
		}
	}

	w.currentSize += int64(len(frame))
	w.entries = append(w.entries, entry)

	return entry.Sequence, nil
}

// Replay invokes apply, in sequence order, for every entry with a
// sequence greater than afterSequence. Returns the number of entries
// replayed.
func (w *WriteAheadLog) Replay(afterSequence uint64, apply func(WalEntry)) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	var count uint64
	for _, e := range w.entries {
		if e.Sequence > afterSequence {
			apply(e)
			count++
		}
	}
	return count
}

// TruncateBefore drops every entry with sequence <= beforeSequence and
// rewrites the on-disk file from what remains. Used after a successful
// snapshot to bound steady-state log size.
func (w *WriteAheadLog) TruncateBefore(beforeSequence uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.open {
		return cgserrors.New(cgserrors.PersistenceNotStarted, "WAL is not open")
	}

	kept := w.entries[:0]
	for _, e := range w.entries {
		if e.Sequence > beforeSequence {
			kept = append(kept, e)
		}
	}
	w.entries = kept

	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}

	tmpPath := w.path() + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		w.reopenAfterFailedTruncate()
		return cgserrors.Wrap(cgserrors.WalTruncateFailed, "rewrite WAL after truncation", err)
	}

	var newSize int64
	for _, e := range w.entries {
		body := serializeEntry(e)
		checksum := crc32.ChecksumIEEE(body)
		frame := make([]byte, 4+len(body)+frameCRCSize)
		binary.LittleEndian.PutUint32(frame[0:4], uint32(len(body)+frameCRCSize))
		copy(frame[4:], body)
		binary.LittleEndian.PutUint32(frame[4+len(body):], checksum)
		if _, err := f.Write(frame); err != nil {
			_ = f.Close()
			w.reopenAfterFailedTruncate()
			return cgserrors.Wrap(cgserrors.WalTruncateFailed, "rewrite WAL after truncation", err)
		}
		newSize += int64(len(frame))
	}
	_ = f.Sync()
	_ = f.Close()

	if err := os.Rename(tmpPath, w.path()); err != nil {
		w.reopenAfterFailedTruncate()
		return cgserrors.Wrap(cgserrors.WalTruncateFailed, "replace WAL file after truncation", err)
	}
	w.currentSize = newSize

	reopened, err := os.OpenFile(w.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		w.open = false
		return cgserrors.Wrap(cgserrors.WalWriteFailed, "re-open WAL after truncation", err)
	}
	w.file = reopened
	return nil
}

func (w *WriteAheadLog) reopenAfterFailedTruncate() {
	f, err := os.OpenFile(w.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if w.log != nil {
			w.log.WithField("error", err).Error("failed to reopen WAL file after a failed truncation")
		}
		return
	}
	w.file = f
}

// Flush forces any buffered writes to stable storage.
func (w *WriteAheadLog) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.open {
		return cgserrors.New(cgserrors.PersistenceNotStarted, "WAL is not open")
	}
	if err := w.file.Sync(); err != nil {
		return cgserrors.Wrap(cgserrors.WalWriteFailed, "flush WAL", err)
	}
	return nil
}

// CurrentSequence returns the highest sequence number written so far, or
// 0 if nothing has been appended.
func (w *WriteAheadLog) CurrentSequence() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.nextSequence == 0 {
		return 0
	}
	return w.nextSequence - 1
}

// EntryCount returns the number of entries currently held in the log.
func (w *WriteAheadLog) EntryCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// IsOpen reports whether the log is ready to accept writes.
func (w *WriteAheadLog) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

func serializeEntry(e WalEntry) []byte {
	buf := make([]byte, entryHeaderSize+len(e.Data))
	binary.LittleEndian.PutUint64(buf[0:8], e.Sequence)
	binary.LittleEndian.PutUint64(buf[8:16], e.TimestampUs)
	binary.LittleEndian.PutUint64(buf[16:24], e.PlayerID)
	buf[24] = byte(e.Operation)
	binary.LittleEndian.PutUint32(buf[25:29], uint32(len(e.Data)))
	copy(buf[entryHeaderSize:], e.Data)
	return buf
}

func deserializeEntry(buf []byte) (WalEntry, bool) {
	if len(buf) < entryHeaderSize {
		return WalEntry{}, false
	}
	var e WalEntry
	e.Sequence = binary.LittleEndian.Uint64(buf[0:8])
	e.TimestampUs = binary.LittleEndian.Uint64(buf[8:16])
	e.PlayerID = binary.LittleEndian.Uint64(buf[16:24])
	e.Operation = WalOperation(buf[24])
	dataSize := binary.LittleEndian.Uint32(buf[25:29])

	if entryHeaderSize+int(dataSize) > len(buf) {
		return WalEntry{}, false
	}
	if dataSize > 0 {
		e.Data = append([]byte(nil), buf[entryHeaderSize:entryHeaderSize+int(dataSize)]...)
	}
	return e, true
}
