package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kcenon/common-game-server-sub000/pkg/cgserrors"
)

func newTestWal(t *testing.T) *WriteAheadLog {
	t.Helper()
	dir := t.TempDir()
	wal := NewWriteAheadLog(WalConfig{Directory: dir, SyncOnWrite: false}, nil)
	if err := wal.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = wal.Close() })
	return wal
}

func TestAppendAssignsIncreasingSequences(t *testing.T) {
	wal := newTestWal(t)

	seq1, err := wal.Append(WalEntry{PlayerID: 1, Operation: WalOpPlayerJoin})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	seq2, err := wal.Append(WalEntry{PlayerID: 2, Operation: WalOpStateUpdate})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if seq1 != 1 || seq2 != 2 {
		t.Fatalf("sequences = %d,%d want 1,2", seq1, seq2)
	}
	if got := wal.CurrentSequence(); got != 2 {
		t.Fatalf("CurrentSequence() = %d, want 2", got)
	}
	if got := wal.EntryCount(); got != 2 {
		t.Fatalf("EntryCount() = %d, want 2", got)
	}
}

func TestAppendRejectsWhenNotOpen(t *testing.T) {
	wal := NewWriteAheadLog(WalConfig{Directory: t.TempDir()}, nil)
	if _, err := wal.Append(WalEntry{}); !cgserrors.Is(err, cgserrors.PersistenceNotStarted) {
		t.Fatalf("Append() error = %v, want PersistenceNotStarted", err)
	}
}

func TestReplayInvokesOnlyEntriesAfterSequence(t *testing.T) {
	wal := newTestWal(t)
	_, _ = wal.Append(WalEntry{PlayerID: 1, Operation: WalOpPlayerJoin})
	_, _ = wal.Append(WalEntry{PlayerID: 2, Operation: WalOpStateUpdate})
	_, _ = wal.Append(WalEntry{PlayerID: 3, Operation: WalOpQuestUpdate})

	var replayed []uint64
	count := wal.Replay(1, func(e WalEntry) { replayed = append(replayed, e.Sequence) })

	if count != 2 {
		t.Fatalf("Replay() count = %d, want 2", count)
	}
	if len(replayed) != 2 || replayed[0] != 2 || replayed[1] != 3 {
		t.Fatalf("replayed = %v, want [2 3]", replayed)
	}
}

func TestRecoverAfterReopenPreservesEntries(t *testing.T) {
	dir := t.TempDir()
	wal := NewWriteAheadLog(WalConfig{Directory: dir, SyncOnWrite: true}, nil)
	if err := wal.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_, _ = wal.Append(WalEntry{PlayerID: 1, Operation: WalOpPlayerJoin, Data: []byte("hello")})
	_, _ = wal.Append(WalEntry{PlayerID: 2, Operation: WalOpStateUpdate})
	_ = wal.Close()

	reopened := NewWriteAheadLog(WalConfig{Directory: dir}, nil)
	if err := reopened.Open(); err != nil {
		t.Fatalf("re-Open() error = %v", err)
	}
	defer reopened.Close()

	if got := reopened.EntryCount(); got != 2 {
		t.Fatalf("EntryCount() after reopen = %d, want 2", got)
	}
	if got := reopened.CurrentSequence(); got != 2 {
		t.Fatalf("CurrentSequence() after reopen = %d, want 2", got)
	}

	var data []byte
	reopened.Replay(0, func(e WalEntry) {
		if e.Sequence == 1 {
			data = e.Data
		}
	})
	if string(data) != "hello" {
		t.Fatalf("recovered Data = %q, want %q", data, "hello")
	}
}

func TestRebuildIndexTruncatesAtCorruptFrame(t *testing.T) {
	dir := t.TempDir()
	wal := NewWriteAheadLog(WalConfig{Directory: dir, SyncOnWrite: true}, nil)
	if err := wal.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_, _ = wal.Append(WalEntry{PlayerID: 1, Operation: WalOpPlayerJoin})
	_, _ = wal.Append(WalEntry{PlayerID: 2, Operation: WalOpStateUpdate})
	_ = wal.Close()

	path := filepath.Join(dir, "wal.bin")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open wal file: %v", err)
	}
	if _, err := f.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x01, 0x02}); err != nil {
		t.Fatalf("append garbage: %v", err)
	}
	_ = f.Close()

	reopened := NewWriteAheadLog(WalConfig{Directory: dir}, nil)
	if err := reopened.Open(); err != nil {
		t.Fatalf("re-Open() error = %v", err)
	}
	defer reopened.Close()

	if got := reopened.EntryCount(); got != 2 {
		t.Fatalf("EntryCount() after corruption = %d, want 2 (trusted prefix only)", got)
	}
}

func TestTruncateBeforeDropsOldEntriesAndPersists(t *testing.T) {
	dir := t.TempDir()
	wal := NewWriteAheadLog(WalConfig{Directory: dir, SyncOnWrite: true}, nil)
	if err := wal.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_, _ = wal.Append(WalEntry{PlayerID: 1, Operation: WalOpPlayerJoin})
	_, _ = wal.Append(WalEntry{PlayerID: 2, Operation: WalOpStateUpdate})
	seq3, _ := wal.Append(WalEntry{PlayerID: 3, Operation: WalOpQuestUpdate})

	if err := wal.TruncateBefore(seq3 - 1); err != nil {
		t.Fatalf("TruncateBefore() error = %v", err)
	}
	if got := wal.EntryCount(); got != 1 {
		t.Fatalf("EntryCount() after truncate = %d, want 1", got)
	}

	// Append should still work against the reopened file.
	if _, err := wal.Append(WalEntry{PlayerID: 4, Operation: WalOpPlayerLeave}); err != nil {
		t.Fatalf("Append() after truncate error = %v", err)
	}
	if err := wal.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened := NewWriteAheadLog(WalConfig{Directory: dir}, nil)
	if err := reopened.Open(); err != nil {
		t.Fatalf("re-Open() after truncate error = %v", err)
	}
	defer reopened.Close()
	if got := reopened.EntryCount(); got != 2 {
		t.Fatalf("EntryCount() after reopen = %d, want 2", got)
	}
}
