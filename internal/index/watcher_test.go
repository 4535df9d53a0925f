package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/hibi/internal/models"
	"github.com/starford/hibi/internal/storage"
)

// watcherTestEnv sets up a vault dir, storage, and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, storage.Provider, *DB) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	dbFile, err := os.CreateTemp("", "hibi-watcher-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })
	db, err := Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return store.Root(), store, db
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

// recorder collects watcher callbacks.
type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) record(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) count(op, path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.changes {
		if c.Op == op && c.Path == path {
			n++
		}
	}
	return n
}

func (r *recorder) find(op, path string) (Change, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.changes {
		if c.Op == op && c.Path == path {
			return c, true
		}
	}
	return Change{}, false
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatch(t *testing.T, db *DB, store storage.Provider, cb EventCallback) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = Watch(ctx, db, store, quietLogger(), cb)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	rec := &recorder{}
	startWatch(t, db, store, rec.record)

	_ = os.WriteFile(filepath.Join(vaultDir, "go.md"), []byte("# Go\n\n#go"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("go.md")
		return cs != ""
	}, "new file not indexed by watcher")

	n, err := db.GetNote("go.md")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if len(n.Tags) != 1 || n.Tags[0] != "go" {
		t.Errorf("tags = %v, want [go]", n.Tags)
	}

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		_, ok := rec.find(OpCreated, "go.md")
		return ok
	}, "expected created:go.md callback")
	if c, _ := rec.find(OpCreated, "go.md"); c.Kind != models.KindTopic {
		t.Errorf("kind = %q, want topic", c.Kind)
	}
}

func TestWatcher_AppendsCoalesced(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	memos := filepath.Join(vaultDir, "memos")
	_ = os.MkdirAll(memos, 0o755)
	note := filepath.Join(memos, "2025-03-01.md")
	_ = os.WriteFile(note, []byte("2025-03-01\n---\n\n## メモ\n"), 0o644)
	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	startWatch(t, db, store, rec.record)

	f, err := os.OpenFile(note, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{"\n09:00 -\n", " first #go\n", " second\n"} {
		_, _ = f.WriteString(line)
	}
	f.Close()

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.count(OpUpdated, "memos/2025-03-01.md") > 0
	}, "append not re-indexed")

	time.Sleep(2 * settleDelay)
	if n := rec.count(OpUpdated, "memos/2025-03-01.md"); n != 1 {
		t.Errorf("updated callbacks = %d, want 1", n)
	}
	if c, _ := rec.find(OpUpdated, "memos/2025-03-01.md"); c.Kind != models.KindDaily {
		t.Errorf("kind = %q, want daily", c.Kind)
	}
	n, err := db.GetNote("memos/2025-03-01.md")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if len(n.Tags) != 1 || n.Tags[0] != "go" {
		t.Errorf("tags = %v, want [go]", n.Tags)
	}
}

func TestWatcher_NewDirWatched(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	startWatch(t, db, store, nil)

	subDir := filepath.Join(vaultDir, "memos")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(subDir, "2025-03-01.md"), []byte("2025-03-01\n---\n\n## メモ\n"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("memos/2025-03-01.md")
		return cs != ""
	}, "file in new subdir not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	_ = os.WriteFile(filepath.Join(vaultDir, "del.md"), []byte("# Delete Me"), 0o644)
	_ = Sync(db, store, quietLogger())

	if cs, _ := db.GetChecksum("del.md"); cs == "" {
		t.Fatal("precondition: file should be indexed")
	}

	rec := &recorder{}
	startWatch(t, db, store, rec.record)

	_ = os.Remove(filepath.Join(vaultDir, "del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("del.md")
		return cs == "" && rec.count(OpDeleted, "del.md") == 1
	}, "deleted file still in index")
}

func TestWatcher_RenameReindexes(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	_ = os.WriteFile(filepath.Join(vaultDir, "old.md"), []byte("# Rename"), 0o644)
	_ = Sync(db, store, quietLogger())

	startWatch(t, db, store, nil)

	_ = os.Rename(filepath.Join(vaultDir, "old.md"), filepath.Join(vaultDir, "renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		oldCS, _ := db.GetChecksum("old.md")
		newCS, _ := db.GetChecksum("renamed.md")
		return oldCS == "" && newCS != ""
	}, "rename: old path should be removed and new path indexed")
}

func TestWatcher_RemovedDirDropsNotes(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	topics := filepath.Join(vaultDir, "topics")
	_ = os.MkdirAll(topics, 0o755)
	_ = os.WriteFile(filepath.Join(topics, "go.md"), []byte("# go\n"), 0o644)
	_ = os.WriteFile(filepath.Join(topics, "sqlite.md"), []byte("# sqlite\n"), 0o644)
	_ = Sync(db, store, quietLogger())

	startWatch(t, db, store, nil)

	_ = os.RemoveAll(topics)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		all, _ := db.AllChecksums()
		return len(all) == 0
	}, "notes under removed dir still indexed")
}
