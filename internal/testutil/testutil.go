// Package testutil provides shared test helpers for setting up vaults,
// databases and a fully wired pipeline with a scripted AI.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/hibi/internal/annotate"
	"github.com/starford/hibi/internal/enrich"
	"github.com/starford/hibi/internal/index"
	"github.com/starford/hibi/internal/ingest"
	"github.com/starford/hibi/internal/notestore"
	"github.com/starford/hibi/internal/rollup"
	"github.com/starford/hibi/internal/selection"
	"github.com/starford/hibi/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "hibi-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// FakeAI returns canned results for every annotation operation.
type FakeAI struct {
	mu sync.Mutex

	Annotation annotate.Annotation
	Supplement annotate.Text
	Topics     annotate.Topics
	Summary    annotate.Text

	Calls []string
}

func (f *FakeAI) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, op)
}

// CallCount returns how many times op was invoked.
func (f *FakeAI) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *FakeAI) SummarizeTagExplain(context.Context, string, time.Time) annotate.Annotation {
	f.record("summarize")
	return f.Annotation
}

func (f *FakeAI) GenerateSupplement(context.Context, string, string) annotate.Text {
	f.record("supplement")
	return f.Supplement
}

func (f *FakeAI) ExtractTopics(context.Context, string) annotate.Topics {
	f.record("topics")
	return f.Topics
}

func (f *FakeAI) GenerateTopicSummary(context.Context, string) annotate.Text {
	f.record("topic_summary")
	return f.Summary
}

// Stack is a wired pipeline over a temporary vault and database.
type Stack struct {
	Vault     string
	FS        storage.Provider
	DB        *index.DB
	Notes     *notestore.Store
	AI        *FakeAI
	Ingest    *ingest.Ingestor
	Rollup    *rollup.Engine
	Selection *selection.Manager
	Location  *time.Location
}

// NewStack wires every pipeline component with ai standing in for the model.
func NewStack(t *testing.T, ai *FakeAI) *Stack {
	t.Helper()
	if ai == nil {
		ai = &FakeAI{}
	}
	vault, fs := TestVault(t)
	db := TestDB(t)
	logger := Logger()

	notes := notestore.New(fs, notestore.Layout{DailyDir: "memos", TopicDir: "topics", ImageDir: "images"}, logger)
	enricher := enrich.New(enrich.Config{Timeout: 5 * time.Second}, notes, logger)

	return &Stack{
		Vault:     vault,
		FS:        fs,
		DB:        db,
		Notes:     notes,
		AI:        ai,
		Ingest:    ingest.New(notes, enricher, ai, ingest.Config{Supplement: true, Location: time.UTC}, logger),
		Rollup:    rollup.NewEngine(notes, ai, nil, logger),
		Selection: selection.NewManager(ai, notes, selection.Config{Location: time.UTC}, logger),
		Location:  time.UTC,
	}
}

// Reindex brings the index up to date with the vault.
func (s *Stack) Reindex(t *testing.T) {
	t.Helper()
	if err := index.Sync(s.DB, s.FS, Logger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}
