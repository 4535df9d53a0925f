//go:build sqlite_fts5

package index

import (
	"testing"
	"time"
)

func upsertBody(t *testing.T, db *DB, path, title, body string) {
	t.Helper()
	row := NoteRow{Path: path, Kind: KindOf(path), Title: title, Checksum: path, Tags: []string{}, UpdatedAt: time.Now()}
	if err := db.UpsertNote(row, body, nil); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}
}

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes_fts`).Scan(&count); err != nil {
		t.Fatalf("notes_fts table missing: %v", err)
	}
}

func TestFTS5_JapaneseSubstring(t *testing.T) {
	db := testDB(t)
	upsertBody(t, db, "memos/2025-03-01.md", "2025-03-01", "今日は全文検索エンジンを試した。")

	results, err := db.Search("全文検索", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "memos/2025-03-01.md" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_ShortQueryFallsBackToLike(t *testing.T) {
	db := testDB(t)
	upsertBody(t, db, "topics/go.md", "Go", "Go は静的型付け言語")

	results, err := db.Search("Go", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "topics/go.md" {
		t.Fatalf("results = %+v", results)
	}
}

func TestFTS5_QueryIsLiteral(t *testing.T) {
	db := testDB(t)
	upsertBody(t, db, "topics/sql.md", "SQL", `use "NOT NULL" columns`)

	// FTS operators and quotes must not break the query.
	for _, q := range []string{`"NOT NULL"`, "NOT NULL"} {
		results, err := db.Search(q, 10)
		if err != nil {
			t.Fatalf("Search(%q): %v", q, err)
		}
		if len(results) != 1 {
			t.Errorf("Search(%q) = %+v", q, results)
		}
	}
	results, err := db.Search("NOT OR AND", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("operators matched as syntax: %+v", results)
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	upsertBody(t, db, "gone.md", "", "vanishing content")
	_ = db.DeleteNote("gone.md")

	results, _ := db.Search("vanishing", 10)
	for _, r := range results {
		if r.Path == "gone.md" {
			t.Error("deleted note still in FTS index")
		}
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	upsertBody(t, db, "evo.md", "Old", "original text")
	upsertBody(t, db, "evo.md", "New", "replacement text")

	results, _ := db.Search("original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search("replacement", 10)
	if len(results) != 1 || results[0].Title != "New" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
