//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"strings"
)

// Without FTS5 the body stored in the notes table is scanned directly.
func initFTS(_ *sql.DB) error { return nil }

func ftsUpsert(_ *sql.Tx, _, _, _ string, _ []string) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) {}

// Search returns notes whose title, body or tags contain query.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	return db.likeSearch(strings.TrimSpace(query), limit)
}
