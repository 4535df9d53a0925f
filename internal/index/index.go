package index

// NoteIndex is the read/write surface of the index used by the HTTP and MCP
// servers.
type NoteIndex interface {
	UpsertNote(n NoteRow, body string, links []string) error
	DeleteNote(path string) error
	GetChecksum(path string) (string, error)
	GetNote(path string) (*NoteRow, error)
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(target string) ([]string, error)
	NotesByTag(tag string) ([]NoteRow, error)
	TagCounts() ([]TagCount, error)
	AllChecksums() (map[string]string, error)
	Ping() error
	Close() error
}

var _ NoteIndex = (*DB)(nil)
