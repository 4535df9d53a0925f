// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/hibi/internal/models"

// Provider is the interface for vault file operations. All paths are
// relative to the vault root.
type Provider interface {
	// Root returns the absolute vault root.
	Root() string
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
	// Create writes content only if path does not exist yet. It reports
	// whether the file was created.
	Create(path string, content []byte) (bool, error)
	// Write atomically replaces the file at path.
	Write(path string, content []byte) error
	// Append appends content to the file at path, creating it if needed.
	Append(path string, content []byte) error
}
