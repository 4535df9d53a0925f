package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/hibi/internal/apperr"
)

func tempVault(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempVault(t)
	content := []byte("# Hello\nWorld\n")
	if err := s.Write("note.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempVault(t)
	if err := s.Write("topics/deep/c.md", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("topics/deep/c.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestReadMissingIsNotFound(t *testing.T) {
	s := tempVault(t)
	_, err := s.Read("nope.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateIsExclusive(t *testing.T) {
	s := tempVault(t)
	created, err := s.Create("memos/2025-01-01.md", []byte("first"))
	if err != nil || !created {
		t.Fatalf("Create = %v, %v", created, err)
	}
	created, err = s.Create("memos/2025-01-01.md", []byte("second"))
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if created {
		t.Error("second Create should report not created")
	}
	got, _ := s.Read("memos/2025-01-01.md")
	if string(got) != "first" {
		t.Errorf("content = %q, want first", got)
	}
}

func TestAppend(t *testing.T) {
	s := tempVault(t)
	if err := s.Append("log.md", []byte("a")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append("log.md", []byte("b")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, _ := s.Read("log.md")
	if string(got) != "ab" {
		t.Errorf("content = %q, want ab", got)
	}
}

func TestExists(t *testing.T) {
	s := tempVault(t)
	ok, err := s.Exists("x.md")
	if err != nil || ok {
		t.Fatalf("Exists before write = %v, %v", ok, err)
	}
	_ = s.Write("x.md", []byte("x"))
	ok, err = s.Exists("x.md")
	if err != nil || !ok {
		t.Fatalf("Exists after write = %v, %v", ok, err)
	}
}

func TestList(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("memos/a.md", []byte("a"))
	_ = s.Write("topics/b.md", []byte("b"))
	_ = s.Write("images/readme.txt", []byte("not md"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len = %d, want 2", len(items))
	}

	items, err = s.List("missing")
	if err != nil {
		t.Fatalf("List missing dir: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("len = %d, want 0", len(items))
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempVault(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
		if err := s.Append(p, []byte("x")); err == nil {
			t.Errorf("expected error for append to %q", p)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("atomic.md", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic.md", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.md")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.root, ".hibi-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestAppendFailureIsStorageError(t *testing.T) {
	s := tempVault(t)
	if err := os.Mkdir(filepath.Join(s.root, "dir.md"), 0o755); err != nil {
		t.Fatal(err)
	}
	err := s.Append("dir.md", []byte("x"))
	if !apperr.IsStorage(err) {
		t.Errorf("err = %v, want StorageError", err)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/hibi-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "hibi-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
