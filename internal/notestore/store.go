// Package notestore owns the on-disk layout of daily notes, topic notes, and
// stored images.
package notestore

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/starford/hibi/internal/apperr"
	"github.com/starford/hibi/internal/models"
	"github.com/starford/hibi/internal/parser"
	"github.com/starford/hibi/internal/storage"
)

// Layout names the vault-relative directories the store writes to.
type Layout struct {
	DailyDir string
	TopicDir string
	ImageDir string
}

// RollupStatus is the outcome of TryBeginRollup.
type RollupStatus int

const (
	Proceed RollupStatus = iota
	AlreadyDone
	MemoEmpty
	MemoSectionMissing
)

func (s RollupStatus) String() string {
	switch s {
	case Proceed:
		return "proceed"
	case AlreadyDone:
		return "already_done"
	case MemoEmpty:
		return "memo_empty"
	case MemoSectionMissing:
		return "memo_section_missing"
	default:
		return fmt.Sprintf("RollupStatus(%d)", int(s))
	}
}

// RollupCheck is returned by TryBeginRollup. Memo is set only for Proceed.
type RollupCheck struct {
	Status RollupStatus
	Memo   string
}

// Store coordinates note reads and writes on top of a storage.Provider.
type Store struct {
	fs     storage.Provider
	layout Layout
	locks  *pathLocks
	logger *slog.Logger
}

// New creates a Store writing through fs with the given layout.
func New(fs storage.Provider, layout Layout, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		fs:     fs,
		layout: layout,
		locks:  newPathLocks(),
		logger: logger,
	}
}

// Layout returns the configured directory layout.
func (s *Store) Layout() Layout {
	return s.layout
}

// DailyPath returns the vault-relative path of the note for date.
func (s *Store) DailyPath(date time.Time) string {
	return path.Join(s.layout.DailyDir, date.Format(models.DateLayout)+".md")
}

// TopicPath returns the vault-relative path of the note for tag.
func (s *Store) TopicPath(tag string) string {
	return path.Join(s.layout.TopicDir, TopicFileName(tag))
}

// ImagePath returns the vault-relative path of a stored image.
func (s *Store) ImagePath(name string) string {
	return path.Join(s.layout.ImageDir, name)
}

var topicNameReplacer = strings.NewReplacer("/", "-", `\`, "-")

// TopicName is the canonical name of the topic note for tag. It is both the
// file name stem and the wikilink target. Path separators are replaced so a
// tag never addresses another directory. An empty result means tag cannot
// name a note.
func TopicName(tag string) string {
	return strings.TrimSpace(topicNameReplacer.Replace(strings.TrimSpace(tag)))
}

// TopicFileName maps a tag to its file name.
func TopicFileName(tag string) string {
	return TopicName(tag) + ".md"
}

// DailyTemplate renders the header of a fresh daily note.
func DailyTemplate(date time.Time) string {
	day := func(offset int) string {
		return models.Wikilink(date.AddDate(0, 0, offset).Format(models.DateLayout))
	}
	return date.Format(models.DateLayout) + "\n" +
		day(-7) + "||" + day(-1) + "||" + day(1) + "||" + day(7) + "\n" +
		"---\n\n" +
		models.MemoMarker + "\n"
}

// EnsureDailyNote creates the note for date from the template if it does not
// exist. An existing note is left untouched.
func (s *Store) EnsureDailyNote(_ context.Context, date time.Time) (string, error) {
	p := s.DailyPath(date)
	unlock := s.locks.lock(p)
	defer unlock()

	return p, s.ensureLocked(p, date)
}

func (s *Store) ensureLocked(p string, date time.Time) error {
	created, err := s.fs.Create(p, []byte(DailyTemplate(date)))
	if err != nil {
		return err
	}
	if created {
		s.logger.Info("notestore: created daily note", slog.String("path", p))
	}
	return nil
}

// AppendMemoEntry appends a pre-rendered block to the note for date,
// creating the note first when needed. Existing content is not re-read.
func (s *Store) AppendMemoEntry(_ context.Context, date time.Time, block string) error {
	p := s.DailyPath(date)
	unlock := s.locks.lock(p)
	defer unlock()

	if err := s.ensureLocked(p, date); err != nil {
		return err
	}
	return s.fs.Append(p, []byte(block))
}

// ReadDailyNote returns the content of the note for date.
func (s *Store) ReadDailyNote(_ context.Context, date time.Time) (string, error) {
	p := s.DailyPath(date)
	unlock := s.locks.lock(p)
	defer unlock()

	data, err := s.fs.Read(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// TryBeginRollup inspects the note for date and reports whether a rollup may
// proceed. A missing note yields apperr.ErrNotFound.
func (s *Store) TryBeginRollup(_ context.Context, date time.Time) (RollupCheck, error) {
	p := s.DailyPath(date)
	unlock := s.locks.lock(p)
	defer unlock()

	data, err := s.fs.Read(p)
	if err != nil {
		return RollupCheck{}, err
	}
	content := string(data)

	if parser.HasSummary(content) {
		return RollupCheck{Status: AlreadyDone}, nil
	}
	memo, ok := parser.SplitMemo(content)
	if !ok {
		return RollupCheck{Status: MemoSectionMissing}, nil
	}
	if strings.TrimSpace(memo) == "" {
		return RollupCheck{Status: MemoEmpty}, nil
	}
	return RollupCheck{Status: Proceed, Memo: memo}, nil
}

// CommitRollup appends the summary section and, when backlinks is non-empty,
// the detail-notes section. It refuses to write a second summary.
func (s *Store) CommitRollup(_ context.Context, date time.Time, summary, tagLine string, backlinks []string) error {
	p := s.DailyPath(date)
	unlock := s.locks.lock(p)
	defer unlock()

	data, err := s.fs.Read(p)
	if err != nil {
		return err
	}
	if parser.HasSummary(string(data)) {
		return fmt.Errorf("notestore: commit %s: %w", p, apperr.ErrAlreadyRolledUp)
	}

	var b strings.Builder
	if len(data) > 0 && data[len(data)-1] != '\n' {
		b.WriteString("\n")
	}
	b.WriteString("\n" + models.SummaryMarker + "\n")
	b.WriteString(summary + "\n")
	b.WriteString(tagLine + "\n")
	writeDetails(&b, backlinks)

	return s.fs.Append(p, []byte(b.String()))
}

// AppendDetailNotes appends the detail-notes section listing backlinks.
func (s *Store) AppendDetailNotes(_ context.Context, date time.Time, backlinks []string) error {
	if len(backlinks) == 0 {
		return nil
	}
	p := s.DailyPath(date)
	unlock := s.locks.lock(p)
	defer unlock()

	var b strings.Builder
	writeDetails(&b, backlinks)
	return s.fs.Append(p, []byte(b.String()))
}

func writeDetails(b *strings.Builder, backlinks []string) {
	if len(backlinks) == 0 {
		return
	}
	b.WriteString("\n" + models.DetailMarker + "\n")
	b.WriteString(strings.Join(backlinks, " ") + "\n")
}

// WriteTopicNote overwrites the topic note for tag. The note is written
// under TopicName(tag).
func (s *Store) WriteTopicNote(_ context.Context, tag string, date time.Time, body string) (string, error) {
	tag = TopicName(tag)
	if tag == "" {
		return "", fmt.Errorf("notestore: empty topic tag: %w", apperr.ErrInvalidInput)
	}
	p := s.TopicPath(tag)
	content := "# " + tag + "\n\n" +
		models.Wikilink(date.Format(models.DateLayout)) + "\n\n" +
		body + "\n\n" +
		"#" + tag

	unlock := s.locks.lock(p)
	defer unlock()
	if err := s.fs.Write(p, []byte(content)); err != nil {
		return "", err
	}
	s.logger.Debug("notestore: wrote topic note", slog.String("path", p))
	return p, nil
}

// ReadTopicNote returns the content of the topic note for tag.
func (s *Store) ReadTopicNote(_ context.Context, tag string) (string, error) {
	data, err := s.fs.Read(s.TopicPath(tag))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SaveImage stores data under the image directory.
func (s *Store) SaveImage(_ context.Context, name string, data []byte) error {
	return s.fs.Write(s.ImagePath(name), data)
}

// ReadImage returns a stored image.
func (s *Store) ReadImage(_ context.Context, name string) ([]byte, error) {
	return s.fs.Read(s.ImagePath(name))
}
