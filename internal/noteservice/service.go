// Package noteservice is the single entry point shared by the HTTP API, the
// MCP server and the CLI. It turns request-level inputs (date strings, raw
// messages, selection IDs) into calls on the pipeline components.
package noteservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/starford/hibi/internal/annotate"
	"github.com/starford/hibi/internal/apperr"
	"github.com/starford/hibi/internal/checksum"
	"github.com/starford/hibi/internal/index"
	"github.com/starford/hibi/internal/ingest"
	"github.com/starford/hibi/internal/models"
	"github.com/starford/hibi/internal/notestore"
	"github.com/starford/hibi/internal/parser"
	"github.com/starford/hibi/internal/rollup"
	"github.com/starford/hibi/internal/selection"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path      string          `json:"path"`
	Kind      models.NoteKind `json:"kind"`
	Content   string          `json:"content"`
	Checksum  string          `json:"checksum"`
	Tags      []string        `json:"tags"`
	Links     []string        `json:"links"`
	Backlinks []string        `json:"backlinks"`
}

// Topics is the AI surface exposed directly to callers.
type Topics interface {
	ExtractTopics(ctx context.Context, text string) annotate.Topics
	GenerateTopicSummary(ctx context.Context, topic string) annotate.Text
}

// Deps bundles the components the service delegates to.
type Deps struct {
	Notes     *notestore.Store
	Index     index.NoteIndex
	Ingest    *ingest.Ingestor
	Rollup    *rollup.Engine
	Selection *selection.Manager
	Topics    Topics
	Location  *time.Location
}

// Service coordinates note reads, ingest, rollups and selections.
type Service struct {
	notes     *notestore.Store
	db        index.NoteIndex
	ingest    *ingest.Ingestor
	rollup    *rollup.Engine
	selection *selection.Manager
	topics    Topics
	loc       *time.Location
	now       func() time.Time
}

// NewService creates a new note service.
func NewService(d Deps) *Service {
	if d.Location == nil {
		d.Location = time.Local
	}
	return &Service{
		notes:     d.Notes,
		db:        d.Index,
		ingest:    d.Ingest,
		rollup:    d.Rollup,
		selection: d.Selection,
		topics:    d.Topics,
		loc:       d.Location,
		now:       time.Now,
	}
}

// Today returns the current calendar date in the note timezone.
func (s *Service) Today() time.Time {
	return s.now().In(s.loc)
}

// ParseDate parses a YYYY-MM-DD date in the note timezone. An empty string
// means today.
func (s *Service) ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.Today(), nil
	}
	t, err := time.ParseInLocation(models.DateLayout, raw, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("noteservice: date %q: %w", raw, apperr.ErrInvalidInput)
	}
	return t, nil
}

// AppendMessage runs one chat message through the ingest pipeline.
func (s *Service) AppendMessage(ctx context.Context, msg models.Message) (ingest.Result, error) {
	if strings.TrimSpace(msg.Text) == "" && len(msg.Attachments) == 0 {
		return ingest.Result{}, fmt.Errorf("noteservice: empty message: %w", apperr.ErrInvalidInput)
	}
	return s.ingest.Handle(ctx, msg)
}

// Rollup rolls up the note for date ("" = today).
func (s *Service) Rollup(ctx context.Context, date string) (rollup.Outcome, error) {
	d, err := s.ParseDate(date)
	if err != nil {
		return rollup.Outcome{}, err
	}
	return s.rollup.Run(ctx, d)
}

// DailyNote returns the daily note for date ("" = today).
func (s *Service) DailyNote(ctx context.Context, date string) (*NoteDetail, error) {
	d, err := s.ParseDate(date)
	if err != nil {
		return nil, err
	}
	content, err := s.notes.ReadDailyNote(ctx, d)
	if err != nil {
		return nil, err
	}
	return s.detail(s.notes.DailyPath(d), models.KindDaily, d.Format(models.DateLayout), content)
}

// TopicNote returns the topic note for tag.
func (s *Service) TopicNote(ctx context.Context, tag string) (*NoteDetail, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, fmt.Errorf("noteservice: tag is required: %w", apperr.ErrInvalidInput)
	}
	content, err := s.notes.ReadTopicNote(ctx, tag)
	if err != nil {
		return nil, err
	}
	return s.detail(s.notes.TopicPath(tag), models.KindTopic, tag, content)
}

// Image returns a stored image by file name.
func (s *Service) Image(ctx context.Context, name string) ([]byte, error) {
	if err := checkImageName(name); err != nil {
		return nil, err
	}
	return s.notes.ReadImage(ctx, name)
}

// SaveImage stores a new image and returns the embed to paste into a memo.
// An existing image is never overwritten.
func (s *Service) SaveImage(ctx context.Context, name string, data []byte) (string, error) {
	if err := checkImageName(name); err != nil {
		return "", err
	}
	if _, err := s.notes.ReadImage(ctx, name); err == nil {
		return "", fmt.Errorf("noteservice: image %q: %w", name, apperr.ErrAlreadyExists)
	}
	if err := s.notes.SaveImage(ctx, name, data); err != nil {
		return "", err
	}
	return "![[" + name + "]]", nil
}

func checkImageName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("noteservice: image name %q: %w", name, apperr.ErrInvalidInput)
	}
	return nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("noteservice: query is required: %w", apperr.ErrInvalidInput)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.db.Search(query, limit)
}

// Backlinks returns all note paths that link to target, a date or a tag.
func (s *Service) Backlinks(_ context.Context, target string) ([]string, error) {
	if strings.TrimSpace(target) == "" {
		return nil, fmt.Errorf("noteservice: target is required: %w", apperr.ErrInvalidInput)
	}
	bl, err := s.db.Backlinks(target)
	return nonNilSlice(bl), err
}

// Tags returns every indexed tag with its note count.
func (s *Service) Tags(_ context.Context) ([]index.TagCount, error) {
	tc, err := s.db.TagCounts()
	return nonNilSlice(tc), err
}

// NotesByTag lists the notes carrying tag.
func (s *Service) NotesByTag(_ context.Context, tag string) ([]index.NoteRow, error) {
	rows, err := s.db.NotesByTag(tag)
	return nonNilSlice(rows), err
}

// ExtractTopics asks the model for keywords in text.
func (s *Service) ExtractTopics(ctx context.Context, text string) (annotate.Topics, error) {
	if strings.TrimSpace(text) == "" {
		return annotate.Topics{}, fmt.Errorf("noteservice: text is required: %w", apperr.ErrInvalidInput)
	}
	return s.topics.ExtractTopics(ctx, text), nil
}

// LookupTopic asks the model for an overview of topic.
func (s *Service) LookupTopic(ctx context.Context, topic string) (annotate.Text, error) {
	if strings.TrimSpace(topic) == "" {
		return annotate.Text{}, fmt.Errorf("noteservice: topic is required: %w", apperr.ErrInvalidInput)
	}
	return s.topics.GenerateTopicSummary(ctx, topic), nil
}

// StartSelection opens a topic selection session for text.
func (s *Service) StartSelection(ctx context.Context, text string) (selection.Session, error) {
	if strings.TrimSpace(text) == "" {
		return selection.Session{}, fmt.Errorf("noteservice: text is required: %w", apperr.ErrInvalidInput)
	}
	return s.selection.Start(ctx, text)
}

// Selection returns a session snapshot.
func (s *Service) Selection(_ context.Context, id string) (selection.Session, error) {
	return s.selection.Get(id)
}

// Choose applies a choice to a session.
func (s *Service) Choose(ctx context.Context, id string, choice int, action selection.Action) (selection.ChoiceResult, error) {
	return s.selection.Choose(ctx, id, choice, action)
}

// AppendSummary writes a looked-up topic summary into today's note.
func (s *Service) AppendSummary(ctx context.Context, id string) (selection.ChoiceResult, error) {
	return s.selection.AppendSummary(ctx, id)
}

func (s *Service) detail(path string, kind models.NoteKind, self, content string) (*NoteDetail, error) {
	res, err := parser.Parse([]byte(content))
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(self)
	if err != nil {
		return nil, err
	}
	return &NoteDetail{
		Path:      path,
		Kind:      kind,
		Content:   content,
		Checksum:  checksum.Sum([]byte(content)),
		Tags:      nonNilSlice(res.Tags),
		Links:     nonNilSlice(res.Links),
		Backlinks: nonNilSlice(bl),
	}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
