// Package ingest turns inbound chat messages into memo entries on the daily
// note.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/hibi/internal/annotate"
	"github.com/starford/hibi/internal/enrich"
	"github.com/starford/hibi/internal/metrics"
	"github.com/starford/hibi/internal/models"
	"github.com/starford/hibi/internal/sse"
)

// Store is the subset of the note store used on the append path.
type Store interface {
	EnsureDailyNote(ctx context.Context, date time.Time) (string, error)
	AppendMemoEntry(ctx context.Context, date time.Time, block string) error
}

// Enricher fetches link previews and images.
type Enricher interface {
	FetchMetadata(ctx context.Context, url string) models.URLMetadata
	DownloadThumbnail(ctx context.Context, imageURL, dedupKey string) (string, bool)
	SaveAttachment(ctx context.Context, a models.Attachment) (string, bool)
}

// Annotator writes the AI supplement for a message.
type Annotator interface {
	GenerateSupplement(ctx context.Context, text, reference string) annotate.Text
}

// Config controls which messages are ingested and how.
type Config struct {
	// Channels is the allowlist of channel identifiers. Empty accepts all.
	Channels   []string
	Supplement bool
	Location   *time.Location
}

// Result describes what Handle did with a message.
type Result struct {
	Ignored bool
	Path    string
	Entry   models.MemoEntry
	Block   string
}

// Ingestor appends one memo block per accepted message.
type Ingestor struct {
	store     Store
	enricher  Enricher
	annotator Annotator
	events    sse.Publisher
	cfg       Config
	channels  map[string]struct{}
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithClock overrides the time source used for messages without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) { i.now = now }
}

// WithEvents publishes memo.appended events to p.
func WithEvents(p sse.Publisher) Option {
	return func(i *Ingestor) { i.events = p }
}

// New creates an Ingestor.
func New(store Store, enricher Enricher, annotator Annotator, cfg Config, logger *slog.Logger, opts ...Option) *Ingestor {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	i := &Ingestor{
		store:     store,
		enricher:  enricher,
		annotator: annotator,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
	if len(cfg.Channels) > 0 {
		i.channels = make(map[string]struct{}, len(cfg.Channels))
		for _, c := range cfg.Channels {
			i.channels[c] = struct{}{}
		}
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Accepts reports whether messages from channel are ingested.
func (i *Ingestor) Accepts(channel string) bool {
	if i.channels == nil {
		return true
	}
	_, ok := i.channels[channel]
	return ok
}

// Handle enriches msg and appends it to the daily note of its timestamp.
// Enrichment failures are embedded as text; only storage errors are returned.
func (i *Ingestor) Handle(ctx context.Context, msg models.Message) (Result, error) {
	if !i.Accepts(msg.Channel) {
		i.logger.Debug("ingest: channel not allowed", slog.String("channel", msg.Channel))
		return Result{Ignored: true}, nil
	}
	if strings.TrimSpace(msg.Text) == "" && len(msg.Attachments) == 0 {
		return Result{Ignored: true}, nil
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = i.now()
	}
	ts = ts.In(i.cfg.Location)

	path, err := i.store.EnsureDailyNote(ctx, ts)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: ensure note: %w", err)
	}

	entry := models.MemoEntry{Timestamp: ts, Text: msg.Text}

	for _, a := range msg.Attachments {
		if name, ok := i.enricher.SaveAttachment(ctx, a); ok {
			entry.Attachments = append(entry.Attachments, name)
		}
	}

	if url, ok := enrich.ExtractFirstURL(msg.Text); ok {
		meta := i.enricher.FetchMetadata(ctx, url)
		entry.URL = &meta
		if meta.ImageURL != "" {
			if name, ok := i.enricher.DownloadThumbnail(ctx, meta.ImageURL, enrich.ThumbnailKey(meta.ImageURL)); ok {
				entry.Thumbnail = name
			}
		}
	}

	if i.cfg.Supplement && i.annotator != nil && strings.TrimSpace(msg.Text) != "" {
		reference := ""
		if entry.URL != nil && !entry.URL.Failed {
			reference = entry.URL.Summary()
		}
		entry.Supplement = i.annotator.GenerateSupplement(ctx, msg.Text, reference).Text
	}

	block := entry.Render()
	if err := i.store.AppendMemoEntry(ctx, ts, block); err != nil {
		return Result{}, fmt.Errorf("ingest: append: %w", err)
	}
	metrics.MemoAppends.Inc()
	i.logger.Info("ingest: appended memo",
		slog.String("path", path),
		slog.String("author", msg.Author),
		slog.Int("attachments", len(entry.Attachments)),
		slog.Bool("url", entry.URL != nil))

	if i.events != nil {
		i.events.Publish(sse.Event{Type: sse.TypeMemoAppended, Data: map[string]string{
			"path": path,
			"date": ts.Format(models.DateLayout),
			"time": ts.Format("15:04"),
		}})
	}
	return Result{Path: path, Entry: entry, Block: block}, nil
}
