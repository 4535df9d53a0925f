// Package selection offers candidate topics extracted from a message and
// records the single choice made from them.
package selection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/hibi/internal/annotate"
	"github.com/starford/hibi/internal/apperr"
	"github.com/starford/hibi/internal/enrich"
	"github.com/starford/hibi/internal/metrics"
	"github.com/starford/hibi/internal/models"
)

// Action is what to do with the chosen candidate.
type Action string

const (
	// ActionAdd appends the topic with a supplement to today's note.
	ActionAdd Action = "add"
	// ActionLookup generates a topic summary and waits for AppendSummary.
	ActionLookup Action = "lookup"
)

// State of a session.
type State string

const (
	StateOpen           State = "open"
	StatePending        State = "pending"
	StateAwaitingAppend State = "awaiting_append"
	StateClosed         State = "closed"
)

// Session is a snapshot of one selection.
type Session struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Candidates []string  `json:"candidates"`
	State      State     `json:"state"`
	Topic      string    `json:"topic,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	Deadline   time.Time `json:"deadline"`
}

// ChoiceResult is returned by Choose and AppendSummary.
type ChoiceResult struct {
	Session Session `json:"session"`
	// Block is the memo block written to the daily note, if any.
	Block string `json:"block,omitempty"`
}

// Annotator is the AI surface used by the workflow.
type Annotator interface {
	ExtractTopics(ctx context.Context, text string) annotate.Topics
	GenerateSupplement(ctx context.Context, text, reference string) annotate.Text
	GenerateTopicSummary(ctx context.Context, topic string) annotate.Text
}

// Store appends memo blocks to a daily note.
type Store interface {
	AppendMemoEntry(ctx context.Context, date time.Time, block string) error
}

// Config controls session lifetime and the note timezone.
type Config struct {
	IdleTimeout time.Duration
	Location    *time.Location
}

// Manager holds the open sessions.
type Manager struct {
	annotator Annotator
	store     Store
	ttl       time.Duration
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager. A zero IdleTimeout means 180 seconds.
func NewManager(annotator Annotator, store Store, cfg Config, logger *slog.Logger) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 180 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		annotator: annotator,
		store:     store,
		ttl:       cfg.IdleTimeout,
		loc:       cfg.Location,
		now:       time.Now,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
}

// Candidates lists the URLs found in text followed by the AI-extracted
// topics, deduplicated in first-seen order with blank entries dropped.
func Candidates(urls, topics []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range [][]string{urls, topics} {
		for _, c := range list {
			if strings.TrimSpace(c) == "" {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// Start opens a session for source. It returns apperr.ErrNoCandidates when
// nothing can be offered.
func (m *Manager) Start(ctx context.Context, source string) (Session, error) {
	topics := m.annotator.ExtractTopics(ctx, source)
	if topics.Failure != annotate.FailureNone {
		m.logger.Warn("selection: topic extraction failed", slog.String("failure", topics.Failure.String()))
	}
	cands := Candidates(enrich.ExtractURLs(source), topics.Items)
	if len(cands) == 0 {
		metrics.Selections.WithLabelValues("start", "no_candidates").Inc()
		return Session{}, apperr.ErrNoCandidates
	}

	s := &Session{
		ID:         uuid.NewString(),
		Source:     source,
		Candidates: cands,
		State:      StateOpen,
		Deadline:   m.now().Add(m.ttl),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	snap := snapshot(s)
	m.mu.Unlock()

	metrics.Selections.WithLabelValues("start", "ok").Inc()
	m.logger.Info("selection: started", slog.String("id", s.ID), slog.Int("candidates", len(cands)))
	return snap, nil
}

// Get returns a snapshot of the session.
func (m *Manager) Get(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, apperr.ErrNotFound
	}
	return snapshot(s), nil
}

// Choose applies action to the candidate at index. Only the first choice of
// a session is accepted.
func (m *Manager) Choose(ctx context.Context, id string, index int, action Action) (ChoiceResult, error) {
	if action != ActionAdd && action != ActionLookup {
		return ChoiceResult{}, fmt.Errorf("selection: unknown action %q: %w", action, apperr.ErrInvalidChoice)
	}

	m.mu.Lock()
	s, err := m.acceptLocked(id, StateOpen)
	if err != nil {
		m.mu.Unlock()
		metrics.Selections.WithLabelValues(string(action), "rejected").Inc()
		return ChoiceResult{}, err
	}
	if index < 0 || index >= len(s.Candidates) {
		m.mu.Unlock()
		metrics.Selections.WithLabelValues(string(action), "rejected").Inc()
		return ChoiceResult{}, fmt.Errorf("selection: index %d out of range: %w", index, apperr.ErrInvalidChoice)
	}
	topic := s.Candidates[index]
	source := s.Source
	s.Topic = topic
	s.State = StatePending
	m.mu.Unlock()

	switch action {
	case ActionAdd:
		supp := m.annotator.GenerateSupplement(ctx, topic, source)
		block, err := m.appendBlock(ctx, topic, supp.Text)
		if err != nil {
			metrics.Selections.WithLabelValues(string(action), "error").Inc()
			return ChoiceResult{Session: m.finish(id, StateOpen, "")}, err
		}
		metrics.Selections.WithLabelValues(string(action), "ok").Inc()
		return ChoiceResult{Session: m.finish(id, StateClosed, ""), Block: block}, nil

	default:
		summary := m.annotator.GenerateTopicSummary(ctx, topic)
		snap := m.finish(id, StateAwaitingAppend, summary.Text)
		metrics.Selections.WithLabelValues(string(action), "ok").Inc()
		return ChoiceResult{Session: snap}, nil
	}
}

// AppendSummary writes the summary produced by a lookup to today's note and
// closes the session.
func (m *Manager) AppendSummary(ctx context.Context, id string) (ChoiceResult, error) {
	m.mu.Lock()
	s, err := m.acceptLocked(id, StateAwaitingAppend)
	if err != nil {
		m.mu.Unlock()
		metrics.Selections.WithLabelValues("append_summary", "rejected").Inc()
		return ChoiceResult{}, err
	}
	topic, summary := s.Topic, s.Summary
	s.State = StatePending
	m.mu.Unlock()

	block, err := m.appendBlock(ctx, topic, summary)
	if err != nil {
		metrics.Selections.WithLabelValues("append_summary", "error").Inc()
		return ChoiceResult{Session: m.finish(id, StateAwaitingAppend, summary)}, err
	}
	metrics.Selections.WithLabelValues("append_summary", "ok").Inc()
	return ChoiceResult{Session: m.finish(id, StateClosed, summary), Block: block}, nil
}

// Sweep drops sessions whose idle deadline has passed and returns how many
// were removed.
func (m *Manager) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if now.After(s.Deadline) || s.State == StateClosed {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("selection: swept sessions", slog.Int("count", n))
			}
		}
	}
}

// acceptLocked validates an interaction on session id in state want and
// refreshes its deadline. m.mu must be held.
func (m *Manager) acceptLocked(id string, want State) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	now := m.now()
	if now.After(s.Deadline) {
		return nil, apperr.ErrSelectionExpired
	}
	if s.State == StateOpen && want == StateAwaitingAppend {
		return nil, fmt.Errorf("selection: no lookup made: %w", apperr.ErrInvalidChoice)
	}
	if s.State != want {
		return nil, apperr.ErrSelectionClosed
	}
	s.Deadline = now.Add(m.ttl)
	return s, nil
}

// finish moves session id out of StatePending. A failed write passes the
// state the session was in before, so the user can retry.
func (m *Manager) finish(id string, state State, summary string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{ID: id, State: state}
	}
	s.State = state
	s.Summary = summary
	if state == StateOpen {
		s.Topic = ""
	}
	if state == StateAwaitingAppend {
		s.Deadline = m.now().Add(m.ttl)
	}
	return snapshot(s)
}

func (m *Manager) appendBlock(ctx context.Context, topic, text string) (string, error) {
	now := m.now().In(m.loc)
	block := models.MemoEntry{Timestamp: now, Text: topic, Supplement: text}.Render()
	if err := m.store.AppendMemoEntry(ctx, now, block); err != nil {
		return "", fmt.Errorf("selection: append: %w", err)
	}
	metrics.MemoAppends.Inc()
	m.logger.Info("selection: appended topic", slog.String("topic", topic))
	return block, nil
}

func snapshot(s *Session) Session {
	out := *s
	out.Candidates = append([]string(nil), s.Candidates...)
	return out
}
