// Package rollup summarizes a day's memo section into the daily note and
// writes one topic note per generated tag.
package rollup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/hibi/internal/annotate"
	"github.com/starford/hibi/internal/apperr"
	"github.com/starford/hibi/internal/metrics"
	"github.com/starford/hibi/internal/models"
	"github.com/starford/hibi/internal/notestore"
	"github.com/starford/hibi/internal/sse"
)

// State is the terminal state of a rollup run.
type State string

const (
	Done    State = "done"
	Skipped State = "skipped"
)

// Reason qualifies a Skipped outcome.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonAlreadyDone        Reason = "already_done"
	ReasonMemoEmpty          Reason = "memo_empty"
	ReasonMemoSectionMissing Reason = "memo_section_missing"
	ReasonNoteMissing        Reason = "note_missing"
	ReasonFailed             Reason = "failed"
)

// Outcome is the result of Engine.Run. Message is a short status text for
// the user who triggered the run.
type Outcome struct {
	State   State     `json:"state"`
	Reason  Reason    `json:"reason,omitempty"`
	Date    time.Time `json:"-"`
	Message string    `json:"message"`
	Topics  []string  `json:"topics,omitempty"`
}

// Store is the subset of the note store used by the engine.
type Store interface {
	TryBeginRollup(ctx context.Context, date time.Time) (notestore.RollupCheck, error)
	CommitRollup(ctx context.Context, date time.Time, summary, tagLine string, backlinks []string) error
	AppendDetailNotes(ctx context.Context, date time.Time, backlinks []string) error
	WriteTopicNote(ctx context.Context, tag string, date time.Time, body string) (string, error)
}

// Annotator produces the summary, tag line, and explanations for a memo.
type Annotator interface {
	SummarizeTagExplain(ctx context.Context, memo string, date time.Time) annotate.Annotation
}

// Engine runs rollups. Concurrent runs for the same date share one result.
type Engine struct {
	store     Store
	annotator Annotator
	events    sse.Publisher
	group     singleflight.Group
	logger    *slog.Logger
}

// NewEngine creates an Engine. events may be nil.
func NewEngine(store Store, annotator Annotator, events sse.Publisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, annotator: annotator, events: events, logger: logger}
}

// Run rolls up the daily note for date. Precondition failures are reported as
// a Skipped outcome with a nil error; storage failures return an error along
// with a Skipped/Failed outcome.
func (e *Engine) Run(ctx context.Context, date time.Time) (Outcome, error) {
	key := date.Format(models.DateLayout)
	v, err, shared := e.group.Do(key, func() (interface{}, error) {
		return e.run(ctx, date)
	})
	if shared {
		e.logger.Debug("rollup: joined in-flight run", slog.String("date", key))
	}
	out := v.(Outcome)
	if out.Topics != nil {
		out.Topics = append([]string(nil), out.Topics...)
	}
	return out, err
}

func (e *Engine) run(ctx context.Context, date time.Time) (Outcome, error) {
	day := date.Format(models.DateLayout)
	log := e.logger.With(slog.String("date", day))

	check, err := e.store.TryBeginRollup(ctx, date)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Warn("rollup: daily note not found")
		return e.finish(skipped(date, ReasonNoteMissing)), nil
	}
	if err != nil {
		return e.fail(date, err), err
	}

	switch check.Status {
	case notestore.AlreadyDone:
		log.Info("rollup: summary already present")
		return e.finish(skipped(date, ReasonAlreadyDone)), nil
	case notestore.MemoSectionMissing:
		log.Warn("rollup: memo section not found")
		return e.finish(skipped(date, ReasonMemoSectionMissing)), nil
	case notestore.MemoEmpty:
		log.Info("rollup: memo section is empty")
		return e.finish(skipped(date, ReasonMemoEmpty)), nil
	}

	ann := e.annotator.SummarizeTagExplain(ctx, check.Memo, date)

	if err := e.store.CommitRollup(ctx, date, ann.Summary, ann.TagLine, nil); err != nil {
		if errors.Is(err, apperr.ErrAlreadyRolledUp) {
			log.Info("rollup: summary written concurrently")
			return e.finish(skipped(date, ReasonAlreadyDone)), nil
		}
		return e.fail(date, err), err
	}
	log.Info("rollup: added summary", slog.String("tags", ann.TagLine))

	var backlinks, topics []string
	if ann.Usable() {
		seen := make(map[string]bool, len(ann.Explanations))
		for _, ex := range ann.Explanations {
			name := notestore.TopicName(ex.Tag)
			if name == "" || seen[name] {
				log.Warn("rollup: skipped topic", slog.String("tag", ex.Tag))
				continue
			}
			seen[name] = true
			if _, err := e.store.WriteTopicNote(ctx, name, date, ex.Body); err != nil {
				return e.fail(date, err), err
			}
			backlinks = append(backlinks, models.Wikilink(name))
			topics = append(topics, name)
		}
	} else {
		log.Warn("rollup: annotation failed, no topic notes written", slog.String("failure", ann.Failure.String()))
	}

	if err := e.store.AppendDetailNotes(ctx, date, backlinks); err != nil {
		return e.fail(date, err), err
	}

	return e.finish(Outcome{
		State:   Done,
		Date:    date,
		Message: fmt.Sprintf("%sのメモにまとめを追記しました。", day),
		Topics:  topics,
	}), nil
}

func skipped(date time.Time, reason Reason) Outcome {
	return Outcome{State: Skipped, Reason: reason, Date: date, Message: skipMessages[reason]}
}

var skipMessages = map[Reason]string{
	ReasonAlreadyDone:        "既にまとめが存在します。",
	ReasonMemoEmpty:          "メモの内容が空です。",
	ReasonMemoSectionMissing: "メモセクションが見つかりませんでした。",
	ReasonNoteMissing:        "対象のメモファイルが見つかりませんでした。",
}

func (e *Engine) fail(date time.Time, err error) Outcome {
	e.logger.Error("rollup: failed",
		slog.String("date", date.Format(models.DateLayout)),
		slog.String("error", err.Error()))
	return e.finish(Outcome{
		State:   Skipped,
		Reason:  ReasonFailed,
		Date:    date,
		Message: "処理中にエラーが発生しました: " + err.Error(),
	})
}

func (e *Engine) finish(out Outcome) Outcome {
	metrics.Rollups.WithLabelValues(string(out.State), string(out.Reason)).Inc()
	if e.events != nil {
		e.events.Publish(sse.Event{Type: sse.TypeRollupCompleted, Data: map[string]interface{}{
			"date":   out.Date.Format(models.DateLayout),
			"state":  out.State,
			"reason": out.Reason,
			"topics": out.Topics,
		}})
	}
	return out
}
