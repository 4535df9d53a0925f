// Package annotate produces summaries, tags, and explanations from a text
// completion backend. Operations never return errors: failures are reported
// through the Failure field of the result, which also carries a fixed
// payload safe to embed in a note.
package annotate

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/starford/hibi/internal/metrics"
	"github.com/starford/hibi/internal/models"
	"github.com/starford/hibi/internal/parser"
)

// Fixed texts written in place of a model response.
const (
	ErrorText             = "処理中にエラーが発生しました。"
	RateLimitText         = "APIの利用上限に達しました。しばらくしてから再度お試しください。"
	SupplementErrorText   = "補足の生成中にエラーが発生しました。"
	TopicSummaryErrorText = "トピック概要の生成中にエラーが発生しました。"
)

// Failure says why an operation fell back to its fixed payload.
type Failure int

const (
	FailureNone Failure = iota
	FailureRateLimited
	FailureBackend
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "ok"
	case FailureRateLimited:
		return "rate_limited"
	default:
		return "error"
	}
}

// TagExplanation is the explanation generated for one tag.
type TagExplanation struct {
	Tag  string
	Body string
}

// Annotation is the result of SummarizeTagExplain.
type Annotation struct {
	Summary      string
	TagLine      string
	Explanations []TagExplanation
	Failure      Failure
}

// Usable reports whether the annotation came from the model and may be used
// to create topic notes.
func (a Annotation) Usable() bool {
	return a.Failure == FailureNone && !parser.IsFailureTagLine(a.TagLine)
}

// Text is a single generated text.
type Text struct {
	Text    string
	Failure Failure
}

// Topics is a list of extracted keywords.
type Topics struct {
	Items   []string
	Failure Failure
}

// Config holds model names and the retry policy.
type Config struct {
	Model     string
	FastModel string
	// MaxAttempts bounds the calls made for one operation, first call included.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration
}

// Client runs annotation operations against a Backend.
type Client struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger
}

// NewClient creates a Client. Zero retry settings take the defaults of three
// attempts starting at four seconds and capped at ten.
func NewClient(backend Backend, cfg Config, logger *slog.Logger) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 4 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.FastModel == "" {
		cfg.FastModel = cfg.Model
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{backend: backend, cfg: cfg, logger: logger}
}

// SummarizeTagExplain summarizes a day's memo, extracts tags, and explains
// each tag with a link back to date.
func (c *Client) SummarizeTagExplain(ctx context.Context, memo string, date time.Time) Annotation {
	day := date.Format(models.DateLayout)
	raw, failure := c.call(ctx, "summarize", c.cfg.Model, buildSummarizePrompt(memo, day))
	switch failure {
	case FailureRateLimited:
		return Annotation{Summary: RateLimitText, TagLine: parser.APILimitTag, Failure: failure}
	case FailureBackend:
		return Annotation{Summary: ErrorText, TagLine: parser.ErrorTag, Failure: failure}
	}

	a, ok := parseAnnotation(raw)
	if !ok {
		c.logger.Error("annotate: summary response has no tag line", slog.String("date", day))
		return Annotation{Summary: ErrorText, TagLine: parser.ErrorTag, Failure: FailureBackend}
	}
	c.logger.Info("annotate: generated summary",
		slog.String("date", day),
		slog.String("tags", a.TagLine),
		slog.Int("explanations", len(a.Explanations)))
	return a
}

// GenerateSupplement writes a short note about text. reference, when set, is
// passed to the model as background material.
func (c *Client) GenerateSupplement(ctx context.Context, text, reference string) Text {
	raw, failure := c.call(ctx, "supplement", c.cfg.FastModel, buildSupplementPrompt(text, reference))
	switch failure {
	case FailureRateLimited:
		return Text{Text: RateLimitText, Failure: failure}
	case FailureBackend:
		return Text{Text: SupplementErrorText, Failure: failure}
	}
	return Text{Text: strings.TrimSpace(raw)}
}

// ExtractTopics lists up to five keywords worth looking up in text.
func (c *Client) ExtractTopics(ctx context.Context, text string) Topics {
	raw, failure := c.call(ctx, "topics", c.cfg.FastModel, buildTopicsPrompt(text))
	if failure != FailureNone {
		return Topics{Failure: failure}
	}
	return Topics{Items: parseTopics(raw)}
}

// GenerateTopicSummary explains topic in about five hundred characters.
func (c *Client) GenerateTopicSummary(ctx context.Context, topic string) Text {
	raw, failure := c.call(ctx, "topic_summary", c.cfg.FastModel, buildTopicSummaryPrompt(topic))
	switch failure {
	case FailureRateLimited:
		return Text{Text: RateLimitText, Failure: failure}
	case FailureBackend:
		return Text{Text: TopicSummaryErrorText, Failure: failure}
	}
	return Text{Text: strings.TrimSpace(raw)}
}

// call issues prompt with the retry policy. Only capacity errors are retried.
func (c *Client) call(ctx context.Context, op, model, prompt string) (string, Failure) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.BaseDelay
	exp.Multiplier = 2
	exp.MaxInterval = c.cfg.MaxDelay
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.cfg.MaxAttempts-1)), ctx)

	var out string
	operation := func() error {
		metrics.AIAttempts.WithLabelValues(op).Inc()
		callCtx := ctx
		if c.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
			defer cancel()
		}
		text, err := c.backend.Complete(callCtx, model, prompt)
		if err != nil {
			if IsCapacityExhausted(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = text
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("annotate: capacity exhausted, retrying",
			slog.String("operation", op),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
	}

	err := backoff.RetryNotify(operation, policy, notify)
	failure := FailureNone
	switch {
	case err == nil:
	case IsCapacityExhausted(err):
		failure = FailureRateLimited
		c.logger.Error("annotate: retries exhausted", slog.String("operation", op), slog.String("error", err.Error()))
	default:
		failure = FailureBackend
		c.logger.Error("annotate: backend call failed", slog.String("operation", op), slog.String("error", err.Error()))
	}
	metrics.AICalls.WithLabelValues(op, failure.String()).Inc()
	return out, failure
}
