package annotate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/hibi/internal/parser"
)

type scriptedBackend struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	models  []string
	prompts []string
}

type reply struct {
	text string
	err  error
}

func (b *scriptedBackend) Complete(_ context.Context, model, prompt string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.models = append(b.models, model)
	b.prompts = append(b.prompts, prompt)
	r := b.replies[min(b.calls, len(b.replies)-1)]
	b.calls++
	return r.text, r.err
}

func fastClient(b Backend) *Client {
	return NewClient(b, Config{
		Model:     "big",
		FastModel: "small",
		BaseDelay: time.Millisecond,
		MaxDelay:  2 * time.Millisecond,
	}, nil)
}

var day = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func TestSummarizeTagExplain(t *testing.T) {
	b := &scriptedBackend{replies: []reply{{text: "sum\n---\n#x #y\n---\n[TAG:x]\n[[2025-03-01]]\nexpl x\n---\n[TAG:y] expl y\n"}}}
	a := fastClient(b).SummarizeTagExplain(context.Background(), "hello", day)

	assert.Equal(t, FailureNone, a.Failure)
	assert.True(t, a.Usable())
	assert.Equal(t, "sum", a.Summary)
	assert.Equal(t, "#x #y", a.TagLine)
	assert.Equal(t, []TagExplanation{
		{Tag: "x", Body: "[[2025-03-01]]\nexpl x"},
		{Tag: "y", Body: "expl y"},
	}, a.Explanations)

	require.Len(t, b.prompts, 1)
	assert.Equal(t, "big", b.models[0])
	assert.Contains(t, b.prompts[0], "[[2025-03-01]]")
	assert.Contains(t, b.prompts[0], "hello")
}

func TestRetry_SucceedsOnThirdAttempt(t *testing.T) {
	b := &scriptedBackend{replies: []reply{
		{err: ErrCapacityExhausted},
		{err: ErrCapacityExhausted},
		{text: "sum\n---\n#x"},
	}}
	a := fastClient(b).SummarizeTagExplain(context.Background(), "hello", day)

	assert.Equal(t, 3, b.calls)
	assert.Equal(t, FailureNone, a.Failure)
	assert.Equal(t, "sum", a.Summary)
	assert.Equal(t, "#x", a.TagLine)
}

func TestRetry_ExhaustedYieldsRateLimitPayload(t *testing.T) {
	b := &scriptedBackend{replies: []reply{{err: fmt.Errorf("quota: %w", ErrCapacityExhausted)}}}
	a := fastClient(b).SummarizeTagExplain(context.Background(), "hello", day)

	assert.Equal(t, 3, b.calls)
	assert.Equal(t, FailureRateLimited, a.Failure)
	assert.Equal(t, RateLimitText, a.Summary)
	assert.Equal(t, parser.APILimitTag, a.TagLine)
	assert.Empty(t, a.Explanations)
	assert.False(t, a.Usable())
}

func TestNonCapacityErrorIsNotRetried(t *testing.T) {
	b := &scriptedBackend{replies: []reply{{err: errors.New("boom")}}}
	a := fastClient(b).SummarizeTagExplain(context.Background(), "hello", day)

	assert.Equal(t, 1, b.calls)
	assert.Equal(t, FailureBackend, a.Failure)
	assert.Equal(t, ErrorText, a.Summary)
	assert.Equal(t, parser.ErrorTag, a.TagLine)
	assert.False(t, a.Usable())
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	b := &scriptedBackend{replies: []reply{{err: ErrCapacityExhausted}}}
	c := NewClient(b, Config{Model: "m", BaseDelay: time.Hour, MaxDelay: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := c.GenerateSupplement(ctx, "text", "")

	assert.Equal(t, 1, b.calls)
	assert.NotEqual(t, FailureNone, got.Failure)
}

func TestGenerateSupplement(t *testing.T) {
	b := &scriptedBackend{replies: []reply{{text: "  supplement text \n"}}}
	got := fastClient(b).GenerateSupplement(context.Background(), "memo", "source")
	assert.Equal(t, Text{Text: "supplement text"}, got)
	assert.Equal(t, "small", b.models[0])
	assert.Contains(t, b.prompts[0], "source")

	b = &scriptedBackend{replies: []reply{{err: errors.New("boom")}}}
	got = fastClient(b).GenerateSupplement(context.Background(), "memo", "")
	assert.Equal(t, Text{Text: SupplementErrorText, Failure: FailureBackend}, got)
}

func TestExtractTopics(t *testing.T) {
	b := &scriptedBackend{replies: []reply{{text: "\nGo\n Rust \n\nZig\n"}}}
	got := fastClient(b).ExtractTopics(context.Background(), "text")
	assert.Equal(t, FailureNone, got.Failure)
	assert.Equal(t, []string{"Go", " Rust ", "", "Zig"}, got.Items)

	b = &scriptedBackend{replies: []reply{{err: ErrCapacityExhausted}}}
	got = fastClient(b).ExtractTopics(context.Background(), "text")
	assert.Equal(t, FailureRateLimited, got.Failure)
	assert.Empty(t, got.Items)
}

func TestGenerateTopicSummary(t *testing.T) {
	b := &scriptedBackend{replies: []reply{{text: "about go"}}}
	got := fastClient(b).GenerateTopicSummary(context.Background(), "Go")
	assert.Equal(t, "about go", got.Text)
	assert.Contains(t, b.prompts[0], "「Go」")

	b = &scriptedBackend{replies: []reply{{err: errors.New("boom")}}}
	got = fastClient(b).GenerateTopicSummary(context.Background(), "Go")
	assert.Equal(t, Text{Text: TopicSummaryErrorText, Failure: FailureBackend}, got)
}

func TestOpenAIBackend_RateLimitIsCapacity(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Resource has been exhausted","type":"rate_limit","code":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "k", Timeout: 2 * time.Second})
	_, err := backend.Complete(context.Background(), "m", "p")
	require.Error(t, err)
	assert.True(t, IsCapacityExhausted(err))

	a := fastClient(backend).SummarizeTagExplain(context.Background(), "hello", day)
	assert.Equal(t, FailureRateLimited, a.Failure)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 4, calls)
}

func TestOpenAIBackend_Completion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(OpenAIConfig{BaseURL: srv.URL + "/v1/", APIKey: "k"})
	got, err := backend.Complete(context.Background(), "m", "p")
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
}

func TestIsCapacityExhausted(t *testing.T) {
	assert.False(t, IsCapacityExhausted(nil))
	assert.False(t, IsCapacityExhausted(errors.New("boom")))
	assert.True(t, IsCapacityExhausted(fmt.Errorf("wrap: %w", ErrCapacityExhausted)))
}

func TestSummarizeTagExplain_MissingTagLineIsFailure(t *testing.T) {
	b := &scriptedBackend{replies: []reply{{text: "only a summary, no delimiter"}}}
	a := fastClient(b).SummarizeTagExplain(context.Background(), "hello", day)

	assert.Equal(t, FailureBackend, a.Failure)
	assert.False(t, a.Usable())
	assert.Equal(t, ErrorText, a.Summary)
	assert.Equal(t, parser.ErrorTag, a.TagLine)
	assert.Empty(t, a.Explanations)
}
