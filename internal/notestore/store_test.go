package notestore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/hibi/internal/apperr"
	"github.com/starford/hibi/internal/storage"
)

var day = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func testStore(t *testing.T) (*Store, storage.Provider) {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	return New(fs, Layout{DailyDir: "memos", TopicDir: "topics", ImageDir: "images"}, nil), fs
}

func read(t *testing.T, fs storage.Provider, p string) string {
	t.Helper()
	data, err := fs.Read(p)
	require.NoError(t, err)
	return string(data)
}

func TestDailyTemplate(t *testing.T) {
	want := "2025-03-01\n" +
		"[[2025-02-22]]||[[2025-02-28]]||[[2025-03-02]]||[[2025-03-08]]\n" +
		"---\n\n" +
		"## メモ\n"
	assert.Equal(t, want, DailyTemplate(day))
}

func TestEnsureDailyNote_Idempotent(t *testing.T) {
	s, fs := testStore(t)
	ctx := context.Background()

	p, err := s.EnsureDailyNote(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, "memos/2025-03-01.md", p)
	first := read(t, fs, p)

	_, err = s.EnsureDailyNote(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, first, read(t, fs, p))
}

func TestEnsureDailyNote_KeepsExistingContent(t *testing.T) {
	s, fs := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendMemoEntry(ctx, day, "\n09:00 -\n hi\n"))
	before := read(t, fs, s.DailyPath(day))

	_, err := s.EnsureDailyNote(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, before, read(t, fs, s.DailyPath(day)))
}

func TestAppendMemoEntry_CreatesNote(t *testing.T) {
	s, fs := testStore(t)
	require.NoError(t, s.AppendMemoEntry(context.Background(), day, "\n09:00 -\n hello\n"))

	got := read(t, fs, s.DailyPath(day))
	assert.True(t, strings.HasPrefix(got, DailyTemplate(day)))
	assert.True(t, strings.HasSuffix(got, "## メモ\n\n09:00 -\n hello\n"))
}

func TestAppendMemoEntry_ConcurrentWritersDoNotInterleave(t *testing.T) {
	s, fs := testStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendMemoEntry(ctx, day, "\nblock-start\nblock-end\n"))
		}()
	}
	wg.Wait()

	got := read(t, fs, s.DailyPath(day))
	assert.Equal(t, 20, strings.Count(got, "\nblock-start\nblock-end\n"))
	assert.Equal(t, 1, strings.Count(got, "## メモ"))
}

func TestTryBeginRollup(t *testing.T) {
	ctx := context.Background()

	t.Run("missing note", func(t *testing.T) {
		s, _ := testStore(t)
		_, err := s.TryBeginRollup(ctx, day)
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})

	t.Run("already done", func(t *testing.T) {
		s, fs := testStore(t)
		require.NoError(t, fs.Write(s.DailyPath(day), []byte(DailyTemplate(day)+"\nx\n\n## まとめ\ns\n#t\n")))
		check, err := s.TryBeginRollup(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, AlreadyDone, check.Status)
	})

	t.Run("memo section missing", func(t *testing.T) {
		s, fs := testStore(t)
		require.NoError(t, fs.Write(s.DailyPath(day), []byte("2025-03-01\nfree text\n")))
		check, err := s.TryBeginRollup(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, MemoSectionMissing, check.Status)
	})

	t.Run("memo empty", func(t *testing.T) {
		s, _ := testStore(t)
		_, err := s.EnsureDailyNote(ctx, day)
		require.NoError(t, err)
		check, err := s.TryBeginRollup(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, MemoEmpty, check.Status)
	})

	t.Run("proceed", func(t *testing.T) {
		s, _ := testStore(t)
		require.NoError(t, s.AppendMemoEntry(ctx, day, "hello"))
		check, err := s.TryBeginRollup(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, Proceed, check.Status)
		assert.Equal(t, "\nhello", check.Memo)
	})
}

func TestCommitRollup_NormalizesTrailingNewline(t *testing.T) {
	s, fs := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendMemoEntry(ctx, day, "no newline at end"))

	require.NoError(t, s.CommitRollup(ctx, day, "sum", "#x #y", []string{"[[x]]", "[[y]]"}))

	got := read(t, fs, s.DailyPath(day))
	assert.True(t, strings.HasSuffix(got, "no newline at end\n\n## まとめ\nsum\n#x #y\n\n## 詳細ノート\n[[x]] [[y]]\n"), got)
}

func TestCommitRollup_NoExtraNewline(t *testing.T) {
	s, fs := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendMemoEntry(ctx, day, "line\n"))

	require.NoError(t, s.CommitRollup(ctx, day, "sum", "#x", nil))

	got := read(t, fs, s.DailyPath(day))
	assert.True(t, strings.HasSuffix(got, "line\n\n## まとめ\nsum\n#x\n"), got)
	assert.NotContains(t, got, "## 詳細ノート")
}

func TestCommitRollup_RefusesSecondSummary(t *testing.T) {
	s, fs := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendMemoEntry(ctx, day, "hello\n"))
	require.NoError(t, s.CommitRollup(ctx, day, "one", "#a", nil))
	before := read(t, fs, s.DailyPath(day))

	err := s.CommitRollup(ctx, day, "two", "#b", nil)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyRolledUp))
	assert.Equal(t, before, read(t, fs, s.DailyPath(day)))
}

func TestAppendDetailNotes(t *testing.T) {
	s, fs := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendMemoEntry(ctx, day, "hello\n"))
	require.NoError(t, s.CommitRollup(ctx, day, "sum", "#x", nil))
	require.NoError(t, s.AppendDetailNotes(ctx, day, []string{"[[x]]"}))
	require.NoError(t, s.AppendDetailNotes(ctx, day, nil))

	got := read(t, fs, s.DailyPath(day))
	assert.True(t, strings.HasSuffix(got, "## まとめ\nsum\n#x\n\n## 詳細ノート\n[[x]]\n"), got)
}

func TestWriteTopicNote(t *testing.T) {
	s, fs := testStore(t)
	ctx := context.Background()

	p, err := s.WriteTopicNote(ctx, "x", day, "expl")
	require.NoError(t, err)
	assert.Equal(t, "topics/x.md", p)
	assert.Equal(t, "# x\n\n[[2025-03-01]]\n\nexpl\n\n#x", read(t, fs, p))

	// Same tag again overwrites.
	_, err = s.WriteTopicNote(ctx, "x", day.AddDate(0, 0, 1), "newer")
	require.NoError(t, err)
	assert.Equal(t, "# x\n\n[[2025-03-02]]\n\nnewer\n\n#x", read(t, fs, p))
}

func TestWriteTopicNote_SanitizesSeparators(t *testing.T) {
	s, _ := testStore(t)
	p, err := s.WriteTopicNote(context.Background(), "../etc/passwd", day, "x")
	require.NoError(t, err)
	assert.Equal(t, "topics/..-etc-passwd.md", p)

	_, err = s.WriteTopicNote(context.Background(), "  ", day, "x")
	assert.Error(t, err)
}

func TestSaveAndReadImage(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveImage(ctx, "thumbnail_abc.png", []byte{0x89, 'P', 'N', 'G'}))
	data, err := s.ReadImage(ctx, "thumbnail_abc.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
}

func TestTopicName(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"go", "go"},
		{" y ", "y"},
		{"CI/CD", "CI-CD"},
		{`a\b`, "a-b"},
		{"  ", ""},
		{"日記", "日記"},
	} {
		assert.Equal(t, tc.want, TopicName(tc.in), "TopicName(%q)", tc.in)
	}

	s, fs := testStore(t)
	p, err := s.WriteTopicNote(context.Background(), "CI/CD", day, "body")
	require.NoError(t, err)
	assert.Equal(t, "topics/CI-CD.md", p)
	assert.True(t, strings.HasPrefix(read(t, fs, p), "# CI-CD\n"))

	_, err = s.WriteTopicNote(context.Background(), " ", day, "body")
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}
