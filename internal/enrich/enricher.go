// Package enrich fetches link previews, thumbnails, and attachments for memo
// entries.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/starford/hibi/internal/checksum"
	"github.com/starford/hibi/internal/metrics"
	"github.com/starford/hibi/internal/models"
)

// Placeholder and failure texts embedded into notes.
const (
	NoTitle          = "タイトルなし"
	NoDescription    = "説明文なし"
	NetworkErrorText = "URLの取得中にネットワークエラーが発生しました。"
	UnexpectedText   = "URLの処理中に予期せぬエラーが発生しました。"
)

var urlRe = regexp.MustCompile(`https?://\S+`)

// thumbnailExt maps exact image media types to stored file extensions.
var thumbnailExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageSaver persists fetched image bytes under a file name.
type ImageSaver interface {
	SaveImage(ctx context.Context, name string, data []byte) error
}

// Config holds the HTTP settings of the enricher.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Enricher performs the outbound HTTP calls of the append path.
type Enricher struct {
	client *resty.Client
	images ImageSaver
	logger *slog.Logger
}

// New creates an Enricher that stores images through images.
func New(cfg Config, images ImageSaver, logger *slog.Logger) *Enricher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := resty.New().SetTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Enricher{client: c, images: images, logger: logger}
}

// ExtractFirstURL returns the first http(s) URL in text.
func ExtractFirstURL(text string) (string, bool) {
	u := urlRe.FindString(text)
	return u, u != ""
}

// ExtractURLs returns every http(s) URL in text, deduplicated in first-seen
// order.
func ExtractURLs(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, u := range urlRe.FindAllString(text, -1) {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// ThumbnailKey derives the dedup key for an image URL.
func ThumbnailKey(imageURL string) string {
	return "thumbnail_" + checksum.Key(imageURL)
}

// FetchMetadata fetches url and extracts its link preview. Failures are
// reported through the returned metadata, never as an error.
func (e *Enricher) FetchMetadata(ctx context.Context, url string) models.URLMetadata {
	e.logger.Debug("enrich: fetching url", slog.String("url", url))

	resp, err := e.client.R().SetContext(ctx).Get(url)
	if err != nil {
		e.logger.Error("enrich: fetch failed", slog.String("url", url), slog.String("error", err.Error()))
		metrics.LinkFetches.WithLabelValues("page", "network_error").Inc()
		return models.URLMetadata{URL: url, Description: NetworkErrorText, Failed: true}
	}
	if resp.StatusCode() != http.StatusOK {
		metrics.LinkFetches.WithLabelValues("page", "bad_status").Inc()
		return models.URLMetadata{
			URL:         url,
			Description: fmt.Sprintf("ページの取得に失敗しました。ステータスコード: %d", resp.StatusCode()),
			Failed:      true,
		}
	}

	meta, err := parsePreview(resp.Body(), resp.Header().Get("Content-Type"))
	if err != nil {
		e.logger.Error("enrich: parse failed", slog.String("url", url), slog.String("error", err.Error()))
		metrics.LinkFetches.WithLabelValues("page", "parse_error").Inc()
		return models.URLMetadata{URL: url, Description: UnexpectedText, Failed: true}
	}
	meta.URL = url
	metrics.LinkFetches.WithLabelValues("page", "ok").Inc()
	e.logger.Debug("enrich: extracted preview",
		slog.String("title", meta.Title),
		slog.String("image", meta.ImageURL))
	return meta
}

// DownloadThumbnail stores the image at imageURL as <dedupKey><ext> and
// returns the stored file name. Non-200 responses, non-image content, and
// image types outside the extension table yield ok=false.
func (e *Enricher) DownloadThumbnail(ctx context.Context, imageURL, dedupKey string) (string, bool) {
	data, contentType, ok := e.fetchImage(ctx, "thumbnail", imageURL)
	if !ok {
		return "", false
	}
	ext, known := thumbnailExt[mediaType(contentType)]
	if !known {
		e.logger.Debug("enrich: unsupported image type", slog.String("content_type", contentType))
		metrics.LinkFetches.WithLabelValues("thumbnail", "unsupported_type").Inc()
		return "", false
	}

	name := dedupKey + ext
	if err := e.images.SaveImage(ctx, name, data); err != nil {
		e.logger.Error("enrich: save thumbnail failed", slog.String("name", name), slog.String("error", err.Error()))
		return "", false
	}
	metrics.LinkFetches.WithLabelValues("thumbnail", "ok").Inc()
	e.logger.Debug("enrich: saved thumbnail", slog.String("name", name))
	return name, true
}

// SaveAttachment downloads an image attachment and stores it under its
// original file name.
func (e *Enricher) SaveAttachment(ctx context.Context, a models.Attachment) (string, bool) {
	if !a.IsImage() {
		return "", false
	}
	name := path.Base(strings.ReplaceAll(a.Filename, `\`, "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		e.logger.Warn("enrich: invalid attachment name", slog.String("filename", a.Filename))
		return "", false
	}

	data, _, ok := e.fetchImage(ctx, "attachment", a.URL)
	if !ok {
		return "", false
	}
	if err := e.images.SaveImage(ctx, name, data); err != nil {
		e.logger.Error("enrich: save attachment failed", slog.String("name", name), slog.String("error", err.Error()))
		return "", false
	}
	metrics.LinkFetches.WithLabelValues("attachment", "ok").Inc()
	return name, true
}

func (e *Enricher) fetchImage(ctx context.Context, kind, url string) ([]byte, string, bool) {
	resp, err := e.client.R().SetContext(ctx).Get(url)
	if err != nil {
		e.logger.Error("enrich: image download failed", slog.String("url", url), slog.String("error", err.Error()))
		metrics.LinkFetches.WithLabelValues(kind, "network_error").Inc()
		return nil, "", false
	}
	if resp.StatusCode() != http.StatusOK {
		e.logger.Error("enrich: image download failed", slog.String("url", url), slog.Int("status", resp.StatusCode()))
		metrics.LinkFetches.WithLabelValues(kind, "bad_status").Inc()
		return nil, "", false
	}
	contentType := resp.Header().Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		e.logger.Debug("enrich: not an image", slog.String("url", url), slog.String("content_type", contentType))
		metrics.LinkFetches.WithLabelValues(kind, "not_image").Inc()
		return nil, "", false
	}
	return resp.Body(), contentType, true
}

// mediaType strips parameters from a Content-Type header value.
func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
