package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// downloadChunkSize bounds how much of an image body is held in memory at
// once while streaming it to disk.
const downloadChunkSize = 32 * 1024

const imageCacheSize = 256

// ImageFetcher downloads listing cover images. Downloads are best-effort: a
// failure logs and yields no path, it never aborts the crawl. Covers seen
// earlier in the process are served from an LRU cache instead of being
// fetched again.
type ImageFetcher struct {
	client  *resty.Client
	dir     string
	metrics *Metrics
	cache   *lru.Cache[string, string]

	now func() time.Time
}

// NewImageFetcher builds a fetcher that stores images under dir, reusing
// the session's HTTP client for connection pooling.
func NewImageFetcher(client *resty.Client, dir string, metrics *Metrics) (*ImageFetcher, error) {
	cache, err := lru.New[string, string](imageCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create image cache: %w", err)
	}
	return &ImageFetcher{
		client:  client,
		dir:     dir,
		metrics: metrics,
		cache:   cache,
		now:     time.Now,
	}, nil
}

// Download fetches rawURL and persists it under a filename derived from the
// sanitized title plus a timestamp. The empty string means no image.
func (f *ImageFetcher) Download(ctx context.Context, rawURL, title string) string {
	if rawURL == "" {
		return ""
	}
	if path, ok := f.cache.Get(rawURL); ok {
		f.metrics.IncImage("cached")
		return path
	}

	path, err := f.download(ctx, rawURL, title)
	if err != nil {
		f.metrics.IncImage("failed")
		slog.Warn("cover download failed",
			slog.String("url", rawURL),
			slog.String("title", title),
			slog.Any("error", err),
		)
		return ""
	}

	f.cache.Add(rawURL, path)
	f.metrics.IncImage("ok")
	return path
}

func (f *ImageFetcher) download(ctx context.Context, rawURL, title string) (string, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return "", fmt.Errorf("malformed image url: %w", err)
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}

	f.metrics.IncRequest("image")
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeaders(randomHeaders()).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return "", classifyTransportError(err)
	}

	body := resp.RawBody()
	if body == nil {
		return "", ErrNetwork{Err: fmt.Errorf("empty response body")}
	}
	defer body.Close()

	if code := resp.StatusCode(); code >= http.StatusBadRequest {
		return "", ErrHTTPStatus{Code: code}
	}

	name := fmt.Sprintf("%s_%d.jpg", sanitizeTitle(title), f.now().Unix())
	path := filepath.Join(f.dir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}

	buf := make([]byte, downloadChunkSize)
	_, copyErr := io.CopyBuffer(file, body, buf)
	closeErr := file.Close()
	if copyErr != nil {
		os.Remove(path)
		return "", fmt.Errorf("stream image body: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(path)
		return "", fmt.Errorf("close image file: %w", closeErr)
	}
	return path, nil
}

// sanitizeTitle keeps letters and digits (including CJK), replaces
// everything else with underscores, and caps the result at 50 runes.
func sanitizeTitle(title string) string {
	var b strings.Builder
	count := 0
	for _, r := range title {
		if count >= 50 {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
		count++
	}
	if b.Len() == 0 {
		return "cover"
	}
	return b.String()
}
