package crawler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"

	"github.com/jwdsh/second-hand-book/config"
)

// Challenge markers the target is known to serve from its verification page.
var antiBotMarkers = []string{
	"验证",
	"captcha",
}

// Gate issues search-page requests with per-attempt header rotation,
// anti-bot detection, and linear backoff retry. One Gate owns one HTTP
// client, so cookies and pooled connections are shared across all fetches
// of a session. A Gate must not be shared across concurrent sessions.
type Gate struct {
	client  *resty.Client
	cfg     *config.Config
	metrics *Metrics

	requestCount int64
	retryCount   int64

	// sleep is swapped out in tests to assert the backoff schedule.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGate builds a request gate configured from cfg.
func NewGate(cfg *config.Config, metrics *Metrics) *Gate {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	return &Gate{
		client:  client,
		cfg:     cfg,
		metrics: metrics,
		sleep:   sleepContext,
	}
}

// Transport replaces the underlying HTTP transport. Tests use this to plug
// in a mock round tripper.
func (g *Gate) Transport(rt http.RoundTripper) {
	g.client.GetClient().Transport = rt
}

// Client exposes the gate's HTTP client so cover downloads reuse the same
// cookie jar and connection pool as the search requests.
func (g *Gate) Client() *resty.Client {
	return g.client
}

// Fetch retrieves url, retrying up to the configured attempt budget. The
// delay after failed attempt n is n times the base retry delay, so with the
// 5s default the gate waits 5s, then 10s. Context cancellation is honored
// between attempts and aborts the remaining budget.
func (g *Gate) Fetch(ctx context.Context, url string) (string, error) {
	attempts := g.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		body, err := g.attempt(ctx, url)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		lastErr = err

		label := errorTypeLabel(err)
		g.metrics.IncError(label)
		slog.Warn("search fetch failed",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.String("kind", label),
			slog.Any("error", err),
		)

		if attempt < attempts {
			atomic.AddInt64(&g.retryCount, 1)
			g.metrics.IncRetries()
			if serr := g.sleep(ctx, time.Duration(attempt)*g.cfg.RetryDelay); serr != nil {
				return "", serr
			}
		}
	}
	return "", lastErr
}

func (g *Gate) attempt(ctx context.Context, url string) (string, error) {
	atomic.AddInt64(&g.requestCount, 1)
	g.metrics.IncRequest("search")

	start := time.Now()
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeaders(randomHeaders()).
		Get(url)
	g.metrics.ObserveDuration(time.Since(start))

	if err != nil {
		return "", classifyTransportError(err)
	}

	finalURL := url
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		finalURL = raw.Request.URL.String()
	}

	body := resp.String()
	if isAntiBot(body, finalURL) {
		return "", ErrAntiBot{URL: finalURL}
	}
	if code := resp.StatusCode(); code >= http.StatusBadRequest {
		return "", ErrHTTPStatus{Code: code}
	}
	return body, nil
}

// RequestCount reports how many attempts the gate has issued.
func (g *Gate) RequestCount() int {
	return int(atomic.LoadInt64(&g.requestCount))
}

// RetryCount reports how many backoff retries the gate has performed.
func (g *Gate) RetryCount() int {
	return int(atomic.LoadInt64(&g.retryCount))
}

func isAntiBot(body, finalURL string) bool {
	lowered := strings.ToLower(finalURL)
	if strings.Contains(lowered, "security") || strings.Contains(lowered, "captcha") {
		return true
	}
	for _, marker := range antiBotMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	return ErrNetwork{Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
