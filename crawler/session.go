// Package crawler implements the price-discovery pipeline: fetching search
// pages through an anti-bot-aware request gate, extracting listings, pulling
// cover images, and handing the accumulated result to aggregation and
// persistence.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jwdsh/second-hand-book/config"
	"github.com/jwdsh/second-hand-book/models"
	"github.com/jwdsh/second-hand-book/parser"
	"github.com/jwdsh/second-hand-book/pipeline"
	"github.com/jwdsh/second-hand-book/pricing"
)

// Session runs one crawl over a batch of search keywords. Keywords are
// processed strictly sequentially with a fixed cooldown between them; the
// cooldown is a deliberate throttle against the target's rate limiting and
// must not be removed. A Session exclusively owns its CrawlResult.
type Session struct {
	cfg       *config.Config
	gate      *Gate
	images    *ImageFetcher
	artifacts *pipeline.Artifacts
	metrics   *Metrics

	sleep func(ctx context.Context, d time.Duration) error
}

// NewSession wires a session from its collaborators. images and artifacts
// may be nil, disabling cover downloads or persistence respectively.
func NewSession(cfg *config.Config, gate *Gate, images *ImageFetcher, artifacts *pipeline.Artifacts, metrics *Metrics) *Session {
	return &Session{
		cfg:       cfg,
		gate:      gate,
		images:    images,
		artifacts: artifacts,
		metrics:   metrics,
		sleep:     sleepContext,
	}
}

// Run crawls every keyword and returns the accumulated listings with their
// aggregated price. A keyword whose fetch exhausts retries is logged and
// skipped; zero listings overall is success with a nil aggregate. The
// returned error reports persistence failures (and cancellation), never the
// absence of market data — in-memory results are valid either way.
func (s *Session) Run(ctx context.Context, keywords []string) (*models.CrawlResult, *models.AggregatedPrice, error) {
	if len(keywords) == 0 {
		return nil, nil, ErrNoKeywords
	}

	result := &models.CrawlResult{
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}

	var canceled error
	for i, keyword := range keywords {
		if err := ctx.Err(); err != nil {
			canceled = err
			break
		}

		slog.Info("searching keyword",
			slog.String("keyword", keyword),
			slog.Int("position", i+1),
			slog.Int("total", len(keywords)),
		)

		body, err := s.gate.Fetch(ctx, s.searchURL(keyword))
		switch {
		case errors.Is(err, context.Canceled):
			canceled = err
		case err != nil:
			result.FailedKeywords = append(result.FailedKeywords, keyword)
			result.ErrorsByType[errorTypeLabel(err)]++
			slog.Error("keyword failed, continuing with next",
				slog.String("keyword", keyword),
				slog.Any("error", err),
			)
		default:
			listings := parser.ParseSearch(body)
			s.metrics.AddListings(len(listings))
			slog.Info("keyword parsed",
				slog.String("keyword", keyword),
				slog.Int("listings", len(listings)),
			)

			for j := range listings {
				if listings[j].ImageURL == "" || s.images == nil {
					continue
				}
				listings[j].ImagePath = s.images.Download(ctx, listings[j].ImageURL, listings[j].Title)
			}
			result.Listings = append(result.Listings, listings...)
		}
		if canceled != nil {
			break
		}

		if i < len(keywords)-1 {
			if err := s.sleep(ctx, s.cfg.Cooldown); err != nil {
				canceled = err
				break
			}
		}
	}

	result.EndTime = time.Now()
	result.RequestCount = s.gate.RequestCount()
	result.RetryCount = s.gate.RetryCount()

	agg := pricing.Aggregate(result.Listings)

	// Whatever was accumulated gets flushed, cancelled or not.
	var persistErr error
	if s.artifacts != nil {
		persistErr = s.artifacts.Persist(result.Listings, agg)
		if persistErr != nil {
			slog.Error("persisting session artifacts", slog.Any("error", persistErr))
		}
	}

	return result, agg, errors.Join(canceled, persistErr)
}

func (s *Session) searchURL(keyword string) string {
	base := strings.TrimSuffix(s.cfg.SearchBaseURL, "/")
	return fmt.Sprintf("%s/?key=%s&act=input", base, url.QueryEscape(keyword))
}
