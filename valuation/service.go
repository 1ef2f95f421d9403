// Package valuation orchestrates one appraisal: resolve a search keyword
// from user input, discover the market price, apply the condition score,
// and record the outcome. OCR and condition scoring stay behind interfaces;
// this package never touches images itself.
package valuation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jwdsh/second-hand-book/isbn"
	"github.com/jwdsh/second-hand-book/models"
	"github.com/jwdsh/second-hand-book/pricing"
)

// ErrInvalidInput is returned when the request carries neither a valid ISBN
// nor a title to search for. This is the only case where Evaluate fails
// without producing a result.
var ErrInvalidInput = errors.New("valuation: input contains no valid ISBN or title")

// defaultConditionScore is assumed when no condition photo is supplied.
const defaultConditionScore = 0.9

// Crawler runs one price-discovery session over a keyword batch.
type Crawler interface {
	Run(ctx context.Context, keywords []string) (*models.CrawlResult, *models.AggregatedPrice, error)
}

// ConditionScorer judges physical condition from a photo, returning a score
// in [0,1]. Implementations live outside this repository.
type ConditionScorer interface {
	Score(ctx context.Context, imagePath string) (float64, error)
}

// Recorder persists finished evaluations.
type Recorder interface {
	SaveEvaluation(ctx context.Context, eval models.Evaluation) error
}

// Request is one appraisal input. ISBN wins over OCRText, which wins over
// Title; ImagePath optionally feeds the condition scorer.
type Request struct {
	ISBN      string
	OCRText   string
	Title     string
	ImagePath string
}

// Result is one finished appraisal.
type Result struct {
	ISBN           string                  `json:"isbn,omitempty"`
	Keyword        string                  `json:"keyword"`
	Aggregate      *models.AggregatedPrice `json:"aggregate,omitempty"`
	ConditionScore float64                 `json:"condition_score"`
	FinalPrice     float64                 `json:"final_price"`
}

// Service wires the pipeline's collaborators together. All dependencies are
// injected; the service keeps no ambient state.
type Service struct {
	crawler Crawler
	scorer  ConditionScorer
	store   Recorder
}

// NewService builds a valuation service. scorer and store may be nil,
// disabling condition scoring and record keeping respectively.
func NewService(crawler Crawler, scorer ConditionScorer, store Recorder) *Service {
	return &Service{crawler: crawler, scorer: scorer, store: store}
}

// Evaluate appraises one book. Invalid input fails fast before any network
// activity; after that point the caller always receives a result, with any
// persistence failure reported alongside it.
func (s *Service) Evaluate(ctx context.Context, req Request) (*Result, error) {
	code, keyword := resolveKeyword(req)
	if keyword == "" {
		return nil, ErrInvalidInput
	}

	_, agg, crawlErr := s.crawler.Run(ctx, []string{keyword})

	score := defaultConditionScore
	if s.scorer != nil && req.ImagePath != "" {
		if got, err := s.scorer.Score(ctx, req.ImagePath); err != nil {
			// Condition scoring is best-effort; fall back to the default.
			slog.Warn("condition scoring failed",
				slog.String("image", req.ImagePath),
				slog.Any("error", err),
			)
		} else {
			score = clampScore(got)
		}
	}

	result := &Result{
		ISBN:           code,
		Keyword:        keyword,
		Aggregate:      agg,
		ConditionScore: score,
	}
	if agg != nil {
		result.FinalPrice = pricing.FinalPrice(agg.AveragePrice, score)
	}

	var saveErr error
	if s.store != nil && agg != nil {
		eval := models.Evaluation{
			ISBN:           code,
			Title:          agg.Title,
			AveragePrice:   agg.AveragePrice,
			SampleCount:    agg.SampleCount,
			ConditionScore: score,
			FinalPrice:     result.FinalPrice,
			CreatedAt:      time.Now(),
		}
		if saveErr = s.store.SaveEvaluation(ctx, eval); saveErr != nil {
			slog.Error("recording evaluation", slog.Any("error", saveErr))
		}
	}

	return result, errors.Join(crawlErr, saveErr)
}

// resolveKeyword turns the request into a search keyword, preferring a
// checksum-valid ISBN over a free-text title.
func resolveKeyword(req Request) (code, keyword string) {
	if normalized := isbn.Normalize(req.ISBN); normalized != "" && isbn.ValidateChecksum(normalized) {
		return normalized, normalized
	}
	if extracted := isbn.ExtractFromText(req.OCRText); extracted != "" && isbn.ValidateChecksum(extracted) {
		return extracted, extracted
	}
	if req.Title != "" {
		return "", req.Title
	}
	return "", ""
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
