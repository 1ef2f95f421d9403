// Package models defines data structures shared across the price pipeline.
package models

import "time"

// Listing represents one book entry extracted from a search-results page.
// A Price of 0 means the price text was missing or unparsable; it is never
// a valid market price.
type Listing struct {
	Title     string  `csv:"title" json:"title"`
	Price     float64 `csv:"price" json:"price"`
	ImageURL  string  `json:"image_url,omitempty"`
	ImagePath string  `json:"image_path,omitempty"`
}

// CrawlResult holds everything one crawl session accumulated. Listings keep
// keyword submission order, and document order within a keyword.
type CrawlResult struct {
	Listings       []Listing
	StartTime      time.Time
	EndTime        time.Time
	FailedKeywords []string
	ErrorsByType   map[string]int
	RequestCount   int
	RetryCount     int
}

// AggregatedPrice is the outlier-filtered average over a session's listings.
// A nil *AggregatedPrice means no listing carried a positive price.
type AggregatedPrice struct {
	Title        string  `json:"title"`
	AveragePrice float64 `json:"average_price"`
	SampleCount  int     `json:"sample_count"`
}

// Evaluation is one completed appraisal: the market average combined with a
// condition score into a final asking price.
type Evaluation struct {
	ISBN           string    `json:"isbn"`
	Title          string    `json:"title"`
	AveragePrice   float64   `json:"average_price"`
	SampleCount    int       `json:"sample_count"`
	ConditionScore float64   `json:"condition_score"`
	FinalPrice     float64   `json:"final_price"`
	CreatedAt      time.Time `json:"created_at"`
}
