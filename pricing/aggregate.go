// Package pricing turns raw price samples into a robust market average and
// combines it with a condition score into a final asking price.
package pricing

import (
	"math"

	"github.com/jwdsh/second-hand-book/models"
)

// Aggregate computes the outlier-filtered average over a session's
// listings. Only positive prices count as samples; nil means no market
// data, which is an expected outcome rather than an error.
//
// With two or more samples, values outside [mean-2σ, mean+2σ] (sample
// standard deviation) are discarded before the final average. The 2σ rule
// is known to have little power on small, extreme samples; it is kept
// as-is rather than tightened.
func Aggregate(listings []models.Listing) *models.AggregatedPrice {
	prices := make([]float64, 0, len(listings))
	for _, listing := range listings {
		if listing.Price > 0 {
			prices = append(prices, listing.Price)
		}
	}
	if len(prices) == 0 {
		return nil
	}

	retained := prices
	if len(prices) >= 2 {
		mean, stdev := meanStdev(prices)
		lo, hi := mean-2*stdev, mean+2*stdev

		filtered := make([]float64, 0, len(prices))
		for _, p := range prices {
			if p >= lo && p <= hi {
				filtered = append(filtered, p)
			}
		}
		retained = filtered
	}

	agg := &models.AggregatedPrice{
		Title:       listings[0].Title,
		SampleCount: len(retained),
	}
	if len(retained) > 0 {
		agg.AveragePrice, _ = meanStdev(retained)
	}
	return agg
}

// meanStdev returns the mean and sample (n-1) standard deviation using
// Welford's accumulation, which keeps the result stable regardless of
// summation magnitude.
func meanStdev(samples []float64) (float64, float64) {
	var mean, m2 float64
	for i, x := range samples {
		delta := x - mean
		mean += delta / float64(i+1)
		m2 += delta * (x - mean)
	}
	if len(samples) < 2 {
		return mean, 0
	}
	return mean, math.Sqrt(m2 / float64(len(samples)-1))
}

// FinalPrice multiplies the market average by a condition score clamped to
// [0,1] and rounds to cents. This is the pipeline's sole contract toward
// the pricing formula: a non-negative decimal.
func FinalPrice(averagePrice, conditionScore float64) float64 {
	if averagePrice < 0 {
		averagePrice = 0
	}
	if conditionScore < 0 {
		conditionScore = 0
	}
	if conditionScore > 1 {
		conditionScore = 1
	}
	return math.Round(averagePrice*conditionScore*100) / 100
}
