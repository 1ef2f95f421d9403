package pipeline

import (
	"errors"
	"fmt"

	"github.com/jwdsh/second-hand-book/models"
)

// Artifacts binds a session's two output artifacts. Persisting one is
// independent of the other: a failure on either side never blocks the
// other, and both errors are reported together.
type Artifacts struct {
	raw       ListingWriter
	processed ResultWriter
}

// NewArtifacts pairs a raw listing writer with a processed-result writer.
// Either may be nil to skip that artifact.
func NewArtifacts(raw ListingWriter, processed ResultWriter) *Artifacts {
	return &Artifacts{raw: raw, processed: processed}
}

// Persist writes both artifacts and joins whatever errors occurred.
func (a *Artifacts) Persist(listings []models.Listing, agg *models.AggregatedPrice) error {
	var rawErr, procErr error

	if a.raw != nil {
		if err := a.raw.Write(listings); err != nil {
			rawErr = fmt.Errorf("persist raw listings: %w", err)
		}
	}
	if a.processed != nil && agg != nil {
		if err := a.processed.WriteResult(agg); err != nil {
			procErr = fmt.Errorf("persist aggregated result: %w", err)
		}
	}
	return errors.Join(rawErr, procErr)
}

// Close closes both writers.
func (a *Artifacts) Close() error {
	var errs []error
	if a.raw != nil {
		if err := a.raw.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.processed != nil {
		if err := a.processed.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
