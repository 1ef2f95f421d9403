package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jwdsh/second-hand-book/models"
)

// DualWriter mirrors the raw artifact to both CSV and JSONL outputs.
type DualWriter struct {
	csvWriter  *CSVWriter
	jsonWriter *JSONWriter
	mu         sync.Mutex
}

// NewDualWriter creates a writer pair for both CSV and JSON output.
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("create csv writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("create json writer: %w", err)
	}

	return &DualWriter{
		csvWriter:  csvWriter,
		jsonWriter: jsonWriter,
	}, nil
}

// Write writes listings to both outputs. Both are attempted even when the
// first fails.
func (dw *DualWriter) Write(listings []models.Listing) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	return errors.Join(
		dw.csvWriter.Write(listings),
		dw.jsonWriter.Write(listings),
	)
}

// Close closes both writers.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	return errors.Join(
		dw.csvWriter.Close(),
		dw.jsonWriter.Close(),
	)
}

// Validate validates both output files.
func (dw *DualWriter) Validate() error {
	return errors.Join(
		dw.csvWriter.Validate(),
		dw.jsonWriter.Validate(),
	)
}
