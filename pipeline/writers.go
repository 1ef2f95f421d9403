// Package pipeline persists crawl session artifacts: the raw listing table
// and the processed aggregate. Each artifact is overwritten per session.
package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/jwdsh/second-hand-book/models"
)

// ListingWriter receives the session's raw listings.
type ListingWriter interface {
	Write(listings []models.Listing) error
	Close() error
	Validate() error
}

// ResultWriter receives the session's aggregated price.
type ResultWriter interface {
	WriteResult(agg *models.AggregatedPrice) error
	Close() error
}

// CSVWriter writes the raw artifact: one `title,price` record per listing.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write([]string{"title", "price"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends listings to the CSV output.
func (cw *CSVWriter) Write(listings []models.Listing) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, listing := range listings {
		record := []string{
			listing.Title,
			strconv.FormatFloat(listing.Price, 'f', 2, 64),
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter writes listings as newline-delimited JSON.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends listings in JSONL format.
func (jw *JSONWriter) Write(listings []models.Listing) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, listing := range listings {
		if err := jw.encoder.Encode(listing); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// ProcessedWriter writes the processed artifact: a single record with the
// representative title and the outlier-filtered average price.
type ProcessedWriter struct {
	filename string
	mu       sync.Mutex
}

// NewProcessedWriter prepares the processed-result writer. The file itself
// is only created once a result is written.
func NewProcessedWriter(filename string) (*ProcessedWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &ProcessedWriter{filename: filename}, nil
}

// WriteResult overwrites the processed artifact with agg.
func (pw *ProcessedWriter) WriteResult(agg *models.AggregatedPrice) error {
	if agg == nil {
		return nil
	}

	pw.mu.Lock()
	defer pw.mu.Unlock()

	f, err := os.Create(pw.filename)
	if err != nil {
		return fmt.Errorf("create processed file: %w", err)
	}

	_, werr := fmt.Fprintf(f, "书名: %s\n平均价格: ¥%.2f\n", agg.Title, agg.AveragePrice)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("write processed result: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("close processed file: %w", cerr)
	}
	return nil
}

// Close is a no-op; the writer holds no open handle between writes.
func (pw *ProcessedWriter) Close() error {
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
