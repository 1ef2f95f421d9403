package crawler

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadKeywords parses one search keyword per line, dropping blank lines.
// An input with no usable keyword is a structural error: the caller must
// fail fast before any network activity.
func ReadKeywords(r io.Reader) ([]string, error) {
	var keywords []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			keywords = append(keywords, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read keywords: %w", err)
	}
	if len(keywords) == 0 {
		return nil, ErrNoKeywords
	}
	return keywords, nil
}

// LoadKeywords reads the keyword batch from a file.
func LoadKeywords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyword file: %w", err)
	}
	defer f.Close()
	return ReadKeywords(f)
}
