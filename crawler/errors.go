package crawler

import (
	"errors"
	"fmt"
)

// ErrNoKeywords is returned when a session is started with nothing to crawl.
var ErrNoKeywords = errors.New("crawler: no search keywords provided")

// ErrTimeout indicates a fetch attempt exceeded its deadline.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrHTTPStatus indicates the target answered with a non-success status.
type ErrHTTPStatus struct {
	Code int
}

func (e ErrHTTPStatus) Error() string {
	return fmt.Sprintf("http status %d", e.Code)
}

// ErrAntiBot indicates the target served a verification or captcha page
// instead of search results.
type ErrAntiBot struct {
	URL string
}

func (e ErrAntiBot) Error() string {
	return fmt.Sprintf("anti-bot challenge at %s", e.URL)
}

// ErrNetwork indicates a connectivity failure below the HTTP layer.
type ErrNetwork struct {
	Err error
}

func (e ErrNetwork) Error() string {
	return fmt.Errorf("network: %w", e.Err).Error()
}

func (e ErrNetwork) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var status ErrHTTPStatus
	if errors.As(err, &status) {
		return "http_status"
	}
	var antiBot ErrAntiBot
	if errors.As(err, &antiBot) {
		return "anti_bot"
	}
	var network ErrNetwork
	if errors.As(err, &network) {
		return "network"
	}
	return "other"
}
