package models

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds reported by a sync run.
var (
	// ErrConfigurationMissing indicates a required connection parameter is absent.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrSourceUnavailable indicates the content API could not be read.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrIndexWriteFailed indicates the search index rejected the batch, wholly or partially.
	ErrIndexWriteFailed = errors.New("index write failed")
)

// Rejection is a single document refused by the index inside an accepted envelope.
type Rejection struct {
	Key        string `json:"key"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// UpstreamError carries diagnostics from a failed call to the source or the index.
type UpstreamError struct {
	Kind       error
	Op         string
	StatusCode int
	Message    string
	Body       string
	Rejected   []Rejection
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Rejected) > 0 {
		fmt.Fprintf(&b, ": %d document(s) rejected", len(e.Rejected))
		for _, r := range e.Rejected {
			fmt.Fprintf(&b, "; %s (%d): %s", r.Key, r.StatusCode, r.Message)
		}
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error {
	return e.Kind
}

// IsConfigurationMissing reports whether err is a configuration failure.
func IsConfigurationMissing(err error) bool {
	return errors.Is(err, ErrConfigurationMissing)
}

// IsSourceUnavailable reports whether err came from the source reader.
func IsSourceUnavailable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}

// IsIndexWriteFailed reports whether err came from the index writer.
func IsIndexWriteFailed(err error) bool {
	return errors.Is(err, ErrIndexWriteFailed)
}
