package meta

import (
	"errors"
	"fmt"
)

// ErrEmptyDecklist is matched by FetchErrors of kind KindEmpty.
var ErrEmptyDecklist = errors.New("no cards extracted")

// FetchErrorKind distinguishes the ways a fetch can fail.
type FetchErrorKind string

const (
	// KindUnreachable covers network failures, timeouts and non-success statuses.
	KindUnreachable FetchErrorKind = "unreachable"
	// KindEmpty means the response parsed but no card section was found.
	KindEmpty FetchErrorKind = "empty"
)

// FetchError is a transient failure of a single network fetch. It is never
// retried within a run.
type FetchError struct {
	Op         string
	URL        string
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: %s (HTTP %d)", e.Op, e.URL, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrEmptyDecklist) match empty fetches.
func (e *FetchError) Is(target error) bool {
	return target == ErrEmptyDecklist && e.Kind == KindEmpty
}

// ParseError reports that an expected container was missing from a response.
type ParseError struct {
	URL      string
	Selector string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %q not found", e.URL, e.Selector)
}

// ResolutionError reports that a decklist URL could not be mapped to an
// event identifier.
type ResolutionError struct {
	URL    string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %s", e.URL, e.Reason)
}

// DiscoveryError reports that discovery could not reach or read the source
// listing. It is recoverable: discovery may be retried later.
type DiscoveryError struct {
	Source string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery on %s: %v", e.Source, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// IsEmpty reports whether err is an empty-decklist fetch error.
func IsEmpty(err error) bool {
	return errors.Is(err, ErrEmptyDecklist)
}
