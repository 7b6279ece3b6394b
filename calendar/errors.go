package calendar

import "fmt"

// FetchError reports that the calendar document could not be retrieved.
// The fetcher never retries; callers decide how to surface it.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch calendar %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch calendar %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a wholly unparsable calendar document. Individually
// malformed entries are skipped instead.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse calendar: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }
