package parser

import "fmt"

// FetchError describes a failed request that was not a block.
type FetchError struct {
	URL       string
	Message   string
	Cause     error
	Retryable bool
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", e.Message, e.URL, e.Cause)
	}
	return fmt.Sprintf("%s %s", e.Message, e.URL)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Permanent tells the pool not to retry the same identity.
func (e *FetchError) Permanent() bool {
	return !e.Retryable
}
