package fetch

import (
	"errors"
	"fmt"
)

// ErrNoData marks a response that came back without the expected
// product/price substructure. It is never retried.
var ErrNoData = errors.New("no product data in response")

// TransientError wraps the last network or HTTP failure once all retry
// attempts are exhausted.
type TransientError struct {
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("fetch failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }
