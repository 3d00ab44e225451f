package gateway

import (
	"errors"
	"fmt"
)

// maxSearchResults is the most issues or commits a single run will collect.
const maxSearchResults = 1000

// ErrTooManyResults is returned when a query matches more items than a run
// is allowed to collect. Callers should retry with a shorter period.
var ErrTooManyResults = errors.New("too many results")

// QueryError is returned when a GraphQL query fails after its retry.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("failed to execute GraphQL query (%s): %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
