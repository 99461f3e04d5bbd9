package match

import (
	"fmt"
	"strings"
)

// ValidationError aggregates every rule violated by a new-match
// request, so a caller can surface all problems at once.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid match: " + strings.Join(e.Errors, "; ")
}

// TableOccupiedError reports that a table already has a non-finished
// match on it.
type TableOccupiedError struct {
	Table      int64
	OccupiedBy Match
}

func (e *TableOccupiedError) Error() string {
	return fmt.Sprintf("table %d is already occupied by %s vs %s",
		e.Table, e.OccupiedBy.Player1, e.OccupiedBy.Player2)
}
