package table

import (
	"fmt"
	"strings"
)

// SchemaMismatchError reports a result whose shape does not fit the query
// that produced it.
type SchemaMismatchError struct {
	Expected   []string
	Returned   []string
	Missing    []string
	Unexpected []string
	Column     string
	Reason     string
}

func (e *SchemaMismatchError) Error() string {
	var b strings.Builder
	b.WriteString("schema mismatch")
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing columns [%s]", strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		fmt.Fprintf(&b, ": unexpected columns [%s]", strings.Join(e.Unexpected, ", "))
	}
	if e.Column != "" {
		fmt.Fprintf(&b, ": column %s", e.Column)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	return b.String()
}
