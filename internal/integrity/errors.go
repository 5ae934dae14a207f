// Package integrity defines the data-integrity failures raised when a
// join, filter or annotation step leaves nothing to work with.
package integrity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmpty matches every *EmptyError via errors.Is.
var ErrEmpty = errors.New("empty dataset")

// EmptyError reports a pipeline stage that produced zero rows.
type EmptyError struct {
	Stage  string // e.g. "pool join", "chrX partition"
	Subset string // e.g. "XLR", optional
	Sample string // optional
	Hint   string // what the user should check, optional
}

func (e *EmptyError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: empty dataset", e.Stage)
	if e.Subset != "" {
		fmt.Fprintf(&b, " (subset %s)", e.Subset)
	}
	if e.Sample != "" {
		fmt.Fprintf(&b, " for sample %s", e.Sample)
	}
	if e.Hint != "" {
		b.WriteString(": ")
		b.WriteString(e.Hint)
	}
	return b.String()
}

// Is makes errors.Is(err, ErrEmpty) true for any EmptyError.
func (e *EmptyError) Is(target error) bool {
	return target == ErrEmpty
}
