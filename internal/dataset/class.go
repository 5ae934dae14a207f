package dataset

import (
	"fmt"
	"math"

	"github.com/inodb/vibe-cnv/internal/samplesheet"
)

// Class is an ordinal copy-number label.
type Class int

const (
	DoubleDeletion   Class = -2 // simulated only
	Deletion         Class = -1
	Normal           Class = 0
	Duplication      Class = 1
	MultiDuplication Class = 2
)

// Classes is the full five-class label set, in ascending order.
var Classes = []Class{DoubleDeletion, Deletion, Normal, Duplication, MultiDuplication}

// CollapsedClasses is the three-class set used where extreme classes cannot
// occur.
var CollapsedClasses = []Class{Deletion, Normal, Duplication}

// ParseClass converts a numeric cell to a Class.
func ParseClass(v float64) (Class, error) {
	if math.IsNaN(v) || v != math.Trunc(v) || v < -2 || v > 2 {
		return 0, fmt.Errorf("invalid class label %v", v)
	}
	return Class(int(v)), nil
}

// Collapse maps -2 to -1 and 2 to 1.
func (c Class) Collapse() Class {
	switch c {
	case DoubleDeletion:
		return Deletion
	case MultiDuplication:
		return Duplication
	}
	return c
}

func (c Class) String() string {
	return fmt.Sprintf("%d", int(c))
}

// LabelFor returns the chrX class label of a training sample: one X copy is
// a deletion, two are normal, three are a duplication.
func LabelFor(g samplesheet.Gender) (Class, error) {
	switch g {
	case samplesheet.Male:
		return Deletion, nil
	case samplesheet.Female:
		return Normal, nil
	case samplesheet.MaleFemale:
		return Duplication, nil
	}
	return 0, fmt.Errorf("no class label for gender %q", string(g))
}

// CountClasses returns the number of rows per class.
func CountClasses(rows []Row) map[Class]int {
	n := make(map[Class]int)
	for _, r := range rows {
		n[r.Class]++
	}
	return n
}
