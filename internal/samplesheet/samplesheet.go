// Package samplesheet reads and validates the tab-separated sample sheet
// listing each sample's alignment, sex and role in the run.
package samplesheet

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/inodb/vibe-cnv/internal/tsv"
)

// Sample sheet columns.
const (
	ColID         = "ID"
	ColBAMPath    = "bamPath"
	ColBAMName    = "bamName"
	ColGender     = "Gender"
	ColSampleType = "sampleType"
)

// Gender is a sample's sex as used for chrX labelling.
type Gender string

const (
	Male       Gender = "m"
	Female     Gender = "f"
	MaleFemale Gender = "mf" // in-silico mixture of a male and a female
)

// ParseGender accepts m/f/mf case-insensitively, plus male, female and fm.
func ParseGender(s string) (Gender, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "male":
		return Male, true
	case "f", "female":
		return Female, true
	case "mf", "fm":
		return MaleFemale, true
	}
	return "", false
}

// Sample types.
const (
	TypeTrain   = "train"
	TypeTest    = "t"
	TypeControl = "c"
)

// Sample is one row of the sheet.
type Sample struct {
	ID     string
	BAM    string
	Gender Gender
	Types  []string
	Line   int
}

func (s Sample) has(typ string) bool {
	for _, t := range s.Types {
		if t == typ {
			return true
		}
	}
	return false
}

// IsTrain reports whether the sample is used for training.
func (s Sample) IsTrain() bool { return s.has(TypeTrain) }

// IsCall reports whether the sample is a test/case sample to be called.
func (s Sample) IsCall() bool { return s.has(TypeTest) }

// IsControl reports whether the sample is a control.
func (s Sample) IsControl() bool { return s.has(TypeControl) }

// Problem is one invalid sheet row.
type Problem struct {
	Line    int
	ID      string
	Message string
}

// ValidationError lists every problem found in a sheet.
type ValidationError struct {
	Path     string
	Problems []Problem
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sample sheet %s: %d invalid row(s)", e.Path, len(e.Problems))
	for _, p := range e.Problems {
		if p.Line > 0 {
			fmt.Fprintf(&b, "\n  line %d", p.Line)
		} else {
			b.WriteString("\n ")
		}
		if p.ID != "" {
			fmt.Fprintf(&b, " (%s)", p.ID)
		}
		fmt.Fprintf(&b, ": %s", p.Message)
	}
	return b.String()
}

// ParseTypes normalises a sampleType cell: lowercased, spaces removed,
// split on commas. Unknown tokens are returned separately.
func ParseTypes(s string) (types, unknown []string) {
	s = strings.ToLower(strings.ReplaceAll(s, " ", ""))
	for _, tok := range strings.Split(s, ",") {
		switch tok {
		case "":
		case TypeTrain, TypeTest, TypeControl:
			types = append(types, tok)
		default:
			unknown = append(unknown, tok)
		}
	}
	return types, unknown
}

// Sheet is a validated sample sheet.
type Sheet struct {
	Path    string
	Samples []Sample
}

// Read parses and validates a sample sheet. All invalid rows are reported
// together in a *ValidationError.
func Read(path string) (*Sheet, error) {
	r, err := tsv.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if err := r.Require(ColID, ColGender, ColSampleType); err != nil {
		return nil, err
	}
	bamCol := ColBAMPath
	if !r.Has(bamCol) {
		bamCol = ColBAMName
		if err := r.Require(ColBAMName); err != nil {
			return nil, fmt.Errorf("%s: need a %s or %s column: %w", path, ColBAMPath, ColBAMName, err)
		}
	}

	sheet := &Sheet{Path: path}
	var problems []Problem
	seen := make(map[string]int)
	err = r.ForEach(func(rec tsv.Record) error {
		s := Sample{ID: rec.Get(ColID), BAM: rec.Get(bamCol), Line: rec.Line()}
		bad := func(format string, args ...any) {
			problems = append(problems, Problem{Line: s.Line, ID: s.ID, Message: fmt.Sprintf(format, args...)})
		}
		if s.ID == "" {
			bad("missing ID")
		} else if prev, dup := seen[s.ID]; dup {
			bad("duplicate ID, first seen on line %d", prev)
		} else {
			seen[s.ID] = s.Line
		}
		g, ok := ParseGender(rec.Get(ColGender))
		if !ok {
			bad("invalid Gender %q (want m, f or mf)", rec.Get(ColGender))
		}
		s.Gender = g
		types, unknown := ParseTypes(rec.Get(ColSampleType))
		if len(unknown) > 0 {
			bad("invalid sampleType %q (want train, t or c)", strings.Join(unknown, ","))
		} else if len(types) == 0 {
			bad("empty sampleType")
		}
		s.Types = types
		sheet.Samples = append(sheet.Samples, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Path: path, Problems: problems}
	}
	return sheet, nil
}

// BAMPath resolves a sample's alignment against dir when it is relative.
func (s Sample) BAMPath(dir string) string {
	if dir == "" || filepath.IsAbs(s.BAM) {
		return s.BAM
	}
	return filepath.Join(dir, s.BAM)
}

// CheckBAMs verifies every alignment exists, reporting all missing files.
func (sh *Sheet) CheckBAMs(dir string) error {
	var problems []Problem
	for _, s := range sh.Samples {
		p := s.BAMPath(dir)
		if p == "" {
			problems = append(problems, Problem{Line: s.Line, ID: s.ID, Message: "no alignment path"})
			continue
		}
		if _, err := os.Stat(p); err != nil {
			problems = append(problems, Problem{Line: s.Line, ID: s.ID, Message: "missing BAM " + p})
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Path: sh.Path, Problems: problems}
	}
	return nil
}

// Lookup returns the sample with the given ID.
func (sh *Sheet) Lookup(id string) (Sample, bool) {
	for _, s := range sh.Samples {
		if s.ID == id {
			return s, true
		}
	}
	return Sample{}, false
}

// Train returns the training samples in sheet order.
func (sh *Sheet) Train() []Sample {
	return sh.filter(Sample.IsTrain)
}

// Call returns the samples to be called in sheet order.
func (sh *Sheet) Call() []Sample {
	return sh.filter(Sample.IsCall)
}

func (sh *Sheet) filter(keep func(Sample) bool) []Sample {
	var out []Sample
	for _, s := range sh.Samples {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// PairMixtures maps every MF training sample to the female training sample
// it was simulated from, found as the female ID contained in the MF ID.
// The longest matching female ID wins. Unpaired mixtures are reported
// together.
func (sh *Sheet) PairMixtures() (map[string]string, error) {
	var females []string
	for _, s := range sh.Train() {
		if s.Gender == Female {
			females = append(females, s.ID)
		}
	}
	pairs := make(map[string]string)
	var problems []Problem
	for _, s := range sh.Train() {
		if s.Gender != MaleFemale {
			continue
		}
		best := ""
		for _, f := range females {
			if strings.Contains(s.ID, f) && len(f) > len(best) {
				best = f
			}
		}
		if best == "" {
			problems = append(problems, Problem{Line: s.Line, ID: s.ID, Message: "no female training sample paired with this mixture"})
			continue
		}
		pairs[s.ID] = best
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Path: sh.Path, Problems: problems}
	}
	return pairs, nil
}
