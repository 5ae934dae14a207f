package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	goduckdb "github.com/marcboeker/go-duckdb"
)

// Call is one region's call for one sample and model. Called is false for
// regions the model could not score; their Pred is stored as NULL.
type Call struct {
	Sample     string
	Model      string
	Chrom      string
	Start      int64
	End        int64
	GC         float64
	Map        float64
	NRC        float64
	Pred       int
	Called     bool
	Proba      float64
	Confidence float64
}

// callKey is the composite key for deduplicating calls before writing.
type callKey struct {
	chrom      string
	start, end int64
}

// WriteCalls replaces the calls of one sample and model and records the
// fingerprint of the table they were computed from. Calls are batch-inserted
// with the Appender API; duplicate regions keep the first call.
func (s *Store) WriteCalls(sample, model string, source FileFingerprint, calls []Call) error {
	if _, err := s.db.Exec("DELETE FROM calls WHERE sample=? AND model=?", sample, model); err != nil {
		return fmt.Errorf("clear calls: %w", err)
	}
	if _, err := s.db.Exec("DELETE FROM samples WHERE sample=? AND model=?", sample, model); err != nil {
		return fmt.Errorf("clear sample: %w", err)
	}

	seen := make(map[callKey]bool, len(calls))
	deduped := make([]Call, 0, len(calls))
	for _, c := range calls {
		k := callKey{c.Chrom, c.Start, c.End}
		if !seen[k] {
			seen[k] = true
			deduped = append(deduped, c)
		}
	}

	if len(deduped) > 0 {
		if err := s.appendCalls(sample, model, deduped); err != nil {
			return err
		}
	}

	_, err := s.db.Exec(`INSERT INTO samples VALUES (?, ?, ?, ?, ?, ?)`,
		sample, model, source.Path, source.Size, source.ModTime.UTC(), int64(len(deduped)))
	if err != nil {
		return fmt.Errorf("record sample: %w", err)
	}
	return nil
}

func (s *Store) appendCalls(sample, model string, calls []Call) error {
	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "calls")
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	for _, c := range calls {
		var pred any
		if c.Called {
			pred = int32(c.Pred)
		}
		if err := appender.AppendRow(
			sample, model, c.Chrom, c.Start, c.End,
			c.GC, c.Map, c.NRC, pred, c.Proba, c.Confidence,
		); err != nil {
			return fmt.Errorf("append call: %w", err)
		}
	}
	return appender.Flush()
}

// Processed reports whether calls for the sample and model were recorded
// from a table matching source.
func (s *Store) Processed(sample, model string, source FileFingerprint) (bool, error) {
	var got FileFingerprint
	err := s.db.QueryRow(`SELECT source_path, source_size, source_modtime
		FROM samples WHERE sample=? AND model=?`, sample, model).
		Scan(&got.Path, &got.Size, &got.ModTime)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query sample: %w", err)
	}
	return got.Same(source), nil
}

// LookupCalls returns the calls of one sample and model in region order.
func (s *Store) LookupCalls(sample, model string) ([]Call, error) {
	rows, err := s.db.Query(`SELECT
		sample, model, chrom, start_pos, end_pos, gc, mappability, nrc,
		pred, proba, confidence
		FROM calls
		WHERE sample=? AND model=?
		ORDER BY chrom, start_pos, end_pos`, sample, model)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		var c Call
		var pred sql.NullInt32
		if err := rows.Scan(
			&c.Sample, &c.Model, &c.Chrom, &c.Start, &c.End, &c.GC, &c.Map, &c.NRC,
			&pred, &c.Proba, &c.Confidence,
		); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		c.Pred, c.Called = int(pred.Int32), pred.Valid
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

// CallCounts returns, for one model, the number of calls per sample and
// predicted class. Unscored regions are not counted.
func (s *Store) CallCounts(model string) (map[string]map[int]int, error) {
	rows, err := s.db.Query(`SELECT sample, pred, count(*)
		FROM calls
		WHERE model=? AND pred IS NOT NULL
		GROUP BY sample, pred`, model)
	if err != nil {
		return nil, fmt.Errorf("query call counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]map[int]int)
	for rows.Next() {
		var sample string
		var pred int32
		var n int64
		if err := rows.Scan(&sample, &pred, &n); err != nil {
			return nil, fmt.Errorf("scan call count: %w", err)
		}
		if counts[sample] == nil {
			counts[sample] = make(map[int]int)
		}
		counts[sample][int(pred)] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call counts: %w", err)
	}
	return counts, nil
}

// ClearCalls removes every recorded call and sample.
func (s *Store) ClearCalls() error {
	if _, err := s.db.Exec("DELETE FROM calls"); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM samples")
	return err
}
