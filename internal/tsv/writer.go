package tsv

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
)

// Writer writes a tab-separated table.
type Writer struct {
	w    *bufio.Writer
	gz   *pgzip.Writer
	file *os.File
}

// NewWriter creates a table writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Create creates (or truncates) a table file. Paths ending in .gz are
// gzip-compressed.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	tw := &Writer{file: f}
	if strings.HasSuffix(path, ".gz") {
		tw.gz = pgzip.NewWriter(f)
		tw.w = bufio.NewWriter(tw.gz)
	} else {
		tw.w = bufio.NewWriter(f)
	}
	return tw, nil
}

// WriteHeader writes the header line.
func (tw *Writer) WriteHeader(columns ...string) error {
	return tw.Write(columns...)
}

// Write writes a single row.
func (tw *Writer) Write(values ...string) error {
	_, err := tw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (tw *Writer) Flush() error {
	return tw.w.Flush()
}

// Close flushes and closes the gzip stream and file, if the writer owns them.
func (tw *Writer) Close() error {
	if err := tw.w.Flush(); err != nil {
		if tw.file != nil {
			tw.file.Close()
		}
		return err
	}
	if tw.gz != nil {
		if err := tw.gz.Close(); err != nil {
			tw.file.Close()
			return fmt.Errorf("close gzip stream: %w", err)
		}
	}
	if tw.file != nil {
		return tw.file.Close()
	}
	return nil
}

// Float formats v with the shortest representation that round-trips.
// NaN is written as "NaN".
func Float(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Int formats an integer.
func Int(v int) string {
	return strconv.Itoa(v)
}
