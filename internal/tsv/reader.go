// Package tsv reads and writes the tab-separated tables exchanged between
// pipeline stages. Columns are always addressed by header name so upstream
// column reordering does not change what a stage reads.
package tsv

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
)

// ParseError represents an error during table parsing with line context.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: parse error at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Message)
}

// Reader reads rows from a header-led tab-separated table.
type Reader struct {
	reader  *bufio.Reader
	file    *os.File
	gz      *pgzip.Reader
	path    string
	line    int
	header  []string
	index   map[string]int
	comment string
	pending []string
}

// Open opens a table at path. Gzipped files are detected by their magic
// bytes, not by extension.
func Open(path string) (*Reader, error) {
	return open(path, nil)
}

// OpenBED opens a BED-like table that may or may not carry a header line.
// When the first line's second and third fields are integers the file is
// taken as headerless and its leading columns are named by columns.
func OpenBED(path string, columns []string) (*Reader, error) {
	return open(path, columns)
}

func open(path string, bedColumns []string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}

	r := &Reader{file: file, path: path, comment: "#"}

	br := bufio.NewReader(file)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		file.Close()
		return nil, fmt.Errorf("read table header: %w", err)
	}

	// Check for gzip magic number (0x1f, 0x8b)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		r.gz, err = pgzip.NewReader(br)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		r.reader = bufio.NewReader(r.gz)
	} else {
		r.reader = br
	}

	if err := r.parseHeader(); err != nil {
		r.Close()
		return nil, err
	}
	if bedColumns != nil && looksLikeData(r.header) {
		r.pending = r.header
		r.setHeader(bedColumns)
	}
	return r, nil
}

func looksLikeData(fields []string) bool {
	if len(fields) < 3 {
		return false
	}
	_, err1 := strconv.Atoi(strings.TrimSpace(fields[1]))
	_, err2 := strconv.Atoi(strings.TrimSpace(fields[2]))
	return err1 == nil && err2 == nil
}

// NewReader creates a table reader from an io.Reader. The first
// non-comment, non-empty line is the header.
func NewReader(rd io.Reader) (*Reader, error) {
	r := &Reader{reader: bufio.NewReader(rd), comment: "#"}
	if err := r.parseHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewHeaderlessReader reads a table that has no header line, naming its
// leading columns with the given names.
func NewHeaderlessReader(rd io.Reader, columns []string) *Reader {
	r := &Reader{reader: bufio.NewReader(rd), comment: "#"}
	r.setHeader(columns)
	return r
}

func (r *Reader) parseHeader() error {
	for {
		line, err := r.readLine()
		if err != nil {
			if err == io.EOF {
				return &ParseError{Path: r.path, Line: r.line, Message: "no header line found"}
			}
			return fmt.Errorf("read header: %w", err)
		}
		if line == "" || strings.HasPrefix(line, r.comment) ||
			strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}
		r.setHeader(strings.Split(line, "\t"))
		return nil
	}
}

func (r *Reader) setHeader(columns []string) {
	r.header = columns
	r.index = make(map[string]int, len(columns))
	for i, c := range columns {
		c = strings.TrimSpace(c)
		if _, dup := r.index[c]; !dup {
			r.index[c] = i
		}
	}
}

func (r *Reader) readLine() (string, error) {
	line, err := r.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			r.line++
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	r.line++
	return strings.TrimRight(line, "\r\n"), nil
}

// Header returns the column names in file order.
func (r *Reader) Header() []string {
	return r.header
}

// Index returns the position of the named column, or -1 if it is absent.
func (r *Reader) Index(name string) int {
	if i, ok := r.index[name]; ok {
		return i
	}
	return -1
}

// Has reports whether the named column is present.
func (r *Reader) Has(name string) bool {
	return r.Index(name) >= 0
}

// Require returns a ParseError naming every required column missing from the header.
func (r *Reader) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if !r.Has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &ParseError{
		Path:    r.path,
		Line:    r.line,
		Message: fmt.Sprintf("required column(s) %s not found in header", strings.Join(missing, ", ")),
	}
}

// Next reads the next data row. It returns io.EOF when the table is exhausted.
func (r *Reader) Next() (Record, error) {
	if r.pending != nil {
		fields := r.pending
		r.pending = nil
		return Record{fields: fields, r: r, line: r.line}, nil
	}
	for {
		line, err := r.readLine()
		if err != nil {
			if err == io.EOF {
				return Record{}, io.EOF
			}
			return Record{}, fmt.Errorf("read line %d: %w", r.line+1, err)
		}
		if line == "" || strings.HasPrefix(line, r.comment) {
			continue
		}
		return Record{fields: strings.Split(line, "\t"), r: r, line: r.line}, nil
	}
}

// ForEach calls fn for every remaining row, stopping at the first error.
func (r *Reader) ForEach(fn func(Record) error) error {
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// Path returns the file path the reader was opened with, if any.
func (r *Reader) Path() string {
	return r.path
}

// LineNumber returns the current line number being processed.
func (r *Reader) LineNumber() int {
	return r.line
}

// Close closes the reader and underlying file.
func (r *Reader) Close() error {
	if r.gz != nil {
		r.gz.Close()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Record is one data row of a table.
type Record struct {
	fields []string
	r      *Reader
	line   int
}

// Fields returns the raw fields of the row.
func (rec Record) Fields() []string {
	return rec.fields
}

// Line returns the line number the row was read from.
func (rec Record) Line() int {
	return rec.line
}

// Get returns the value of the named column, or "" if the column is absent
// from the header or the row is short.
func (rec Record) Get(name string) string {
	i := rec.r.Index(name)
	if i < 0 || i >= len(rec.fields) {
		return ""
	}
	return strings.TrimSpace(rec.fields[i])
}

// Int parses the named column as a base-10 integer.
func (rec Record) Int(name string) (int, error) {
	v := rec.Get(name)
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, rec.errorf("invalid integer %q in column %s", v, name)
	}
	return n, nil
}

// Float parses the named column as a float. Empty and NA values parse as NaN.
func (rec Record) Float(name string) (float64, error) {
	v := rec.Get(name)
	switch v {
	case "", "NA", "na", "nan", ".":
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, rec.errorf("invalid number %q in column %s", v, name)
	}
	return f, nil
}

func (rec Record) errorf(format string, args ...any) error {
	return &ParseError{Path: rec.r.path, Line: rec.line, Message: fmt.Sprintf(format, args...)}
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc *readCloser) Close() error {
	var first error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenStream opens path for reading, transparently decompressing gzip
// content. It is used for non-tabular inputs such as FASTA references.
func OpenStream(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(file)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		file.Close()
		return nil, err
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := pgzip.NewReader(br)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return &readCloser{Reader: gz, closers: []io.Closer{gz, file}}, nil
	}
	return &readCloser{Reader: br, closers: []io.Closer{file}}, nil
}
