package vcf

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/inodb/vibe-cnv/internal/tsv"
)

// Parser reads CNV records back from a VCF file written by Writer.
type Parser struct {
	reader      *bufio.Reader
	closer      io.Closer
	lineNumber  int
	header      []string
	sampleNames []string // sample names from #CHROM header line
}

// NewParser opens a plain or gzipped VCF file.
func NewParser(path string) (*Parser, error) {
	rc, err := tsv.OpenStream(path)
	if err != nil {
		return nil, fmt.Errorf("open vcf file: %w", err)
	}
	p := &Parser{reader: bufio.NewReader(rc), closer: rc}
	if err := p.parseHeader(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// NewParserFromReader creates a parser from an io.Reader.
func NewParserFromReader(r io.Reader) (*Parser, error) {
	p := &Parser{reader: bufio.NewReader(r)}
	if err := p.parseHeader(); err != nil {
		return nil, err
	}
	return p, nil
}

// parseHeader reads and stores VCF header lines.
func (p *Parser) parseHeader() error {
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("read header: %w", err)
		}
		p.lineNumber++
		line = strings.TrimRight(line, "\r\n")

		if strings.HasPrefix(line, "##") {
			p.header = append(p.header, line)
			continue
		}
		if strings.HasPrefix(line, "#CHROM") {
			p.header = append(p.header, line)
			fields := strings.Split(line, "\t")
			if len(fields) > 9 {
				p.sampleNames = fields[9:]
			}
			return nil
		}
		return &ParseError{Line: p.lineNumber, Message: "expected #CHROM header line"}
	}
	return &ParseError{Line: p.lineNumber, Message: "no #CHROM header line found"}
}

// Next reads the next record. Returns nil, nil when there are no more.
func (p *Parser) Next() (*Record, error) {
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				return nil, nil
			}
			return nil, fmt.Errorf("read record line: %w", err)
		}
		p.lineNumber++
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		return p.parseLine(line)
	}
}

func (p *Parser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.lineNumber, Message: fmt.Sprintf(format, args...)}
}

// parseLine parses a single body line into a Record.
func (p *Parser) parseLine(line string) (*Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 10 {
		return nil, p.errorf("expected 10 columns, found %d", len(fields))
	}
	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, p.errorf("invalid position: %s", fields[1])
	}
	r := &Record{
		Chrom:  fields[0],
		Pos:    pos,
		ID:     fields[2],
		Alt:    strings.Trim(fields[4], "<>"),
		Qual:   math.NaN(),
		Filter: fields[6],
	}
	if fields[5] != "." {
		if r.Qual, err = strconv.ParseFloat(fields[5], 64); err != nil {
			return nil, p.errorf("invalid quality: %s", fields[5])
		}
	}

	info := parseInfo(fields[7])
	if r.End, err = strconv.ParseInt(info["END"], 10, 64); err != nil {
		return nil, p.errorf("invalid END: %q", info["END"])
	}
	if r.SVLen, err = strconv.ParseInt(info["SVLEN"], 10, 64); err != nil {
		return nil, p.errorf("invalid SVLEN: %q", info["SVLEN"])
	}

	if fields[8] != "GT:CN:MNRC:CS" {
		return nil, p.errorf("unexpected FORMAT %s", fields[8])
	}
	sample := strings.Split(fields[9], ":")
	if len(sample) != 4 {
		return nil, p.errorf("expected 4 sample subfields, found %d", len(sample))
	}
	if r.CN, err = strconv.Atoi(sample[1]); err != nil {
		return nil, p.errorf("invalid CN: %s", sample[1])
	}
	if r.MNRC, err = strconv.ParseFloat(sample[2], 64); err != nil {
		return nil, p.errorf("invalid MNRC: %s", sample[2])
	}
	if r.CS, err = strconv.ParseFloat(sample[3], 64); err != nil {
		return nil, p.errorf("invalid CS: %s", sample[3])
	}
	return r, nil
}

// parseInfo parses the INFO field; flags map to an empty value.
func parseInfo(info string) map[string]string {
	result := make(map[string]string)
	if info == "." {
		return result
	}
	for _, kv := range strings.Split(info, ";") {
		k, v, _ := strings.Cut(kv, "=")
		result[k] = v
	}
	return result
}

// Header returns the VCF header lines.
func (p *Parser) Header() []string {
	return p.header
}

// SampleNames returns sample names from the #CHROM header line.
func (p *Parser) SampleNames() []string {
	return p.sampleNames
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// Close closes the underlying file.
func (p *Parser) Close() error {
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}

// ReadFile reads every record of a VCF file.
func ReadFile(path string) ([]Record, error) {
	p, err := NewParser(path)
	if err != nil {
		return nil, err
	}
	defer p.Close()
	var out []Record
	for {
		r, err := p.Next()
		if err != nil {
			return nil, err
		}
		if r == nil {
			return out, nil
		}
		out = append(out, *r)
	}
}

// ParseError represents an error during VCF parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("vcf parse error at line %d: %s", e.Line, e.Message)
}
