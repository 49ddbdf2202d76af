package datanorm

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ignite/listvault/internal/domain"
)

// maxLineBytes bounds a single text line; anything longer is an error
// rather than a silent truncation.
const maxLineBytes = 1 << 20

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadRows splits an uploaded source into the ordered raw strings fed to the
// import pipeline. Text sources yield one row per line; CSV sources yield the
// email column of every data row. Pasted lists often mix separators, so a
// text line is further split on "," and ";". Tokens are returned untouched:
// blank lines and odd cells are the pipeline's to classify.
func ReadRows(r io.Reader, source domain.SourceType) ([]string, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(3); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(3)
	}

	switch source {
	case domain.SourceCSV:
		return readCSV(br)
	case domain.SourceText, "":
		return readText(br)
	default:
		return nil, fmt.Errorf("unsupported source type %q", source)
	}
}

func readText(r io.Reader) ([]string, error) {
	var rows []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		rows = append(rows, splitLine(sc.Text())...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read text source: %w", err)
	}
	return rows, nil
}

// splitLine breaks a text line on list separators. Empty tokens next to a
// real one are dropped; a line with nothing else still yields one row so
// blank lines keep their place in the audit trail.
func splitLine(line string) []string {
	parts := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ';' })
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{line}
	}
	return out
}

func readCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	var (
		rows    []string
		mapping *ColumnMapping
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv source: %w", err)
		}
		if mapping == nil {
			if mapping = MapColumns(rec); mapping != nil {
				continue
			}
			mapping = MapColumnsHeaderless(rec)
		}
		if mapping.EmailIdx < len(rec) {
			rows = append(rows, rec[mapping.EmailIdx])
		} else {
			rows = append(rows, "")
		}
	}
	return rows, nil
}
