package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ignite/listvault/internal/domain"
)

// Writer renders export rows to an output stream. Flush must be called
// once after the last row.
type Writer interface {
	Write(row domain.ExportRow) error
	Flush() error
}

var csvHeader = []string{"email", "domain", "is_valid", "invalid_reason"}

// ParseFormat maps a format name to an ExportFormat. Unknown names report
// false.
func ParseFormat(s string) (domain.ExportFormat, bool) {
	switch f := domain.ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case domain.FormatCSV, domain.FormatTXT, domain.FormatJSON:
		return f, true
	}
	return "", false
}

// ContentType returns the HTTP content type for format.
func ContentType(format domain.ExportFormat) string {
	switch format {
	case domain.FormatTXT:
		return "text/plain; charset=utf-8"
	case domain.FormatJSON:
		return "application/x-ndjson"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Extension returns the file extension for format, without the dot.
func Extension(format domain.ExportFormat) string {
	if format == domain.FormatJSON {
		return "jsonl"
	}
	return string(format)
}

// NewWriter returns the Writer for format over w.
func NewWriter(format domain.ExportFormat, w io.Writer) (Writer, error) {
	switch format {
	case domain.FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return nil, err
		}
		return &csvWriter{w: cw}, nil
	case domain.FormatTXT:
		return &txtWriter{w: bufio.NewWriter(w)}, nil
	case domain.FormatJSON:
		bw := bufio.NewWriter(w)
		return &jsonWriter{bw: bw, enc: json.NewEncoder(bw)}, nil
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

type csvWriter struct {
	w *csv.Writer
}

func (c *csvWriter) Write(r domain.ExportRow) error {
	return c.w.Write([]string{r.Email, r.Domain, strconv.FormatBool(r.IsValid), r.InvalidReason})
}

func (c *csvWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

// txtWriter writes one address per line.
type txtWriter struct {
	w *bufio.Writer
}

func (t *txtWriter) Write(r domain.ExportRow) error {
	if _, err := t.w.WriteString(r.Email); err != nil {
		return err
	}
	return t.w.WriteByte('\n')
}

func (t *txtWriter) Flush() error { return t.w.Flush() }

type jsonWriter struct {
	bw  *bufio.Writer
	enc *json.Encoder
}

func (j *jsonWriter) Write(r domain.ExportRow) error { return j.enc.Encode(r) }

func (j *jsonWriter) Flush() error { return j.bw.Flush() }
