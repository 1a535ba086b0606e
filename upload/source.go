package upload

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/stokaro/formkit/batch"
	"github.com/stokaro/formkit/core/message"
)

// CSVSource reads rows from CSV text whose first record names the columns.
// Messages acknowledged for a row are logged with its line number.
type CSVSource struct {
	r      *csv.Reader
	header []string
	line   int
	logger *slog.Logger
}

// NewCSVSource returns a source over r. Blank cells are kept as empty text.
func NewCSVSource(r io.Reader) *CSVSource {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	return &CSVSource{r: cr, logger: slog.Default()}
}

// WithLogger sets the logger for the source
func (s *CSVSource) WithLogger(l *slog.Logger) *CSVSource {
	s.logger = l
	return s
}

func (s *CSVSource) NextRow(prev []message.Message) (batch.Row, bool, error) {
	if len(prev) > 0 {
		s.logger.Warn("Row rejected", "line", s.line, "messages", prev)
	}
	if s.header == nil {
		header, err := s.r.Read()
		if errors.Is(err, io.EOF) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to read csv header: %w", err)
		}
		for i := range header {
			header[i] = strings.TrimSpace(header[i])
		}
		s.header = header
	}
	record, err := s.r.Read()
	if errors.Is(err, io.EOF) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read csv record: %w", err)
	}
	s.line, _ = s.r.FieldPos(0)
	if len(record) > len(s.header) {
		return nil, false, fmt.Errorf("csv line %d has %d values for %d columns", s.line, len(record), len(s.header))
	}
	row := make(batch.Row, len(record))
	for i, v := range record {
		row[s.header[i]] = v
	}
	return row, true, nil
}

// JSONSource streams rows from a JSON array of flat objects. Strings,
// numbers and booleans become text; null drops the column.
type JSONSource struct {
	dec     *json.Decoder
	started bool
	index   int
}

// NewJSONSource returns a source over r.
func NewJSONSource(r io.Reader) *JSONSource {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &JSONSource{dec: dec}
}

func (s *JSONSource) NextRow([]message.Message) (batch.Row, bool, error) {
	if !s.started {
		tok, err := s.dec.Token()
		if err != nil {
			return nil, false, fmt.Errorf("failed to read json rows: %w", err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return nil, false, fmt.Errorf("json rows must be an array, got %v", tok)
		}
		s.started = true
	}
	if !s.dec.More() {
		return nil, false, nil
	}
	var obj map[string]any
	if err := s.dec.Decode(&obj); err != nil {
		return nil, false, fmt.Errorf("failed to read json row %d: %w", s.index, err)
	}
	if obj == nil {
		return nil, false, fmt.Errorf("json row %d is not an object", s.index)
	}
	row := make(batch.Row, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case nil:
		case string:
			row[k] = val
		case json.Number:
			row[k] = val.String()
		case bool:
			row[k] = fmt.Sprint(val)
		default:
			return nil, false, fmt.Errorf("json row %d: %s must be a primitive value", s.index, k)
		}
	}
	s.index++
	return row, true, nil
}
