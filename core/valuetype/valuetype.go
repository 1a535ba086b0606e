// Package valuetype defines the closed set of value kinds a field can hold and
// the conversions every kind supports: parsing client input, formatting for the
// wire, binding as a SQL parameter and reading back from a result set.
//
// The Go representation of each kind is fixed:
//
//	Text       string
//	Integer    int64
//	Decimal    float64
//	Boolean    bool
//	Date       time.Time at midnight UTC
//	Timestamp  time.Time
//
// A nil value always means "no value" regardless of the kind.
package valuetype

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the value kind of a field or a SQL parameter.
type Kind int

const (
	Text Kind = iota
	Integer
	Decimal
	Boolean
	Date
	Timestamp
)

// DateLayout is the wire format of Date values.
const DateLayout = "2006-01-02"

var kindNames = [...]string{
	Text:      "text",
	Integer:   "integer",
	Decimal:   "decimal",
	Boolean:   "boolean",
	Date:      "date",
	Timestamp: "timestamp",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind returns the kind with the given (case-insensitive) name.
func ParseKind(name string) (Kind, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range kindNames {
		if s == n {
			return Kind(i), true
		}
	}
	return Text, false
}

// IsNumeric reports whether values of this kind are numbers.
func (k Kind) IsNumeric() bool {
	return k == Integer || k == Decimal
}

// Parse converts text input into a value of this kind. It never panics;
// the second return is false when the text is not a valid value.
func (k Kind) Parse(s string) (any, bool) {
	if k == Text {
		return s, true
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	switch k {
	case Integer:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	case Decimal:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return f, true
	case Boolean:
		switch strings.ToLower(s) {
		case "1", "true":
			return true, true
		case "0", "false":
			return false, true
		}
		return nil, false
	case Date:
		return parseDate(s)
	case Timestamp:
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, false
		}
		return t, true
	}
	return nil, false
}

// parseDate accepts either an ISO date prefix (yyyy-mm-dd...) or a number of
// days since the epoch.
func parseDate(s string) (any, bool) {
	if len(s) >= 10 {
		t, err := time.Parse(DateLayout, s[:10])
		if err != nil {
			return nil, false
		}
		return t, true
	}
	days, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, false
	}
	return time.Unix(days*86400, 0).UTC(), true
}

// FromJSON converts a value decoded from JSON (string, json.Number, float64,
// bool) or an already typed Go value into a value of this kind.
func (k Kind) FromJSON(v any) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case string:
		return k.Parse(val)
	case json.Number:
		return k.Parse(val.String())
	case bool:
		switch k {
		case Boolean:
			return val, true
		case Text:
			return strconv.FormatBool(val), true
		}
		return nil, false
	case float64:
		return k.fromFloat(val)
	case float32:
		return k.fromFloat(float64(val))
	case int:
		return k.fromInt(int64(val))
	case int32:
		return k.fromInt(int64(val))
	case int64:
		return k.fromInt(val)
	case time.Time:
		switch k {
		case Date:
			return DateOf(val), true
		case Timestamp:
			return val, true
		case Text:
			return val.Format(time.RFC3339Nano), true
		}
		return nil, false
	}
	return k.Parse(fmt.Sprint(v))
}

func (k Kind) fromFloat(f float64) (any, bool) {
	switch k {
	case Decimal:
		return f, true
	case Integer:
		if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
			return nil, false
		}
		return int64(f), true
	case Text:
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return k.Parse(strconv.FormatFloat(f, 'f', -1, 64))
}

func (k Kind) fromInt(n int64) (any, bool) {
	switch k {
	case Integer:
		return n, true
	case Decimal:
		return float64(n), true
	case Text:
		return strconv.FormatInt(n, 10), true
	}
	return k.Parse(strconv.FormatInt(n, 10))
}

// IsRightType reports whether v already carries the Go type of this kind.
func (k Kind) IsRightType(v any) bool {
	switch v.(type) {
	case string:
		return k == Text
	case int64:
		return k == Integer
	case float64:
		return k == Decimal
	case bool:
		return k == Boolean
	case time.Time:
		return k == Date || k == Timestamp
	}
	return false
}

// Format renders a value as text. nil renders as an empty string.
func (k Kind) Format(v any) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		if k == Date {
			return val.Format(DateLayout)
		}
		return val.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// ToJSON returns the representation written to JSON: numbers and booleans stay
// native, dates and timestamps become strings.
func (k Kind) ToJSON(v any) any {
	if t, ok := v.(time.Time); ok {
		return k.Format(t)
	}
	return v
}

// ToDB returns the value to bind as a SQL parameter. Text has no NULL in the
// store: a nil text binds as an empty string.
func (k Kind) ToDB(v any) any {
	if v == nil {
		if k == Text {
			return ""
		}
		return nil
	}
	if k == Date {
		if t, ok := v.(time.Time); ok {
			return DateOf(t)
		}
	}
	return v
}

// ScanTarget returns a fresh destination suitable for sql.Rows.Scan.
func (k Kind) ScanTarget() any {
	switch k {
	case Integer:
		return new(sql.NullInt64)
	case Decimal:
		return new(sql.NullFloat64)
	case Boolean:
		return new(sql.NullBool)
	case Date, Timestamp:
		return new(sql.NullTime)
	default:
		return new(sql.NullString)
	}
}

// FromScan extracts the value from a destination created by ScanTarget.
func (k Kind) FromScan(target any) any {
	switch t := target.(type) {
	case *sql.NullString:
		if !t.Valid {
			return nil
		}
		return t.String
	case *sql.NullInt64:
		if !t.Valid {
			return nil
		}
		return t.Int64
	case *sql.NullFloat64:
		if !t.Valid {
			return nil
		}
		return t.Float64
	case *sql.NullBool:
		if !t.Valid {
			return nil
		}
		return t.Bool
	case *sql.NullTime:
		if !t.Valid {
			return nil
		}
		if k == Date {
			return DateOf(t.Time)
		}
		return t.Time
	}
	return nil
}

// Compare orders two values of this kind. The second return is false when the
// values are not comparable (nil, wrong type, or booleans).
func (k Kind) Compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case int64:
		y, ok := b.(int64)
		if !ok {
			return 0, false
		}
		return cmp(x < y, x > y), true
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		return cmp(x < y, x > y), true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	}
	return 0, false
}

func cmp(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

// DateOf truncates t to its calendar date at midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
