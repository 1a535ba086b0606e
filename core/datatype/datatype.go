// Package datatype provides the validators that turn raw input into typed field
// values. A DataType is immutable and shared by every field that refers to it,
// so implementations must be safe for concurrent use.
//
// Parsing never panics and never returns an error: a false second return tells
// the caller to attach its own field-level message, using MessageID.
package datatype

import (
	"math"
	"regexp"
	"time"

	"github.com/go-extras/go-kit/must"

	"github.com/stokaro/formkit/core/valuetype"
)

// DefaultMessageID is used when a data type is declared without a message id.
const DefaultMessageID = "invalidValue"

// DataType validates and converts input for one value kind.
type DataType interface {
	Name() string
	MessageID() string
	Kind() valuetype.Kind
	// Parse converts text input.
	Parse(s string) (any, bool)
	// ParseValue converts a decoded JSON value or an already typed value.
	ParseValue(v any) (any, bool)
}

type base struct {
	name      string
	messageID string
}

func (b base) Name() string { return b.name }

func (b base) MessageID() string {
	if b.messageID == "" {
		return DefaultMessageID
	}
	return b.messageID
}

// Text constrains length and, optionally, the full content with a pattern.
type Text struct {
	base
	minLength int
	maxLength int
	pattern   *regexp.Regexp
}

// NewText returns a text type. maxLength 0 means unlimited. A non-nil pattern
// must match the whole value.
func NewText(name, messageID string, minLength, maxLength int, pattern *regexp.Regexp) *Text {
	if pattern != nil {
		pattern = must.Must(regexp.Compile(`\A(?:` + pattern.String() + `)\z`))
	}
	return &Text{base: base{name, messageID}, minLength: minLength, maxLength: maxLength, pattern: pattern}
}

func (t *Text) Kind() valuetype.Kind { return valuetype.Text }

// MaxLength is the longest accepted value in characters, 0 when unlimited.
func (t *Text) MaxLength() int { return t.maxLength }

func (t *Text) Parse(s string) (any, bool) {
	n := len([]rune(s))
	if n < t.minLength || (t.maxLength > 0 && n > t.maxLength) {
		return nil, false
	}
	if t.pattern != nil && !t.pattern.MatchString(s) {
		return nil, false
	}
	return s, true
}

func (t *Text) ParseValue(v any) (any, bool) {
	s, ok := valuetype.Text.FromJSON(v)
	if !ok {
		return nil, false
	}
	return t.Parse(s.(string))
}

// Integer constrains a whole number to [min, max].
type Integer struct {
	base
	min int64
	max int64
}

func NewInteger(name, messageID string, min, max int64) *Integer {
	return &Integer{base: base{name, messageID}, min: min, max: max}
}

func (t *Integer) Kind() valuetype.Kind { return valuetype.Integer }

func (t *Integer) Parse(s string) (any, bool) {
	v, ok := valuetype.Integer.Parse(s)
	if !ok {
		return nil, false
	}
	return t.validate(v.(int64))
}

func (t *Integer) ParseValue(v any) (any, bool) {
	n, ok := valuetype.Integer.FromJSON(v)
	if !ok {
		return nil, false
	}
	return t.validate(n.(int64))
}

func (t *Integer) validate(n int64) (any, bool) {
	if n < t.min || n > t.max {
		return nil, false
	}
	return n, true
}

// Decimal rounds to a fixed number of decimal places and then constrains the
// rounded value to [min, max].
type Decimal struct {
	base
	min         float64
	max         float64
	nbrDecimals int
	factor      float64
}

func NewDecimal(name, messageID string, min, max float64, nbrDecimals int) *Decimal {
	return &Decimal{
		base:        base{name, messageID},
		min:         min,
		max:         max,
		nbrDecimals: nbrDecimals,
		factor:      math.Pow10(nbrDecimals),
	}
}

func (t *Decimal) Kind() valuetype.Kind { return valuetype.Decimal }

func (t *Decimal) NbrDecimals() int { return t.nbrDecimals }

func (t *Decimal) Parse(s string) (any, bool) {
	v, ok := valuetype.Decimal.Parse(s)
	if !ok {
		return nil, false
	}
	return t.validate(v.(float64))
}

func (t *Decimal) ParseValue(v any) (any, bool) {
	f, ok := valuetype.Decimal.FromJSON(v)
	if !ok {
		return nil, false
	}
	return t.validate(f.(float64))
}

func (t *Decimal) validate(f float64) (any, bool) {
	r := math.Round(f*t.factor) / t.factor
	if r < t.min || r > t.max {
		return nil, false
	}
	return r, true
}

// Date constrains a calendar date to a window around today.
type Date struct {
	base
	maxPastDays   int
	maxFutureDays int
	now           func() time.Time
}

func NewDate(name, messageID string, maxPastDays, maxFutureDays int) *Date {
	return &Date{base: base{name, messageID}, maxPastDays: maxPastDays, maxFutureDays: maxFutureDays, now: time.Now}
}

// WithClock returns a copy of the type that takes "today" from now.
func (t *Date) WithClock(now func() time.Time) *Date {
	tmp := *t
	tmp.now = now
	return &tmp
}

func (t *Date) Kind() valuetype.Kind { return valuetype.Date }

func (t *Date) Parse(s string) (any, bool) {
	v, ok := valuetype.Date.Parse(s)
	if !ok {
		return nil, false
	}
	return t.validate(v.(time.Time))
}

func (t *Date) ParseValue(v any) (any, bool) {
	d, ok := valuetype.Date.FromJSON(v)
	if !ok {
		return nil, false
	}
	return t.validate(d.(time.Time))
}

func (t *Date) validate(d time.Time) (any, bool) {
	today := valuetype.DateOf(t.now())
	if d.Before(today.AddDate(0, 0, -t.maxPastDays)) {
		return nil, false
	}
	if d.After(today.AddDate(0, 0, t.maxFutureDays)) {
		return nil, false
	}
	return d, true
}

// Boolean accepts 1/0/true/false.
type Boolean struct {
	base
}

func NewBoolean(name, messageID string) *Boolean {
	return &Boolean{base{name, messageID}}
}

func (t *Boolean) Kind() valuetype.Kind { return valuetype.Boolean }

func (t *Boolean) Parse(s string) (any, bool) { return valuetype.Boolean.Parse(s) }

func (t *Boolean) ParseValue(v any) (any, bool) { return valuetype.Boolean.FromJSON(v) }

// Timestamp accepts RFC 3339 instants.
type Timestamp struct {
	base
}

func NewTimestamp(name, messageID string) *Timestamp {
	return &Timestamp{base{name, messageID}}
}

func (t *Timestamp) Kind() valuetype.Kind { return valuetype.Timestamp }

func (t *Timestamp) Parse(s string) (any, bool) { return valuetype.Timestamp.Parse(s) }

func (t *Timestamp) ParseValue(v any) (any, bool) { return valuetype.Timestamp.FromJSON(v) }
