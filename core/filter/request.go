package filter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Operator symbols accepted in a condition's comp.
const (
	OpEqual          = "="
	OpNotEqual       = "!="
	OpLess           = "<"
	OpLessOrEqual    = "<="
	OpGreater        = ">"
	OpGreaterOrEqual = ">="
	OpContains       = "~"
	OpStartsWith     = "^"
	OpBetween        = "><"
	OpIn             = "@"
)

// Request is a decoded filter request:
//
//	{"conditions": {"<field>": {"comp": "<op>", "value": "<v>", "valueTo": "<v2>"}},
//	 "sort": {"<field>": "a|d"}, "maxRows": <n>}
type Request struct {
	Conditions map[string]Condition `json:"conditions"`
	Sort       Sort                 `json:"sort"`
	MaxRows    int                  `json:"maxRows"`
}

// Condition is one field condition. Value and ValueTo are kept as text and
// parsed with the field's value kind when the query is built.
type Condition struct {
	Comp       string
	Value      string
	ValueTo    string
	hasValue   bool
	hasValueTo bool
}

// NewCondition returns a condition with a value. valueTo is used by between.
func NewCondition(comp, value string, valueTo ...string) Condition {
	c := Condition{Comp: comp, Value: value, hasValue: true}
	if len(valueTo) > 0 {
		c.ValueTo = valueTo[0]
		c.hasValueTo = true
	}
	return c
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Comp    any `json:"comp"`
		Value   any `json:"value"`
		ValueTo any `json:"valueTo"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw.Comp != nil {
		comp, ok := raw.Comp.(string)
		if !ok {
			return errors.New("comp must be a string")
		}
		c.Comp = comp
	}
	var ok bool
	if c.Value, c.hasValue, ok = primitive(raw.Value); !ok {
		return errors.New("value must be a string, number or boolean")
	}
	if c.ValueTo, c.hasValueTo, ok = primitive(raw.ValueTo); !ok {
		return errors.New("valueTo must be a string, number or boolean")
	}
	return nil
}

// primitive renders a decoded JSON primitive as text. The second return is
// false for a missing value and the third for a non-primitive one.
func primitive(v any) (string, bool, bool) {
	switch val := v.(type) {
	case nil:
		return "", false, true
	case string:
		return val, true, true
	case json.Number:
		return val.String(), true, true
	case bool:
		return strconv.FormatBool(val), true, true
	}
	return "", false, false
}

// SortField orders by one field.
type SortField struct {
	Field      string
	Descending bool
}

// Sort keeps the sort fields in the order they appear in the request.
type Sort []SortField

func (s *Sort) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("sort must be an object")
	}
	var out Sort
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name := tok.(string)
		var dir string
		if err := dec.Decode(&dir); err != nil {
			return fmt.Errorf("sort direction of %s: %w", name, err)
		}
		out = append(out, SortField{Field: name, Descending: isDescending(dir)})
	}
	*s = out
	return nil
}

func isDescending(dir string) bool {
	return dir != "" && (dir[0] == 'd' || dir[0] == 'D')
}

// ParseRequest decodes a filter request.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode filter request: %w", err)
	}
	return &req, nil
}
