// Package upload reads row-upload specifications and runs them.
//
// A specification maps every input row onto one or more forms:
//
//	{
//	  "params":    {"<name>": "<value>"},
//	  "lookups":   {"<name>": "<value list>" | {"<text>": "<value>"} | {"<key>": {"<text>": "<value>"}}},
//	  "functions": {"<name>": "<application function>"},
//	  "inserts":   [{"form": "<form>", "generatedKey": "<name>", "fields": {"<field>": "<expr>"}}]
//	}
//
// A field expression starts with one character that selects its meaning:
// =column reads an input column, 'text is a constant, $param refers to a
// declared param, #lookup(text[, key]) translates text through a lookup and
// &fn(arg, ...) calls a declared function. Lookup and function arguments are
// expressions themselves but cannot be lookups or functions. An expression
// with any other first character is a constant.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/stokaro/formkit/batch"
	"github.com/stokaro/formkit/core/fn"
	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/valuelist"
)

// ErrInvalidSpec is wrapped by every error about the content of a specification.
var ErrInvalidSpec = errors.New("invalid upload spec")

// Components resolves the application components a specification refers to.
type Components interface {
	Form(name string) (*form.Form, error)
	ValueList(name string) (valuelist.ValueList, error)
	Function(name string) (fn.Function, error)
}

// Spec is a parsed upload specification.
type Spec struct {
	Name      string
	Params    map[string]string
	Lookups   map[string]map[string]string
	Functions map[string]fn.Function
	Mappers   []*batch.FormMapper
	// keyed lists the lookups that are indexed by key and text.
	keyed map[string]bool
}

// Processor returns a row processor over the mappers of the spec.
func (s *Spec) Processor() *batch.RowProcessor {
	return batch.NewRowProcessor(s.Mappers...)
}

type rawSpec struct {
	Params    map[string]json.RawMessage `json:"params"`
	Lookups   map[string]json.RawMessage `json:"lookups"`
	Functions map[string]json.RawMessage `json:"functions"`
	Inserts   []json.RawMessage          `json:"inserts"`
}

type rawInsert struct {
	Form         string                     `json:"form"`
	GeneratedKey json.RawMessage            `json:"generatedKey"`
	Fields       map[string]json.RawMessage `json:"fields"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSpec, fmt.Sprintf(format, args...))
}

// Parse reads a specification. System value lists named by lookups are read
// once, here, so ctx must carry whatever they need, such as the tenant.
func Parse(ctx context.Context, name string, data []byte, comps Components) (*Spec, error) {
	var raw rawSpec
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSpec, name, err)
	}
	s := &Spec{
		Name:      name,
		Params:    make(map[string]string, len(raw.Params)),
		Lookups:   make(map[string]map[string]string, len(raw.Lookups)),
		Functions: make(map[string]fn.Function, len(raw.Functions)),
		keyed:     make(map[string]bool),
	}
	if err := s.parseParams(raw.Params); err != nil {
		return nil, err
	}
	if err := s.parseLookups(ctx, raw.Lookups, comps); err != nil {
		return nil, err
	}
	if err := s.parseFunctions(raw.Functions, comps); err != nil {
		return nil, err
	}
	if len(raw.Inserts) == 0 {
		return nil, invalid("inserts are missing")
	}
	for i, ri := range raw.Inserts {
		m, err := s.parseInsert(ri, comps)
		if err != nil {
			return nil, fmt.Errorf("insert %d: %w", i, err)
		}
		s.Mappers = append(s.Mappers, m)
	}
	return s, nil
}

func (s *Spec) parseParams(params map[string]json.RawMessage) error {
	for name, raw := range params {
		v, ok := primitive(raw)
		if !ok {
			return invalid("param %s must have a primitive value", name)
		}
		s.Params[name] = v
	}
	return nil
}

func (s *Spec) parseFunctions(functions map[string]json.RawMessage, comps Components) error {
	for name, raw := range functions {
		var target string
		if err := json.Unmarshal(raw, &target); err != nil {
			return invalid("function %s must name an application function", name)
		}
		f, err := comps.Function(target)
		if err != nil {
			return fmt.Errorf("%w: function %s: %v", ErrInvalidSpec, name, err)
		}
		s.Functions[name] = f
	}
	return nil
}

func (s *Spec) parseLookups(ctx context.Context, lookups map[string]json.RawMessage, comps Components) error {
	for name, raw := range lookups {
		var system string
		if err := json.Unmarshal(raw, &system); err == nil {
			if err := s.systemLookup(ctx, name, system, comps); err != nil {
				return err
			}
			continue
		}
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			return invalid("lookup %s must name a value list or be an object", name)
		}
		table, keyed, err := localLookup(entries)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", name, err)
		}
		s.Lookups[name] = table
		s.keyed[name] = keyed
	}
	return nil
}

// localLookup reads {"text": "value"} or {"key": {"text": "value"}}. The shape
// is decided by the first entry and every entry must follow it.
func localLookup(entries map[string]json.RawMessage) (map[string]string, bool, error) {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	table := make(map[string]string)
	keyed := false
	for i, name := range names {
		raw := entries[name]
		var nested map[string]json.RawMessage
		isObject := json.Unmarshal(raw, &nested) == nil && nested != nil
		if i == 0 {
			keyed = isObject
		}
		if isObject != keyed {
			return nil, false, invalid("entry %s does not match the shape of the other entries", name)
		}
		if !keyed {
			v, ok := primitive(raw)
			if !ok {
				return nil, false, invalid("entry %s must have a primitive value", name)
			}
			table[name] = v
			continue
		}
		for text, rawValue := range nested {
			v, ok := primitive(rawValue)
			if !ok {
				return nil, false, invalid("entry %s|%s must have a primitive value", name, text)
			}
			table[name+valuelist.KeyTextSeparator+text] = v
		}
	}
	return table, keyed, nil
}

type allValues interface {
	All(ctx context.Context) (map[string]string, error)
}

type keyedValues interface {
	All() map[string]string
}

func (s *Spec) systemLookup(ctx context.Context, name, listName string, comps Components) error {
	list, err := comps.ValueList(listName)
	if err != nil {
		return fmt.Errorf("%w: lookup %s: %v", ErrInvalidSpec, name, err)
	}
	table := make(map[string]string)
	switch {
	case list.IsKeyed():
		switch l := list.(type) {
		case allValues:
			if table, err = l.All(ctx); err != nil {
				return fmt.Errorf("failed to read lookup %s: %w", name, err)
			}
		case keyedValues:
			table = l.All()
		default:
			return invalid("keyed list %s of lookup %s cannot list all its values", listName, name)
		}
	default:
		entries, err := list.List(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to read lookup %s: %w", name, err)
		}
		for _, e := range entries {
			table[e.Text] = fmt.Sprint(e.Value)
		}
	}
	s.Lookups[name] = table
	s.keyed[name] = list.IsKeyed()
	return nil
}

func (s *Spec) parseInsert(data json.RawMessage, comps Components) (*batch.FormMapper, error) {
	var ri rawInsert
	if err := json.Unmarshal(data, &ri); err != nil {
		return nil, invalid("an insert must be an object")
	}
	if ri.Form == "" {
		return nil, invalid("form is required")
	}
	f, err := comps.Form(ri.Form)
	if err != nil {
		return nil, fmt.Errorf("%w: form %s: %v", ErrInvalidSpec, ri.Form, err)
	}
	var generatedKey string
	if ri.GeneratedKey != nil {
		v, ok := primitive(ri.GeneratedKey)
		if !ok {
			return nil, invalid("generatedKey must be a name")
		}
		generatedKey = v
	}
	if ri.Fields == nil {
		return nil, invalid("fields of form %s are missing", ri.Form)
	}

	providers := make(map[string]batch.ValueProvider, len(ri.Fields))
	for name, raw := range ri.Fields {
		if _, ok := f.Field(name); !ok {
			return nil, invalid("%s is not a field of form %s", name, ri.Form)
		}
		expr, ok := primitive(raw)
		if !ok {
			return nil, invalid("field %s of form %s must have a text expression", name, ri.Form)
		}
		p, err := s.expression(expr, true)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		providers[name] = p
	}
	m, err := batch.NewFormMapper(f, generatedKey, providers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return m, nil
}

// primitive renders a JSON string, number or boolean as text.
func primitive(raw json.RawMessage) (string, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case float64, bool:
		return string(raw), true
	}
	return "", false
}
