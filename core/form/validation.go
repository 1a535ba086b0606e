package form

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/stokaro/formkit/core/message"
	"github.com/stokaro/formkit/core/valuelist"
	"github.com/stokaro/formkit/core/valuetype"
)

// Validation checks a rule across fields of a fully loaded record.
type Validation interface {
	// FieldName is the field the failure message is attached to.
	FieldName() string
	// Validate returns a message when the rule fails. err reports a fault
	// while consulting an external source, such as a runtime list.
	Validate(ctx context.Context, fd *FormData) (*message.Message, error)
}

// ValidationSpec declares a validation by field names.
type ValidationSpec interface {
	Bind(f *Form, lookup Lookup) (Validation, error)
}

func fieldIndex(f *Form, name string) (int, error) {
	field, ok := f.fieldMap[name]
	if !ok {
		return 0, fmt.Errorf("%s is not a field of form %s", name, f.name)
	}
	return field.index, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

type rule struct {
	fieldName string
	messageID string
}

func (r rule) FieldName() string { return r.fieldName }

func (r rule) fail() *message.Message {
	m := message.NewFieldError(r.fieldName, r.messageID)
	return &m
}

// FromTo requires the value of To to be after the value of From. Text is
// compared ignoring case. Either value being absent passes.
type FromTo struct {
	From      string
	To        string
	EqualOK   bool
	Field     string
	MessageID string
}

func (s FromTo) Bind(f *Form, _ Lookup) (Validation, error) {
	from, err := fieldIndex(f, s.From)
	if err != nil {
		return nil, err
	}
	to, err := fieldIndex(f, s.To)
	if err != nil {
		return nil, err
	}
	return &fromTo{
		rule:    rule{orDefault(s.Field, s.From), orDefault(s.MessageID, message.InvalidValue)},
		from:    from,
		to:      to,
		kind:    f.fields[from].Kind(),
		equalOK: s.EqualOK,
	}, nil
}

type fromTo struct {
	rule
	from, to int
	kind     valuetype.Kind
	equalOK  bool
}

func (v *fromTo) Validate(_ context.Context, fd *FormData) (*message.Message, error) {
	fm, to := fd.values[v.from], fd.values[v.to]
	if fm == nil || to == nil {
		return nil, nil
	}
	n, ok := v.kind.Compare(fm, to)
	if v.kind == valuetype.Text || !ok {
		folder := cases.Fold()
		n = strings.Compare(folder.String(v.kind.Format(fm)), folder.String(v.kind.Format(to)))
	}
	if n < 0 || (n == 0 && v.equalOK) {
		return nil, nil
	}
	return v.fail(), nil
}

// Exclusive allows at most one of two fields to have a value. With
// OneRequired exactly one must have a value.
type Exclusive struct {
	First       string
	Second      string
	OneRequired bool
	Field       string
	MessageID   string
}

func (s Exclusive) Bind(f *Form, _ Lookup) (Validation, error) {
	first, err := fieldIndex(f, s.First)
	if err != nil {
		return nil, err
	}
	second, err := fieldIndex(f, s.Second)
	if err != nil {
		return nil, err
	}
	return &exclusive{
		rule:        rule{orDefault(s.Field, s.First), orDefault(s.MessageID, message.InvalidValue)},
		first:       first,
		second:      second,
		oneRequired: s.OneRequired,
	}, nil
}

type exclusive struct {
	rule
	first, second int
	oneRequired   bool
}

func (v *exclusive) Validate(_ context.Context, fd *FormData) (*message.Message, error) {
	a, b := fd.values[v.first] != nil, fd.values[v.second] != nil
	switch {
	case a && b:
		return v.fail(), nil
	case !a && !b && v.oneRequired:
		return v.fail(), nil
	}
	return nil, nil
}

// Inclusive makes Dependent required when Main has a value (or the value
// MainValue, when given) and disallowed otherwise.
type Inclusive struct {
	Main      string
	Dependent string
	MainValue string
	Field     string
	MessageID string
}

func (s Inclusive) Bind(f *Form, _ Lookup) (Validation, error) {
	main, err := fieldIndex(f, s.Main)
	if err != nil {
		return nil, err
	}
	dep, err := fieldIndex(f, s.Dependent)
	if err != nil {
		return nil, err
	}
	return &inclusive{
		rule:      rule{orDefault(s.Field, s.Dependent), orDefault(s.MessageID, message.InvalidValue)},
		main:      main,
		dependent: dep,
		kind:      f.fields[main].Kind(),
		mainValue: s.MainValue,
	}, nil
}

type inclusive struct {
	rule
	main, dependent int
	kind            valuetype.Kind
	mainValue       string
}

func (v *inclusive) Validate(_ context.Context, fd *FormData) (*message.Message, error) {
	main := fd.values[v.main]
	specified := main != nil
	if specified && v.mainValue != "" {
		specified = v.kind.Format(main) == v.mainValue
	}
	if specified == (fd.values[v.dependent] != nil) {
		return nil, nil
	}
	return v.fail(), nil
}

// DependentList checks Field against a keyed list, using the value of Parent
// as the key. Either value being absent passes.
type DependentList struct {
	Field     string
	Parent    string
	List      string
	MessageID string
}

func (s DependentList) Bind(f *Form, lookup Lookup) (Validation, error) {
	idx, err := fieldIndex(f, s.Field)
	if err != nil {
		return nil, err
	}
	parent, err := fieldIndex(f, s.Parent)
	if err != nil {
		return nil, err
	}
	list, err := lookup.ValueList(s.List)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve list of %s: %w", s.Field, err)
	}
	return &dependentList{
		rule:   rule{s.Field, orDefault(s.MessageID, f.fields[idx].MessageID())},
		field:  idx,
		parent: parent,
		list:   list,
	}, nil
}

type dependentList struct {
	rule
	field, parent int
	list          valuelist.ValueList
}

func (v *dependentList) Validate(ctx context.Context, fd *FormData) (*message.Message, error) {
	value, key := fd.values[v.field], fd.values[v.parent]
	if value == nil || key == nil {
		return nil, nil
	}
	ok, err := v.list.IsValid(ctx, value, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s against list %s: %w", v.fieldName, v.list.Name(), err)
	}
	if ok {
		return nil, nil
	}
	return v.fail(), nil
}
