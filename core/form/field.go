package form

import (
	"context"
	"fmt"

	"github.com/stokaro/formkit/core/datatype"
	"github.com/stokaro/formkit/core/message"
	"github.com/stokaro/formkit/core/valuelist"
	"github.com/stokaro/formkit/core/valuetype"
)

// FieldSpec declares a field. DataType and ValueList are names resolved
// through a Lookup when the form is built.
type FieldSpec struct {
	Name      string
	DataType  string
	Default   string
	MessageID string
	Required  bool
	Editable  bool
	ValueList string
	// Column defaults to Name for persisted roles.
	Column string
	Role   ColumnRole
}

// Field is one typed attribute of a form. It is immutable once the form is built.
type Field struct {
	name          string
	index         int
	dataType      datatype.DataType
	defaultValue  any
	messageID     string
	required      bool
	editable      bool
	valueListName string
	valueList     valuelist.ValueList
	column        string
	role          ColumnRole
}

func newField(spec FieldSpec, index int, lookup Lookup) (*Field, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("field at index %d has no name", index)
	}
	dt, err := lookup.DataType(spec.DataType)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data type of field %s: %w", spec.Name, err)
	}
	f := &Field{
		name:          spec.Name,
		index:         index,
		dataType:      dt,
		messageID:     spec.MessageID,
		required:      spec.Required,
		editable:      spec.Editable,
		valueListName: spec.ValueList,
		column:        spec.Column,
		role:          spec.Role,
	}
	if !spec.Role.valid() {
		return nil, fmt.Errorf("field %s has an invalid column role %d", spec.Name, spec.Role)
	}
	caps := spec.Role.Capabilities()
	if spec.Role.IsPersisted() && caps.Input && caps.Required {
		f.required = true
	}
	if f.column == "" && spec.Role.IsPersisted() {
		f.column = spec.Name
	}
	if spec.Default != "" {
		v, ok := dt.Parse(spec.Default)
		if !ok {
			return nil, fmt.Errorf("default value %q of field %s is not a valid %s", spec.Default, spec.Name, dt.Name())
		}
		f.defaultValue = v
	}
	if spec.ValueList != "" {
		l, err := lookup.ValueList(spec.ValueList)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve value list of field %s: %w", spec.Name, err)
		}
		f.valueList = l
	}
	return f, nil
}

func (f *Field) Name() string                   { return f.name }
func (f *Field) Index() int                     { return f.index }
func (f *Field) DataType() datatype.DataType    { return f.dataType }
func (f *Field) Kind() valuetype.Kind           { return f.dataType.Kind() }
func (f *Field) Default() any                   { return f.defaultValue }
func (f *Field) Required() bool                 { return f.required }
func (f *Field) Editable() bool                 { return f.editable }
func (f *Field) ValueListName() string          { return f.valueListName }
func (f *Field) ValueList() valuelist.ValueList { return f.valueList }
func (f *Field) Column() string                 { return f.column }
func (f *Field) Role() ColumnRole               { return f.role }

// MessageID is the id reported when a value is rejected. It falls back to the
// data type's id.
func (f *Field) MessageID() string {
	if f.messageID != "" {
		return f.messageID
	}
	return f.dataType.MessageID()
}

// IsEmpty reports whether raw counts as absent input.
func IsEmpty(raw any) bool {
	if raw == nil {
		return true
	}
	s, ok := raw.(string)
	return ok && s == ""
}

// Parse validates raw input for the field. A rejected value is reported through
// the returned message id, never through err; err is set only when a value
// list could not be consulted.
//
// An absent value parses to nil for an optional field. Membership of keyed
// lists depends on another field and is left to a DependentList validation.
func (f *Field) Parse(ctx context.Context, raw any) (value any, msgID string, err error) {
	if IsEmpty(raw) {
		if f.required {
			return nil, message.FieldRequired, nil
		}
		return nil, "", nil
	}

	var ok bool
	switch v := raw.(type) {
	case string:
		value, ok = f.dataType.Parse(v)
	case map[string]any, []any:
		ok = false
	default:
		value, ok = f.dataType.ParseValue(v)
	}
	if !ok {
		return nil, f.MessageID(), nil
	}

	if f.valueList != nil && !f.valueList.IsKeyed() {
		valid, err := f.valueList.IsValid(ctx, value, nil)
		if err != nil {
			return nil, "", fmt.Errorf("failed to validate field %s: %w", f.name, err)
		}
		if !valid {
			return nil, f.MessageID(), nil
		}
	}
	return value, "", nil
}
