// Package form implements declarative forms: typed fields, nested child forms,
// inter-field validations, the record instances (FormData) that carry their
// values, and the SQL bindings that persist them.
package form

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/stokaro/formkit/core/datatype"
	"github.com/stokaro/formkit/core/valuelist"
)

// ErrNotPersistent is returned by database operations on a form without a table.
var ErrNotPersistent = errors.New("form is not designed for db operations")

// Lookup resolves the named components a form refers to.
type Lookup interface {
	DataType(name string) (datatype.DataType, error)
	ValueList(name string) (valuelist.ValueList, error)
	Form(name string) (*Form, error)
}

// ChildSpec declares a child form embedded under Name.
type ChildSpec struct {
	Name    string
	Form    string
	Tabular bool
	MinRows int
	// MaxRows of zero means no upper bound.
	MaxRows        int
	ErrorMessageID string
	// LinkParentFields are copied into LinkChildFields, position by position,
	// when children are persisted with their parent.
	LinkParentFields []string
	LinkChildFields  []string
}

// Spec declares a form.
type Spec struct {
	Name    string
	Version string
	// Table is empty for forms that are never persisted.
	Table       string
	Fields      []FieldSpec
	Children    []ChildSpec
	Validations []ValidationSpec
	UserIDField string
	// TimestampCheck adds the modified-at column to the update where clause.
	TimestampCheck bool
	// Operations lists the allowed service operations. Empty allows all.
	Operations []IoType
}

// ChildForm is a resolved child declaration.
type ChildForm struct {
	Name           string
	Form           *Form
	Tabular        bool
	MinRows        int
	MaxRows        int
	ErrorMessageID string
	index          int
}

// Index is the position of the child in its parent's child list.
func (c *ChildForm) Index() int { return c.index }

func (c *ChildForm) rowCountOK(n int) bool {
	if n < c.MinRows {
		return false
	}
	return c.MaxRows <= 0 || n <= c.MaxRows
}

// Form is the schema of a record. It is immutable after New returns and safe
// for concurrent use.
type Form struct {
	name          string
	version       string
	fields        []*Field
	fieldMap      map[string]*Field
	children      []*ChildForm
	childMap      map[string]*ChildForm
	validations   []Validation
	userIDIdx     int
	keyIndexes    []int
	uniqueIndexes []int
	operations    []IoType
	meta          *DbMeta
	logger        *slog.Logger
}

// New builds a form, resolving data types, value lists and child forms through
// lookup, and derives its key indexes and SQL bindings.
func New(spec Spec, lookup Lookup) (*Form, error) {
	if spec.Name == "" {
		return nil, errors.New("form name must not be empty")
	}
	f := &Form{
		name:       spec.Name,
		version:    spec.Version,
		fieldMap:   make(map[string]*Field, len(spec.Fields)),
		childMap:   make(map[string]*ChildForm, len(spec.Children)),
		userIDIdx:  -1,
		operations: spec.Operations,
		logger:     slog.Default(),
	}
	if len(f.operations) == 0 {
		f.operations = AllOperations
	}
	if err := f.initialize(spec, lookup); err != nil {
		return nil, fmt.Errorf("failed to build form %s: %w", spec.Name, err)
	}
	return f, nil
}

// MustNew is New that panics on error.
func MustNew(spec Spec, lookup Lookup) *Form {
	f, err := New(spec, lookup)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Form) initialize(spec Spec, lookup Lookup) error {
	generated := 0
	for i, fs := range spec.Fields {
		field, err := newField(fs, i, lookup)
		if err != nil {
			return err
		}
		if _, dup := f.fieldMap[field.name]; dup {
			return fmt.Errorf("field %s is declared twice", field.name)
		}
		f.fields = append(f.fields, field)
		f.fieldMap[field.name] = field
		if field.role.IsKey() {
			f.keyIndexes = append(f.keyIndexes, i)
		}
		if field.role == UniqueKey {
			f.uniqueIndexes = append(f.uniqueIndexes, i)
		}
		if field.role == GeneratedPrimaryKey {
			generated++
		}
	}
	if generated > 1 {
		return fmt.Errorf("%d fields are generated primary keys, at most one is allowed", generated)
	}

	if spec.UserIDField != "" {
		field, ok := f.fieldMap[spec.UserIDField]
		if !ok {
			return fmt.Errorf("user id field %s is not a field of the form", spec.UserIDField)
		}
		f.userIDIdx = field.index
	}

	for i, cs := range spec.Children {
		child, err := lookup.Form(cs.Form)
		if err != nil {
			return fmt.Errorf("failed to resolve child form %s: %w", cs.Name, err)
		}
		if _, dup := f.childMap[cs.Name]; dup {
			return fmt.Errorf("child %s is declared twice", cs.Name)
		}
		c := &ChildForm{
			Name:           cs.Name,
			Form:           child,
			Tabular:        cs.Tabular,
			MinRows:        cs.MinRows,
			MaxRows:        cs.MaxRows,
			ErrorMessageID: cs.ErrorMessageID,
			index:          i,
		}
		f.children = append(f.children, c)
		f.childMap[cs.Name] = c
	}

	for _, vs := range spec.Validations {
		v, err := vs.Bind(f, lookup)
		if err != nil {
			return fmt.Errorf("failed to bind validation: %w", err)
		}
		f.validations = append(f.validations, v)
	}

	if spec.Table != "" {
		meta, err := newDbMeta(f, spec)
		if err != nil {
			return err
		}
		f.meta = meta
		f.meta.Links = f.buildLinks(spec.Children)
	}
	return nil
}

// WithLogger returns a copy of the form that logs to logger.
func (f *Form) WithLogger(logger *slog.Logger) *Form {
	tmp := *f
	tmp.logger = logger
	return &tmp
}

func (f *Form) Name() string    { return f.name }
func (f *Form) Version() string { return f.version }

// ID is the name qualified by the version, if any.
func (f *Form) ID() string {
	if f.version == "" {
		return f.name
	}
	return f.name + "_" + f.version
}

func (f *Form) Fields() []*Field          { return f.fields }
func (f *Form) NbrFields() int            { return len(f.fields) }
func (f *Form) Children() []*ChildForm    { return f.children }
func (f *Form) Validations() []Validation { return f.validations }
func (f *Form) KeyIndexes() []int         { return f.keyIndexes }
func (f *Form) UniqueIndexes() []int      { return f.uniqueIndexes }
func (f *Form) UserIDIndex() int          { return f.userIDIdx }

// DbMeta returns nil for a form that is not persisted.
func (f *Form) DbMeta() *DbMeta { return f.meta }

func (f *Form) Field(name string) (*Field, bool) {
	field, ok := f.fieldMap[name]
	return field, ok
}

func (f *Form) Child(name string) (*ChildForm, bool) {
	c, ok := f.childMap[name]
	return c, ok
}

// IsOperationAllowed reports whether the service operation may be run on the
// form. Database operations additionally require a table.
func (f *Form) IsOperationAllowed(op IoType) bool {
	if f.meta == nil {
		return false
	}
	return slices.Contains(f.operations, op)
}

// NewFormData returns an empty record with the defaults of optional fields.
func (f *Form) NewFormData() *FormData {
	fd := &FormData{
		form:   f,
		values: make([]any, len(f.fields)),
	}
	if len(f.children) > 0 {
		fd.children = make([][]*FormData, len(f.children))
	}
	for _, field := range f.fields {
		if !field.required && field.defaultValue != nil {
			fd.values[field.index] = field.defaultValue
		}
	}
	return fd
}

// MapLookup is a Lookup over plain maps. Data types missing from DataTypes
// fall back to the built-in set.
type MapLookup struct {
	DataTypes map[string]datatype.DataType
	Lists     map[string]valuelist.ValueList
	Forms     map[string]*Form
}

var builtinTypes = datatype.Builtins()

func (l *MapLookup) DataType(name string) (datatype.DataType, error) {
	if dt, ok := l.DataTypes[name]; ok {
		return dt, nil
	}
	if dt, ok := builtinTypes[name]; ok {
		return dt, nil
	}
	return nil, fmt.Errorf("data type %q is not defined", name)
}

func (l *MapLookup) ValueList(name string) (valuelist.ValueList, error) {
	if vl, ok := l.Lists[name]; ok {
		return vl, nil
	}
	return nil, fmt.Errorf("value list %q is not defined", name)
}

func (l *MapLookup) Form(name string) (*Form, error) {
	if f, ok := l.Forms[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("form %q is not defined", name)
}

// Add registers a built form so later forms can use it as a child.
func (l *MapLookup) Add(f *Form) *Form {
	if l.Forms == nil {
		l.Forms = make(map[string]*Form)
	}
	l.Forms[f.Name()] = f
	return f
}
