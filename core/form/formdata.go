package form

import (
	"fmt"
	"time"

	"github.com/stokaro/formkit/core/valuetype"
)

// FormData is one record of a form: a value per field and the rows of each
// child form. It is owned by a single request and not safe for concurrent use.
type FormData struct {
	form     *Form
	values   []any
	children [][]*FormData
}

func (fd *FormData) Form() *Form { return fd.form }

// Values returns the field values in field order. The slice is shared with
// the record.
func (fd *FormData) Values() []any { return fd.values }

// Children returns the child rows for the child at index i. A non-tabular
// child has at most one row.
func (fd *FormData) Children(i int) []*FormData {
	if i < 0 || i >= len(fd.children) {
		return nil
	}
	return fd.children[i]
}

// ChildData returns the rows of the named child.
func (fd *FormData) ChildData(name string) []*FormData {
	c, ok := fd.form.childMap[name]
	if !ok {
		return nil
	}
	return fd.children[c.index]
}

// SetChildData replaces the rows of the named child.
func (fd *FormData) SetChildData(name string, rows []*FormData) error {
	c, ok := fd.form.childMap[name]
	if !ok {
		return fmt.Errorf("%s is not a child of form %s", name, fd.form.name)
	}
	for _, r := range rows {
		if r.form != c.Form {
			return fmt.Errorf("row of form %s cannot be a child %s of form %s", r.form.name, name, fd.form.name)
		}
	}
	fd.children[c.index] = rows
	return nil
}

func (fd *FormData) idxOK(idx int) bool {
	return idx >= 0 && idx < len(fd.values)
}

// Value returns the value at idx, or nil for an invalid index.
func (fd *FormData) Value(idx int) any {
	if !fd.idxOK(idx) {
		return nil
	}
	return fd.values[idx]
}

// SetValue stores v at idx without validation. v must carry the Go type of the
// field's value kind, or be nil.
func (fd *FormData) SetValue(idx int, v any) bool {
	if !fd.idxOK(idx) {
		return false
	}
	if v != nil && !fd.form.fields[idx].Kind().IsRightType(v) {
		return false
	}
	fd.values[idx] = v
	return true
}

func (fd *FormData) index(name string) int {
	if f, ok := fd.form.fieldMap[name]; ok {
		return f.index
	}
	return -1
}

// Get returns the value of the named field, or nil.
func (fd *FormData) Get(name string) any {
	return fd.Value(fd.index(name))
}

// Set stores v into the named field, converting it to the field's value kind.
// It reports false when the field is unknown or v cannot be converted.
func (fd *FormData) Set(name string, v any) bool {
	idx := fd.index(name)
	if !fd.idxOK(idx) {
		return false
	}
	if v == nil {
		fd.values[idx] = nil
		return true
	}
	converted, ok := fd.form.fields[idx].Kind().FromJSON(v)
	if !ok {
		return false
	}
	fd.values[idx] = converted
	return true
}

// GetString returns the text form of the named field, or "" when it has no value.
func (fd *FormData) GetString(name string) string {
	idx := fd.index(name)
	if !fd.idxOK(idx) {
		return ""
	}
	return fd.form.fields[idx].Kind().Format(fd.values[idx])
}

// GetInt returns the named field as an integer, or 0.
func (fd *FormData) GetInt(name string) int64 {
	switch v := fd.Get(name).(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

// GetDecimal returns the named field as a decimal, or 0.
func (fd *FormData) GetDecimal(name string) float64 {
	switch v := fd.Get(name).(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

// GetBool returns the named field as a boolean, or false.
func (fd *FormData) GetBool(name string) bool {
	b, _ := fd.Get(name).(bool)
	return b
}

// GetDate returns the named date field, or the zero time.
func (fd *FormData) GetDate(name string) time.Time {
	t, _ := fd.Get(name).(time.Time)
	return t
}

// GetTimestamp returns the named timestamp field, or the zero time.
func (fd *FormData) GetTimestamp(name string) time.Time {
	t, _ := fd.Get(name).(time.Time)
	return t
}

func (fd *FormData) SetString(name, s string) bool          { return fd.Set(name, s) }
func (fd *FormData) SetInt(name string, n int64) bool       { return fd.Set(name, n) }
func (fd *FormData) SetDecimal(name string, f float64) bool { return fd.Set(name, f) }
func (fd *FormData) SetBool(name string, b bool) bool       { return fd.Set(name, b) }

// SetDate stores the calendar date of t.
func (fd *FormData) SetDate(name string, t time.Time) bool {
	return fd.Set(name, valuetype.DateOf(t))
}

func (fd *FormData) SetTimestamp(name string, t time.Time) bool {
	return fd.Set(name, t)
}

// UserID returns the value of the user id field, or nil.
func (fd *FormData) UserID() any {
	return fd.Value(fd.form.userIDIdx)
}

// SetUserID stores the user of sc into the user id field, if the form has one.
func (fd *FormData) SetUserID(sc *ServiceContext) {
	if fd.form.userIDIdx >= 0 {
		fd.values[fd.form.userIDIdx] = sc.UserID
	}
}

// IsOwner reports whether the record belongs to the user of sc. A form without
// a user id field is owned by everyone.
func (fd *FormData) IsOwner(sc *ServiceContext) bool {
	idx := fd.form.userIDIdx
	if idx < 0 {
		fd.form.logger.Warn("Form has no user id field, every user is its owner", "form", fd.form.ID())
		return true
	}
	v := fd.values[idx]
	if v == nil || sc.UserID == nil {
		return false
	}
	return fmt.Sprint(v) == fmt.Sprint(sc.UserID)
}

// KeyValues returns the primary key values in key order.
func (fd *FormData) KeyValues() []any {
	out := make([]any, len(fd.form.keyIndexes))
	for i, idx := range fd.form.keyIndexes {
		out[i] = fd.values[idx]
	}
	return out
}

// HasKey reports whether every primary key field has a value.
func (fd *FormData) HasKey() bool {
	if len(fd.form.keyIndexes) == 0 {
		return false
	}
	for _, idx := range fd.form.keyIndexes {
		if fd.values[idx] == nil {
			return false
		}
	}
	return true
}
