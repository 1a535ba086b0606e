package batch

import (
	"github.com/stokaro/formkit/core/fn"
	"github.com/stokaro/formkit/core/valuelist"
)

// ValueProvider computes the text value of one field from an input row. ok is
// false when there is no value. err reports a value that could not be
// computed; it is surfaced as an invalid field value, not as a fault.
type ValueProvider interface {
	Value(row Row) (value string, ok bool, err error)
}

// Constant always provides the same text.
type Constant string

func (c Constant) Value(Row) (string, bool, error) {
	return string(c), true, nil
}

// Column reads an input column. Fallback, when not empty, is used for a
// missing column.
type Column struct {
	Name     string
	Fallback string
}

func (c Column) Value(row Row) (string, bool, error) {
	if v, ok := row[c.Name]; ok {
		return v, true, nil
	}
	if c.Fallback != "" {
		return c.Fallback, true, nil
	}
	return "", false, nil
}

// Lookup translates display text into an internal value through a table.
// With Key set, the table is indexed by key and text joined with
// valuelist.KeyTextSeparator.
type Lookup struct {
	Table map[string]string
	Text  ValueProvider
	Key   ValueProvider
}

func (l Lookup) Value(row Row) (string, bool, error) {
	text, ok, err := l.Text.Value(row)
	if err != nil || !ok {
		return "", false, err
	}
	if l.Key != nil {
		key, ok, err := l.Key.Value(row)
		if err != nil || !ok {
			return "", false, err
		}
		text = key + valuelist.KeyTextSeparator + text
	}
	v, ok := l.Table[text]
	return v, ok, nil
}

// Function evaluates a function over the values of its argument providers. A
// missing argument is passed as empty text.
type Function struct {
	Fn   fn.Function
	Args []ValueProvider
}

func (f Function) Value(row Row) (string, bool, error) {
	args := make([]string, len(f.Args))
	for i, p := range f.Args {
		v, _, err := p.Value(row)
		if err != nil {
			return "", false, err
		}
		args[i] = v
	}
	v, err := f.Fn.ParseAndEval(args...)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", true, nil
	}
	return f.Fn.ReturnKind().Format(v), true, nil
}
