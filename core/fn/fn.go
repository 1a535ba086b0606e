// Package fn holds the small fixed set of functions that upload specs can call.
package fn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stokaro/formkit/core/valuetype"
)

// VarArgs is the NbrArgs of a function that accepts any number of arguments.
const VarArgs = -1

// ErrArguments is returned when a function is called with the wrong number or
// type of arguments.
var ErrArguments = errors.New("invalid function arguments")

// Function is a named, pure computation over typed arguments.
type Function interface {
	Name() string
	// NbrArgs returns the exact number of arguments, or VarArgs.
	NbrArgs() int
	ReturnKind() valuetype.Kind
	// ParseAndEval parses text arguments into the argument kinds and evaluates.
	// An empty argument is passed as nil.
	ParseAndEval(args ...string) (any, error)
	// Eval evaluates already typed arguments.
	Eval(args ...any) (any, error)
}

type function struct {
	name     string
	argKinds []valuetype.Kind
	varArgs  bool
	ret      valuetype.Kind
	exec     func(args []any) any
}

func (f *function) Name() string               { return f.name }
func (f *function) ReturnKind() valuetype.Kind { return f.ret }

func (f *function) NbrArgs() int {
	if f.varArgs {
		return VarArgs
	}
	return len(f.argKinds)
}

func (f *function) kindAt(i int) valuetype.Kind {
	if f.varArgs {
		return f.argKinds[0]
	}
	return f.argKinds[i]
}

func (f *function) checkCount(n int) error {
	if !f.varArgs && n != len(f.argKinds) {
		return fmt.Errorf("%w: %s expects %d arguments, %d received", ErrArguments, f.name, len(f.argKinds), n)
	}
	return nil
}

func (f *function) ParseAndEval(args ...string) (any, error) {
	if err := f.checkCount(len(args)); err != nil {
		return nil, err
	}
	values := make([]any, len(args))
	for i, s := range args {
		if s == "" {
			continue
		}
		v, ok := f.kindAt(i).Parse(s)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a valid %s for argument %d of %s", ErrArguments, s, f.kindAt(i), i, f.name)
		}
		values[i] = v
	}
	return f.exec(values), nil
}

func (f *function) Eval(args ...any) (any, error) {
	if err := f.checkCount(len(args)); err != nil {
		return nil, err
	}
	for i, a := range args {
		if a != nil && !f.kindAt(i).IsRightType(a) {
			return nil, fmt.Errorf("%w: argument %d of %s is %T, expected %s", ErrArguments, i, f.name, a, f.kindAt(i))
		}
	}
	return f.exec(args), nil
}

// Concat joins its text arguments, skipping nil ones.
func Concat() Function {
	return &function{
		name:     "concat",
		argKinds: []valuetype.Kind{valuetype.Text},
		varArgs:  true,
		ret:      valuetype.Text,
		exec: func(args []any) any {
			var sb strings.Builder
			for _, a := range args {
				if a != nil {
					sb.WriteString(a.(string))
				}
			}
			return sb.String()
		},
	}
}

// Max returns the largest of its decimal arguments, or 0 when there are none.
func Max() Function {
	return decimalFold("max", func(acc, v float64) bool { return v > acc })
}

// Min returns the smallest of its decimal arguments, or 0 when there are none.
func Min() Function {
	return decimalFold("min", func(acc, v float64) bool { return v < acc })
}

func decimalFold(name string, better func(acc, v float64) bool) Function {
	return &function{
		name:     name,
		argKinds: []valuetype.Kind{valuetype.Decimal},
		varArgs:  true,
		ret:      valuetype.Decimal,
		exec: func(args []any) any {
			var acc float64
			seen := false
			for _, a := range args {
				if a == nil {
					continue
				}
				v := a.(float64)
				if !seen || better(acc, v) {
					acc = v
					seen = true
				}
			}
			return acc
		},
	}
}

// Sum adds its integer arguments.
func Sum() Function {
	return &function{
		name:     "sum",
		argKinds: []valuetype.Kind{valuetype.Integer},
		varArgs:  true,
		ret:      valuetype.Integer,
		exec: func(args []any) any {
			var total int64
			for _, a := range args {
				if a != nil {
					total += a.(int64)
				}
			}
			return total
		},
	}
}

// Builtins returns the functions available to every application.
func Builtins() map[string]Function {
	out := make(map[string]Function)
	for _, f := range []Function{Concat(), Max(), Min(), Sum()} {
		out[f.Name()] = f
	}
	return out
}
