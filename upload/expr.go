package upload

import (
	"strings"

	"github.com/stokaro/formkit/batch"
	"github.com/stokaro/formkit/core/fn"
)

const (
	prefixColumn   = '='
	prefixConstant = '\''
	prefixParam    = '$'
	prefixLookup   = '#'
	prefixFunction = '&'
)

// expression turns a field expression into a value provider. Calls are
// lookups and functions; they are allowed only at the top level.
func (s *Spec) expression(expr string, allowCall bool) (batch.ValueProvider, error) {
	if expr == "" {
		return nil, invalid("empty expression")
	}
	rest := expr[1:]
	switch expr[0] {
	case prefixColumn:
		if rest == "" {
			return nil, invalid("expression %q names no column", expr)
		}
		return batch.Column{Name: rest}, nil
	case prefixConstant:
		return batch.Constant(rest), nil
	case prefixParam:
		v, ok := s.Params[rest]
		if !ok {
			return nil, invalid("param %s is not defined", rest)
		}
		return batch.Constant(v), nil
	case prefixLookup, prefixFunction:
		if !allowCall {
			return nil, invalid("%q cannot be an argument", expr)
		}
		name, args, err := s.call(rest)
		if err != nil {
			return nil, err
		}
		if expr[0] == prefixLookup {
			return s.lookup(name, args)
		}
		return s.function(name, args)
	}
	return batch.Constant(expr), nil
}

// call splits name(arg, ...) and parses the arguments.
func (s *Spec) call(expr string) (string, []batch.ValueProvider, error) {
	open := strings.IndexByte(expr, '(')
	if open <= 0 || !strings.HasSuffix(expr, ")") {
		return "", nil, invalid("%q must be of the form name(arg, ...)", expr)
	}
	name := expr[:open]
	inner := strings.TrimSpace(expr[open+1 : len(expr)-1])
	if inner == "" {
		return "", nil, invalid("%s needs at least one argument", name)
	}
	var args []batch.ValueProvider
	for _, part := range strings.Split(inner, ",") {
		p, err := s.expression(strings.TrimSpace(part), false)
		if err != nil {
			return "", nil, err
		}
		args = append(args, p)
	}
	return name, args, nil
}

func (s *Spec) lookup(name string, args []batch.ValueProvider) (batch.ValueProvider, error) {
	table, ok := s.Lookups[name]
	if !ok {
		return nil, invalid("lookup %s is not defined", name)
	}
	if s.keyed[name] {
		if len(args) != 2 {
			return nil, invalid("keyed lookup %s takes a text and a key", name)
		}
		return batch.Lookup{Table: table, Text: args[0], Key: args[1]}, nil
	}
	if len(args) != 1 {
		return nil, invalid("lookup %s takes one argument", name)
	}
	return batch.Lookup{Table: table, Text: args[0]}, nil
}

func (s *Spec) function(name string, args []batch.ValueProvider) (batch.ValueProvider, error) {
	f, ok := s.Functions[name]
	if !ok {
		return nil, invalid("function %s is not defined", name)
	}
	if n := f.NbrArgs(); n != fn.VarArgs && n != len(args) {
		return nil, invalid("function %s takes %d arguments, got %d", name, n, len(args))
	}
	return batch.Function{Fn: f, Args: args}, nil
}
