package datatype

import (
	"math"
	"regexp"

	"github.com/go-extras/go-kit/must"
)

// Names of the data types every application starts with.
const (
	TextName       = "text"
	IntegerName    = "integer"
	DecimalName    = "decimal"
	DateName       = "date"
	BooleanName    = "boolean"
	TimestampName  = "timestamp"
	IdentifierName = "identifier"
	EmailName      = "email"
)

var (
	identifierPattern = must.Must(regexp.Compile(`[A-Za-z_][A-Za-z0-9_]*`))
	emailPattern      = must.Must(regexp.Compile(`[^@\s]+@[^@\s]+\.[^@\s]+`))
)

// Builtins returns a fresh map of the default data types, keyed by name.
func Builtins() map[string]DataType {
	list := []DataType{
		NewText(TextName, "", 0, 0, nil),
		NewInteger(IntegerName, "", math.MinInt64, math.MaxInt64),
		NewDecimal(DecimalName, "", -math.MaxFloat64, math.MaxFloat64, 2),
		NewDate(DateName, "", 365*100, 365*100),
		NewBoolean(BooleanName, ""),
		NewTimestamp(TimestampName, ""),
		NewText(IdentifierName, "invalidIdentifier", 1, 63, identifierPattern),
		NewText(EmailName, "invalidEmail", 5, 254, emailPattern),
	}
	m := make(map[string]DataType, len(list))
	for _, dt := range list {
		m[dt.Name()] = dt
	}
	return m
}
