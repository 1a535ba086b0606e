package form

import "strings"

// IoType is a service level operation on a form.
type IoType int

const (
	Get IoType = iota
	Create
	Update
	Delete
	Filter
	Bulk
)

var ioTypeNames = [...]string{"get", "create", "update", "delete", "filter", "bulk"}

// AllOperations lists every IoType.
var AllOperations = []IoType{Get, Create, Update, Delete, Filter, Bulk}

func (t IoType) String() string {
	if t < 0 || int(t) >= len(ioTypeNames) {
		return "unknown"
	}
	return ioTypeNames[t]
}

// ParseIoType finds an operation by name, ignoring case.
func ParseIoType(name string) (IoType, bool) {
	for i, n := range ioTypeNames {
		if strings.EqualFold(n, name) {
			return IoType(i), true
		}
	}
	return 0, false
}
