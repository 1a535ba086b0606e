// Package valuelist provides enumerations of valid values for a field. Static
// and keyed lists are fixed at construction; runtime lists read their values
// from the database.
package valuelist

import (
	"context"
	"fmt"
)

// Entry is one valid value with its display text.
type Entry struct {
	Value any    `json:"value"`
	Text  string `json:"text"`
}

// ValueList is a named set of valid values, optionally partitioned by a key.
type ValueList interface {
	Name() string
	// IsKeyed reports whether the valid values depend on a key value.
	IsKeyed() bool
	// IsValid reports whether value belongs to the list (for key, if keyed).
	// An error means the list could not be consulted.
	IsValid(ctx context.Context, value, key any) (bool, error)
	// List returns the entries (for key, if keyed).
	List(ctx context.Context, key any) ([]Entry, error)
}

// KeyTextSeparator joins a key and a display text in lookup maps.
const KeyTextSeparator = "|"

// Static is a fixed list of entries. Membership is decided on the text form
// of the value, so 1 and "1" are the same member.
type Static struct {
	name    string
	entries []Entry
	members map[string]struct{}
}

// NewStatic builds a list from value/text pairs.
func NewStatic(name string, entries ...Entry) *Static {
	l := &Static{
		name:    name,
		entries: entries,
		members: make(map[string]struct{}, len(entries)),
	}
	for _, e := range entries {
		l.members[fmt.Sprint(e.Value)] = struct{}{}
	}
	return l
}

func (l *Static) Name() string  { return l.name }
func (l *Static) IsKeyed() bool { return false }

// Contains is the context free form of IsValid.
func (l *Static) Contains(value any) bool {
	if value == nil {
		return false
	}
	_, ok := l.members[fmt.Sprint(value)]
	return ok
}

func (l *Static) IsValid(_ context.Context, value, _ any) (bool, error) {
	return l.Contains(value), nil
}

func (l *Static) List(_ context.Context, _ any) ([]Entry, error) {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out, nil
}

// Entries returns the entries without copying. Callers must not modify them.
func (l *Static) Entries() []Entry {
	return l.entries
}

// Keyed holds one static list per key value.
type Keyed struct {
	name  string
	lists map[string]*Static
}

// NewKeyed builds a keyed list. Keys are compared on their text form.
func NewKeyed(name string, lists map[string][]Entry) *Keyed {
	l := &Keyed{name: name, lists: make(map[string]*Static, len(lists))}
	for key, entries := range lists {
		l.lists[key] = NewStatic(name, entries...)
	}
	return l
}

func (l *Keyed) Name() string  { return l.name }
func (l *Keyed) IsKeyed() bool { return true }

// IsValid is false for an unknown key.
func (l *Keyed) IsValid(_ context.Context, value, key any) (bool, error) {
	if key == nil {
		return false, nil
	}
	s, ok := l.lists[fmt.Sprint(key)]
	if !ok {
		return false, nil
	}
	return s.Contains(value), nil
}

// List returns nil for an unknown key.
func (l *Keyed) List(ctx context.Context, key any) ([]Entry, error) {
	if key == nil {
		return nil, nil
	}
	s, ok := l.lists[fmt.Sprint(key)]
	if !ok {
		return nil, nil
	}
	return s.List(ctx, nil)
}

// All returns "key|text" to value for every entry of every key.
func (l *Keyed) All() map[string]string {
	out := make(map[string]string)
	for key, s := range l.lists {
		for _, e := range s.entries {
			out[key+KeyTextSeparator+e.Text] = fmt.Sprint(e.Value)
		}
	}
	return out
}
