package batch

import (
	"context"
	"fmt"
	"sort"

	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/message"
)

// FormMapper maps an input row onto one form.
type FormMapper struct {
	form *form.Form
	// generatedKey names the row value that receives the key of the inserted
	// record, so that later mappers of the same row can refer to it.
	generatedKey string
	fields       []string
	providers    map[string]ValueProvider
}

// NewFormMapper returns a mapper that fills the named fields of f. An empty
// generatedKey publishes nothing.
func NewFormMapper(f *form.Form, generatedKey string, providers map[string]ValueProvider) (*FormMapper, error) {
	m := &FormMapper{
		form:         f,
		generatedKey: generatedKey,
		providers:    providers,
	}
	for name, p := range providers {
		if _, ok := f.Field(name); !ok {
			return nil, fmt.Errorf("%s is not a field of form %s", name, f.ID())
		}
		if p == nil {
			return nil, fmt.Errorf("field %s of form %s has no value provider", name, f.ID())
		}
		m.fields = append(m.fields, name)
	}
	sort.Strings(m.fields)
	if generatedKey != "" && m.keyIndex() < 0 {
		return nil, fmt.Errorf("form %s has no key to publish as %s", f.ID(), generatedKey)
	}
	return m, nil
}

// Form returns the target form.
func (m *FormMapper) Form() *form.Form { return m.form }

// GeneratedKey returns the name under which the inserted key is published.
func (m *FormMapper) GeneratedKey() string { return m.generatedKey }

// load validates the row for insertion into the form. valid is false when any
// message was added to sc. A field whose provider failed gets that one message
// only.
func (m *FormMapper) load(ctx context.Context, row Row, sc *form.ServiceContext) (fd *form.FormData, valid bool, err error) {
	before := sc.NbrErrors()
	data := make(map[string]string, len(m.fields))
	failed := map[string]bool{}
	for _, name := range m.fields {
		v, ok, err := m.providers[name].Value(row)
		if err != nil {
			field, _ := m.form.Field(name)
			sc.Add(message.NewFieldError(name, field.MessageID()))
			failed[name] = true
			continue
		}
		if ok {
			data[name] = v
		}
	}
	fd = m.form.NewFormData()
	lsc := form.NewServiceContext(sc.UserID, sc.TenantID)
	if err := fd.ValidateAndLoadForInsert(ctx, data, lsc); err != nil {
		return nil, false, fmt.Errorf("failed to load row into form %s: %w", m.form.ID(), err)
	}
	for _, msg := range lsc.Messages() {
		if msg.ID == message.FieldRequired && msg.ObjectName == "" && failed[msg.FieldName] {
			continue
		}
		sc.Add(msg)
	}
	return fd, sc.NbrErrors() == before, nil
}

// keyIndex is the field whose value is published: the generated key, or the
// first primary key field.
func (m *FormMapper) keyIndex() int {
	if meta := m.form.DbMeta(); meta != nil && meta.GeneratedKeyIndex >= 0 {
		return meta.GeneratedKeyIndex
	}
	if keys := m.form.KeyIndexes(); len(keys) > 0 {
		return keys[0]
	}
	return -1
}

func (m *FormMapper) publishKey(fd *form.FormData, row Row) {
	if m.generatedKey == "" {
		return
	}
	idx := m.keyIndex()
	row[m.generatedKey] = m.form.Fields()[idx].Kind().Format(fd.Value(idx))
}
