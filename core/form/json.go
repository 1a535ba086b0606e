package form

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// MarshalJSON writes the record as a flat object keyed by field name in field
// order. Fields without a value, and fields whose role hides them from
// clients, are omitted. Tabular children are arrays of
// objects and other children are objects.
func (fd *FormData) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := fd.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSON writes the JSON form of the record to w.
func (fd *FormData) WriteJSON(w io.Writer) error {
	var buf bytes.Buffer
	if err := fd.writeJSON(&buf); err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write form %s: %w", fd.form.ID(), err)
	}
	return nil
}

func (fd *FormData) writeJSON(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	first := true
	member := func(name string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s of form %s: %w", name, fd.form.ID(), err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, _ := json.Marshal(name)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(data)
		return nil
	}

	for _, field := range fd.form.fields {
		v := fd.values[field.index]
		if v == nil || !field.role.Capabilities().ClientVisible {
			continue
		}
		if err := member(field.name, field.Kind().ToJSON(v)); err != nil {
			return err
		}
	}

	for _, child := range fd.form.children {
		rows := fd.children[child.index]
		if rows == nil {
			continue
		}
		if !child.Tabular {
			if len(rows) == 0 {
				continue
			}
			if err := member(child.Name, rows[0]); err != nil {
				return err
			}
			continue
		}
		if err := member(child.Name, rows); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// WriteList writes {"list":[...]} for a set of records.
func WriteList(w io.Writer, rows []*FormData) error {
	if rows == nil {
		rows = []*FormData{}
	}
	data, err := json.Marshal(struct {
		List []*FormData `json:"list"`
	}{rows})
	if err != nil {
		return fmt.Errorf("failed to marshal list: %w", err)
	}
	_, err = w.Write(data)
	return err
}
