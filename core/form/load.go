package form

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/stokaro/formkit/core/message"
)

// ServiceContext carries the caller identity and collects the messages of one
// request.
type ServiceContext struct {
	UserID   any
	TenantID any
	message.List
}

// NewServiceContext returns a context for the given user and tenant.
func NewServiceContext(userID, tenantID any) *ServiceContext {
	return &ServiceContext{UserID: userID, TenantID: tenantID}
}

// LoadOptions tune Load.
type LoadOptions struct {
	// Optional treats every field as optional and skips row count checks and
	// inter-field validations. Used for drafts and partial saves.
	Optional bool
	// ForInsert makes a generated primary key optional.
	ForInsert bool
}

// DecodePayload reads a JSON object keeping numbers as json.Number.
func DecodePayload(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if payload == nil {
		return nil, fmt.Errorf("failed to decode payload: not a JSON object")
	}
	return payload, nil
}

// DecodePayloadBytes is DecodePayload over a byte slice.
func DecodePayloadBytes(data []byte) (map[string]any, error) {
	return DecodePayload(bytes.NewReader(data))
}

// Load validates payload into the record. Every field is parsed even when an
// earlier one fails; each failure is added to sc, so sc.AllOK must be checked
// before the record is used. err reports faults only.
func (fd *FormData) Load(ctx context.Context, payload map[string]any, opts LoadOptions, sc *ServiceContext) error {
	return fd.load(ctx, payload, opts, sc, loadScope{row: message.NoRow})
}

// ValidateAndLoadForInsert loads a flat text row for insertion.
func (fd *FormData) ValidateAndLoadForInsert(ctx context.Context, row map[string]string, sc *ServiceContext) error {
	payload := make(map[string]any, len(row))
	for k, v := range row {
		payload[k] = v
	}
	return fd.Load(ctx, payload, LoadOptions{ForInsert: true}, sc)
}

// loadScope locates a record inside its parent. linked holds the indexes of
// fields that are copied from the parent when the record is inserted; they may
// be absent from the payload.
type loadScope struct {
	child  string
	row    int
	linked []int
}

func (fd *FormData) load(ctx context.Context, payload map[string]any, opts LoadOptions, sc *ServiceContext, scope loadScope) error {
	f := fd.form
	if err := fd.loadFields(ctx, payload, opts, sc, scope); err != nil {
		return err
	}

	for _, child := range f.children {
		rows, err := fd.loadChild(ctx, child, payload[child.Name], opts, sc)
		if err != nil {
			return err
		}
		fd.children[child.index] = rows
	}

	if opts.Optional {
		return nil
	}
	for _, v := range f.validations {
		msg, err := v.Validate(ctx, fd)
		if err != nil {
			return fmt.Errorf("failed to validate form %s: %w", f.ID(), err)
		}
		if msg != nil {
			f.logger.Debug("Inter-field validation failed", "form", f.ID(), "field", v.FieldName())
			if scope.child != "" {
				msg.ObjectName = scope.child
				msg.RowNumber = scope.row
			}
			sc.Add(*msg)
		}
	}
	return nil
}

func (fd *FormData) loadFields(ctx context.Context, payload map[string]any, opts LoadOptions, sc *ServiceContext, scope loadScope) error {
	f := fd.form
	for _, field := range f.fields {
		idx := field.index
		if idx == f.userIDIdx {
			fd.values[idx] = sc.UserID
			continue
		}

		caps := field.role.Capabilities()
		if !caps.Input {
			switch field.role {
			case TenantKey:
				fd.values[idx] = sc.TenantID
			case CreatedBy, ModifiedBy:
				fd.values[idx] = sc.UserID
			}
			continue
		}

		raw := payload[field.name]
		if IsEmpty(raw) && (opts.Optional || (opts.ForInsert && field.role == GeneratedPrimaryKey) || slices.Contains(scope.linked, idx)) {
			fd.values[idx] = nil
			if opts.Optional && !field.required {
				fd.values[idx] = field.defaultValue
			}
			continue
		}

		value, msgID, err := field.Parse(ctx, raw)
		if err != nil {
			return err
		}
		if msgID != "" {
			f.logger.Debug("Invalid field value", "form", f.ID(), "field", field.name, "value", raw, "message", msgID)
			sc.Add(message.NewObjectFieldError(field.name, scope.child, msgID, scope.row))
			fd.values[idx] = nil
			continue
		}
		if value == nil {
			value = field.defaultValue
		}
		fd.values[idx] = value
	}
	return nil
}

func (fd *FormData) loadChild(ctx context.Context, child *ChildForm, raw any, opts LoadOptions, sc *ServiceContext) ([]*FormData, error) {
	f := fd.form
	if raw == nil {
		if child.MinRows > 0 && !opts.Optional {
			sc.Add(message.NewFieldError(child.Name, child.ErrorMessageID))
		}
		return nil, nil
	}

	if !child.Tabular {
		obj, ok := raw.(map[string]any)
		if !ok {
			f.logger.Error("Child form expects an object", "form", f.ID(), "child", child.Name, "received", fmt.Sprintf("%T", raw))
			sc.Add(message.NewFieldError(child.Name, message.InvalidData))
			return nil, nil
		}
		cd := child.Form.NewFormData()
		if err := cd.load(ctx, obj, opts, sc, fd.childScope(child, 0)); err != nil {
			return nil, err
		}
		return []*FormData{cd}, nil
	}

	arr, ok := raw.([]any)
	if !ok || (!opts.Optional && !child.rowCountOK(len(arr))) {
		f.logger.Debug("Child rows rejected", "form", f.ID(), "child", child.Name, "is_array", ok, "rows", len(arr))
		sc.Add(message.NewFieldError(child.Name, child.ErrorMessageID))
		return nil, nil
	}

	var rows []*FormData
	for i, elem := range arr {
		obj, ok := elem.(map[string]any)
		if !ok {
			sc.Add(message.NewObjectFieldError("", child.Name, message.InvalidData, i))
			continue
		}
		cd := child.Form.NewFormData()
		if err := cd.load(ctx, obj, opts, sc, fd.childScope(child, i)); err != nil {
			return nil, err
		}
		rows = append(rows, cd)
	}
	return rows, nil
}

func (fd *FormData) childScope(child *ChildForm, row int) loadScope {
	scope := loadScope{child: child.Name, row: row}
	if m := fd.form.meta; m != nil && m.Links != nil && m.Links[child.index] != nil {
		scope.linked = m.Links[child.index].ChildIndexes
	}
	return scope
}

// LoadKeys loads the primary key fields, and the tenant, from payload. A
// failure is added to sc.
func (fd *FormData) LoadKeys(ctx context.Context, payload map[string]any, sc *ServiceContext) error {
	f := fd.form
	for _, idx := range f.keyIndexes {
		if idx == f.userIDIdx {
			fd.values[idx] = sc.UserID
			continue
		}
		field := f.fields[idx]
		value, msgID, err := field.Parse(ctx, payload[field.name])
		if err != nil {
			return err
		}
		if msgID != "" {
			sc.Add(message.NewFieldError(field.name, msgID))
			continue
		}
		fd.values[idx] = value
	}
	fd.setTenant(sc)
	return nil
}

// LoadUniqueKeys loads the unique key fields. It reports false, without adding
// messages, when the form has no unique key or any of its values is invalid.
func (fd *FormData) LoadUniqueKeys(ctx context.Context, payload map[string]any, sc *ServiceContext) (bool, error) {
	f := fd.form
	if len(f.uniqueIndexes) == 0 {
		return false, nil
	}
	for _, idx := range f.uniqueIndexes {
		field := f.fields[idx]
		value, msgID, err := field.Parse(ctx, payload[field.name])
		if err != nil {
			return false, err
		}
		if msgID != "" || value == nil {
			return false, nil
		}
		fd.values[idx] = value
	}
	fd.setTenant(sc)
	return true, nil
}

func (fd *FormData) setTenant(sc *ServiceContext) {
	if m := fd.form.meta; m != nil && m.TenantField != nil {
		fd.values[m.TenantField.index] = sc.TenantID
	}
}

// HasKeyIn reports whether payload carries a valid value for every primary key
// field. Nothing is loaded and no message is added.
func (f *Form) HasKeyIn(ctx context.Context, payload map[string]any) (bool, error) {
	if len(f.keyIndexes) == 0 {
		return false, nil
	}
	for _, idx := range f.keyIndexes {
		field := f.fields[idx]
		value, msgID, err := field.Parse(ctx, payload[field.name])
		if err != nil {
			return false, err
		}
		if msgID != "" || value == nil {
			return false, nil
		}
	}
	return true, nil
}

// LoadTimestamp copies the modified-at value a client read earlier into the
// record, for forms that update with a timestamp check.
func (fd *FormData) LoadTimestamp(payload map[string]any, sc *ServiceContext) {
	m := fd.form.meta
	if m == nil || m.TimestampField == nil {
		return
	}
	field := m.TimestampField
	raw := payload[field.name]
	if IsEmpty(raw) {
		sc.Add(message.NewFieldError(field.name, message.FieldRequired))
		return
	}
	v, ok := field.Kind().FromJSON(raw)
	if !ok {
		sc.Add(message.NewFieldError(field.name, field.MessageID()))
		return
	}
	fd.values[field.index] = v
}
