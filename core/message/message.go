// Package message holds the messages produced while validating and persisting
// data. Validation never fails with a Go error: every problem a client can fix
// becomes a Message that is collected and returned with the response.
package message

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Type is the severity of a message.
type Type int

const (
	Error Type = iota
	Warning
	Info
	Success
)

func (t Type) String() string {
	switch t {
	case Warning:
		return "warning"
	case Info:
		return "info"
	case Success:
		return "success"
	default:
		return "error"
	}
}

// Message ids used by the engine itself. Field and data type specific ids are
// declared with the metadata.
const (
	FieldRequired    = "valueRequired"
	InvalidValue     = "invalidValue"
	InvalidData      = "invalidData"
	ConcurrentUpdate = "concurrentUpdate"
	InternalError    = "internalError"
	SQLFault         = "sqlFault"
	NotAuthorized    = "notAuthorized"
	RowNotInserted   = "rowNotInserted"
	NoRowsFound      = "noRowsFound"
)

// NoRow marks a message that is not about a row of a child table.
const NoRow = -1

// Message is one validation or processing message.
type Message struct {
	Type       Type
	ID         string
	FieldName  string
	ObjectName string
	Params     []string
	// RowNumber is the 0-based row inside ObjectName, or NoRow.
	RowNumber int
}

// NewError returns an error message that is not tied to a field.
func NewError(id string, params ...string) Message {
	return Message{Type: Error, ID: id, Params: params, RowNumber: NoRow}
}

// NewFieldError returns an error message for a top-level field.
func NewFieldError(fieldName, id string, params ...string) Message {
	return Message{Type: Error, ID: id, FieldName: fieldName, Params: params, RowNumber: NoRow}
}

// NewObjectFieldError returns an error message for a field of a child record.
func NewObjectFieldError(fieldName, objectName, id string, rowNumber int, params ...string) Message {
	return Message{Type: Error, ID: id, FieldName: fieldName, ObjectName: objectName, Params: params, RowNumber: rowNumber}
}

// New returns a message of any type that is not tied to a field.
func New(t Type, id string, params ...string) Message {
	return Message{Type: t, ID: id, Params: params, RowNumber: NoRow}
}

func (m Message) IsError() bool {
	return m.Type == Error
}

func (m Message) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "type:%s id:%s", m.Type, m.ID)
	if m.FieldName != "" {
		fmt.Fprintf(&sb, " field:%s", m.FieldName)
	}
	if m.ObjectName != "" {
		fmt.Fprintf(&sb, " object:%s", m.ObjectName)
	}
	if m.RowNumber != NoRow {
		fmt.Fprintf(&sb, " row:%d", m.RowNumber)
	}
	if len(m.Params) > 0 {
		fmt.Fprintf(&sb, " params:%v", m.Params)
	}
	return sb.String()
}

type jsonMessage struct {
	Type       string   `json:"type"`
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	FieldName  string   `json:"fieldName,omitempty"`
	ObjectName string   `json:"objectName,omitempty"`
	Params     []string `json:"params,omitempty"`
	Idx        *int     `json:"idx,omitempty"`
}

// MarshalJSON writes the client facing shape of a message. Text carries the id;
// translation happens on the client.
func (m Message) MarshalJSON() ([]byte, error) {
	jm := jsonMessage{
		Type:       m.Type.String(),
		ID:         m.ID,
		Text:       m.ID,
		FieldName:  m.FieldName,
		ObjectName: m.ObjectName,
		Params:     m.Params,
	}
	if m.RowNumber != NoRow {
		idx := m.RowNumber
		jm.Idx = &idx
	}
	return json.Marshal(jm)
}

// UnmarshalJSON reads the shape written by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var jm jsonMessage
	if err := json.Unmarshal(data, &jm); err != nil {
		return err
	}
	*m = Message{ID: jm.ID, FieldName: jm.FieldName, ObjectName: jm.ObjectName, Params: jm.Params, RowNumber: NoRow}
	switch jm.Type {
	case "warning":
		m.Type = Warning
	case "info":
		m.Type = Info
	case "success":
		m.Type = Success
	default:
		m.Type = Error
	}
	if jm.Idx != nil {
		m.RowNumber = *jm.Idx
	}
	return nil
}
