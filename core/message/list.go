package message

// List collects messages. The zero value is ready to use. A List is owned by a
// single request and is not safe for concurrent use.
type List struct {
	messages  []Message
	nbrErrors int
}

// Add appends messages to the list.
func (l *List) Add(msgs ...Message) {
	for _, m := range msgs {
		if m.IsError() {
			l.nbrErrors++
		}
		l.messages = append(l.messages, m)
	}
}

// AllOK reports whether no error message has been added.
func (l *List) AllOK() bool {
	return l.nbrErrors == 0
}

func (l *List) NbrErrors() int {
	return l.nbrErrors
}

func (l *List) Len() int {
	return len(l.messages)
}

// Messages returns a copy of the collected messages.
func (l *List) Messages() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Reset empties the list.
func (l *List) Reset() {
	l.messages = nil
	l.nbrErrors = 0
}

// HasErrors reports whether any of msgs is an error.
func HasErrors(msgs []Message) bool {
	for _, m := range msgs {
		if m.IsError() {
			return true
		}
	}
	return false
}
