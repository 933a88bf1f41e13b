package form

import (
	"net/url"
	"strings"
)

// Field is one hidden input of the host form.
type Field struct {
	Name  string
	Value string
}

// Fields is the ordered set of hidden inputs attached to the host form.
type Fields struct {
	items []Field
}

// NewFields returns a field set seeded with the provided inputs in order.
func NewFields(fields ...Field) *Fields {
	return &Fields{items: append([]Field(nil), fields...)}
}

// Append adds an input at the end of the form.
func (f *Fields) Append(name, value string) {
	f.items = append(f.items, Field{Name: name, Value: value})
}

// Set replaces the value of the first input with name, appending it when absent.
func (f *Fields) Set(name, value string) {
	for i := range f.items {
		if f.items[i].Name == name {
			f.items[i].Value = value
			return
		}
	}
	f.Append(name, value)
}

// Lookup returns the value of the first input with name.
func (f *Fields) Lookup(name string) (string, bool) {
	for _, field := range f.items {
		if field.Name == name {
			return field.Value, true
		}
	}
	return "", false
}

// RemoveName removes every input with name and reports whether any existed.
func (f *Fields) RemoveName(name string) bool {
	kept := f.items[:0]
	removed := false
	for _, field := range f.items {
		if field.Name == name {
			removed = true
			continue
		}
		kept = append(kept, field)
	}
	f.items = kept
	return removed
}

// WithPrefix returns the inputs whose names start with prefix, in form order.
func (f *Fields) WithPrefix(prefix string) []Field {
	var out []Field
	for _, field := range f.items {
		if strings.HasPrefix(field.Name, prefix) {
			out = append(out, field)
		}
	}
	return out
}

// All returns a copy of the inputs in form order.
func (f *Fields) All() []Field {
	return append([]Field(nil), f.items...)
}

// Len returns the number of inputs.
func (f *Fields) Len() int {
	return len(f.items)
}

// Values converts the inputs to url.Values for submission with the parent form.
func (f *Fields) Values() url.Values {
	values := make(url.Values, len(f.items))
	for _, field := range f.items {
		values.Add(field.Name, field.Value)
	}
	return values
}

// Encode renders the inputs as an application/x-www-form-urlencoded body,
// preserving form order (url.Values.Encode sorts keys).
func (f *Fields) Encode() string {
	var b strings.Builder
	for i, field := range f.items {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(field.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(field.Value))
	}
	return b.String()
}
