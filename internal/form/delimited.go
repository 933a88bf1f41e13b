package form

import (
	"fmt"
	"strings"
)

const referenceDelimiter = ","

// DelimitedStore writes all references into one comma-joined field. Names
// are not persisted, so restored entries carry no name, and single entries
// cannot be removed.
type DelimitedStore struct {
	fields *Fields
	name   string
	refs   []FileReference
}

// NewDelimitedStore returns a store writing references into the field name (fileReferences).
func NewDelimitedStore(fields *Fields, name string) *DelimitedStore {
	return &DelimitedStore{fields: fields, name: name}
}

func (s *DelimitedStore) Add(ref FileReference) error {
	if strings.TrimSpace(ref.Reference) == "" || strings.Contains(ref.Reference, referenceDelimiter) {
		return fmt.Errorf("%w: %q", ErrInvalidReference, ref.Reference)
	}
	if containsReference(s.refs, ref.Reference) {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, ref.Reference)
	}
	s.refs = append(s.refs, ref)
	s.sync()
	return nil
}

func (s *DelimitedStore) Remove(string) error {
	return ErrRemovalUnsupported
}

func (s *DelimitedStore) Len() int {
	return len(s.refs)
}

func (s *DelimitedStore) References() []FileReference {
	return append([]FileReference(nil), s.refs...)
}

func (s *DelimitedStore) Restore() ([]FileReference, error) {
	s.refs = nil
	value, ok := s.fields.Lookup(s.name)
	if !ok {
		return nil, nil
	}
	parts := strings.Split(value, referenceDelimiter)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || containsReference(s.refs, part) {
			continue
		}
		s.refs = append(s.refs, FileReference{Reference: part})
	}
	if len(s.refs) != len(parts) {
		s.sync()
	}
	return s.References(), nil
}

func (s *DelimitedStore) sync() {
	joined := make([]string, 0, len(s.refs))
	for _, ref := range s.refs {
		joined = append(joined, ref.Reference)
	}
	s.fields.Set(s.name, strings.Join(joined, referenceDelimiter))
}
