package form

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	referenceSuffix = ".fileReference"
	nameSuffix      = ".fileName"
)

type indexedEntry struct {
	ref   FileReference
	index int
}

// IndexedStore writes each reference as a prefix[i].fileReference /
// prefix[i].fileName pair. Indices are never renumbered after a removal.
type IndexedStore struct {
	fields  *Fields
	prefix  string
	entries []indexedEntry
	pattern *regexp.Regexp
}

// NewIndexedStore returns a store writing pairs under prefix (fileAttachments).
func NewIndexedStore(fields *Fields, prefix string) *IndexedStore {
	return &IndexedStore{
		fields:  fields,
		prefix:  prefix,
		pattern: regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `\[(\d+)\]\.fileReference$`),
	}
}

func (s *IndexedStore) referenceField(index int) string {
	return fmt.Sprintf("%s[%d]%s", s.prefix, index, referenceSuffix)
}

func (s *IndexedStore) nameField(index int) string {
	return fmt.Sprintf("%s[%d]%s", s.prefix, index, nameSuffix)
}

// nextIndex is the current pair count. After a middle removal that index can
// still be held by a later pair, in which case the pair goes after the highest
// index in use.
func (s *IndexedStore) nextIndex() int {
	next := len(s.entries)
	highest := -1
	taken := false
	for _, entry := range s.entries {
		if entry.index == next {
			taken = true
		}
		if entry.index > highest {
			highest = entry.index
		}
	}
	if taken {
		return highest + 1
	}
	return next
}

func (s *IndexedStore) Add(ref FileReference) error {
	if strings.TrimSpace(ref.Reference) == "" {
		return fmt.Errorf("%w: empty reference", ErrInvalidReference)
	}
	if containsReference(s.References(), ref.Reference) {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, ref.Reference)
	}
	index := s.nextIndex()
	s.fields.Append(s.referenceField(index), ref.Reference)
	s.fields.Append(s.nameField(index), ref.Name)
	s.entries = append(s.entries, indexedEntry{ref: ref, index: index})
	return nil
}

func (s *IndexedStore) Remove(reference string) error {
	for i, entry := range s.entries {
		if entry.ref.Reference != reference {
			continue
		}
		s.fields.RemoveName(s.referenceField(entry.index))
		s.fields.RemoveName(s.nameField(entry.index))
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrReferenceNotFound, reference)
}

func (s *IndexedStore) Len() int {
	return len(s.entries)
}

func (s *IndexedStore) References() []FileReference {
	refs := make([]FileReference, 0, len(s.entries))
	for _, entry := range s.entries {
		refs = append(refs, entry.ref)
	}
	return refs
}

// Restore reads existing pairs from the form. A reference field without its
// name partner is kept with an empty name. A pair repeating an earlier
// reference is dropped from the form so every entry maps to exactly one pair.
func (s *IndexedStore) Restore() ([]FileReference, error) {
	var restored []indexedEntry
	for _, field := range s.fields.WithPrefix(s.prefix + "[") {
		match := s.pattern.FindStringSubmatch(field.Name)
		if match == nil {
			continue
		}
		index, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, fmt.Errorf("parse attachment index %q: %w", field.Name, err)
		}
		name, _ := s.fields.Lookup(s.nameField(index))
		restored = append(restored, indexedEntry{
			ref:   FileReference{Reference: field.Value, Name: name},
			index: index,
		})
	}
	sort.SliceStable(restored, func(i, j int) bool { return restored[i].index < restored[j].index })
	s.entries = restored[:0]
	seen := make(map[string]bool, len(restored))
	for _, entry := range restored {
		if seen[entry.ref.Reference] {
			s.fields.RemoveName(s.referenceField(entry.index))
			s.fields.RemoveName(s.nameField(entry.index))
			continue
		}
		seen[entry.ref.Reference] = true
		s.entries = append(s.entries, entry)
	}
	return s.References(), nil
}
