package form

import (
	"errors"
	"fmt"
)

var (
	// ErrReferenceNotFound is returned when removing a reference the store does not hold.
	ErrReferenceNotFound = errors.New("reference not found")
	// ErrDuplicateReference is returned when a confirmed reference is added twice.
	ErrDuplicateReference = errors.New("reference already attached")
	// ErrRemovalUnsupported is returned by layouts that cannot remove one entry.
	ErrRemovalUnsupported = errors.New("per-reference removal is not supported by this form layout")
	// ErrInvalidReference is returned for references the layout cannot encode.
	ErrInvalidReference = errors.New("invalid reference")
)

// FileReference is an intake-issued identifier plus the original display name.
type FileReference struct {
	Reference string
	Name      string
}

// ReferenceStore holds confirmed references and mirrors them into host form fields.
type ReferenceStore interface {
	// Add appends a confirmed reference and writes its form representation.
	Add(ref FileReference) error
	// Remove drops the entry holding reference and exactly its fields.
	Remove(reference string) error
	Len() int
	References() []FileReference
	// Restore rebuilds the entries from fields already present on the form
	// and returns them in form order.
	Restore() ([]FileReference, error)
}

// Layout names accepted by NewStore.
const (
	LayoutIndexed   = "indexed"
	LayoutDelimited = "delimited"
)

// NewStore builds the reference store for a host form layout. name is the
// attachments prefix for the indexed layout and the field name for the
// delimited layout.
func NewStore(layout string, fields *Fields, name string) (ReferenceStore, error) {
	if fields == nil {
		return nil, errors.New("form fields are required")
	}
	switch layout {
	case LayoutIndexed:
		return NewIndexedStore(fields, name), nil
	case LayoutDelimited:
		return NewDelimitedStore(fields, name), nil
	default:
		return nil, fmt.Errorf("unknown form layout %q", layout)
	}
}

func containsReference(refs []FileReference, reference string) bool {
	for _, ref := range refs {
		if ref.Reference == reference {
			return true
		}
	}
	return false
}
