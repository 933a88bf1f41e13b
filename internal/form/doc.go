// Package form mirrors confirmed intake references into the hidden fields of
// the host form.
//
// Fields is the ordered list of hidden inputs the parent form will submit.
// A ReferenceStore keeps the confirmed FileReference entries and writes them
// into Fields in one of two layouts: indexed pairs
// (fileAttachments[i].fileReference / fileAttachments[i].fileName) or a single
// comma-joined field (fileReferences). Both stores can rebuild their entries
// from fields left over from an earlier render of the form.
//
// Fields and the stores are not safe for concurrent use; the upload
// coordinator serializes every access.
package form
