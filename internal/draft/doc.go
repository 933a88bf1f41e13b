// Package draft persists the hidden fields of a host form between runs, so a
// later run sees the attachments of an earlier one the way a reloaded page
// sees fields rendered by the server.
//
// Drafts live in a SQLite database keyed by ticket identifier. An advisory
// file lock next to the database keeps two processes from editing drafts at
// the same time.
package draft
