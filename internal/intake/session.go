package intake

import (
	"net/url"

	"upscan/internal/form"
)

// Session is the set of parameters the intake service requires for one
// upload. A session is replaced wholesale, never mutated in place.
type Session struct {
	Target *url.URL
	// Fields are posted in order ahead of the file part.
	Fields []form.Field
	// Reference identifies the session at the status endpoint.
	Reference string
	SingleUse bool
}

// Clone returns a copy that shares no slices with s.
func (s Session) Clone() Session {
	out := s
	if s.Target != nil {
		target := *s.Target
		out.Target = &target
	}
	out.Fields = append([]form.Field(nil), s.Fields...)
	return out
}

// Valid reports whether the session can be submitted against.
func (s Session) Valid() bool {
	return s.Target != nil && s.Target.Host != ""
}
