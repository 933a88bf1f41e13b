package form_test

import (
	"testing"

	"upscan/internal/form"
)

func TestFieldsPreserveOrderWhenEncoding(t *testing.T) {
	fields := form.NewFields()
	fields.Append("zeta", "1")
	fields.Append("alpha", "a b")
	fields.Set("zeta", "2")

	if got := fields.Encode(); got != "zeta=2&alpha=a+b" {
		t.Fatalf("unexpected encoding %q", got)
	}
	if !fields.RemoveName("zeta") {
		t.Fatal("expected zeta to be removed")
	}
	if fields.RemoveName("zeta") {
		t.Fatal("expected second removal to report false")
	}
	if got := fields.Values().Get("alpha"); got != "a b" {
		t.Fatalf("unexpected values %q", got)
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{input: "a.pdf", want: "a.pdf"},
		{input: `C:\Users\me\report.docx`, want: "report.docx"},
		{input: "/tmp/upload/scan.png", want: "scan.png"},
		{input: "  spaced.txt \n", want: "spaced.txt"},
		{input: "cafe\u0301.pdf", want: "caf\u00e9.pdf"},
		{input: "tab\tname.pdf", want: "tabname.pdf"},
	}
	for _, tc := range cases {
		if got := form.DisplayName(tc.input); got != tc.want {
			t.Fatalf("DisplayName(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
