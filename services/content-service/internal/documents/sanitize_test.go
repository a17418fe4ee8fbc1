package documents

import "testing"

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "report.pdf", "report.pdf"},
		{"path traversal stripped to base", "../../etc/passwd", "passwd"},
		{"spaces and punctuation replaced", "Q3 Report (final).docx", "Q3_Report_final_.docx"},
		{"repeated underscores collapsed", "a___b.txt", "a_b.txt"},
		{"leading and trailing underscores trimmed", "_weird_.md", "weird_.md"},
		{"unicode replaced", "résumé.pdf", "r_sum_.pdf"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := sanitizeFilename(c.in)
			if got != c.want {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestSanitizeFilenameTruncatesTo255(t *testing.T) {
	long := ""
	for i := 0; i < 300; i++ {
		long += "a"
	}
	got := sanitizeFilename(long + ".txt")
	if len(got) > 255 {
		t.Errorf("expected truncation to 255 bytes, got %d", len(got))
	}
}

func TestSanitizeFilenameAllUnsafeYieldsEmpty(t *testing.T) {
	got := sanitizeFilename("###/../")
	if got != "" {
		t.Errorf("expected empty result for an all-unsafe name, got %q", got)
	}
}

func TestExtensionForKnownAndUnknownTypes(t *testing.T) {
	cases := []struct {
		contentType string
		wantExt     string
		wantOK      bool
	}{
		{"application/pdf", "pdf", true},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "docx", true},
		{"text/plain", "txt", true},
		{"text/markdown", "md", true},
		{"application/zip", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		ext, ok := extensionFor(c.contentType)
		if ok != c.wantOK || ext != c.wantExt {
			t.Errorf("extensionFor(%q) = (%q, %v), want (%q, %v)", c.contentType, ext, ok, c.wantExt, c.wantOK)
		}
	}
}
