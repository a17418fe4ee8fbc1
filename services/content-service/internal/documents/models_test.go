package documents

import "testing"

func TestListOptionsValidateSortDefaultsOnUnknownField(t *testing.T) {
	opts := ListOptions{SortField: "not-a-real-field", SortDir: "sideways"}
	opts.ValidateSort()
	if opts.SortField != "uploaded_at" {
		t.Errorf("expected default sort field uploaded_at, got %q", opts.SortField)
	}
	if opts.SortDir != "desc" {
		t.Errorf("expected default sort dir desc, got %q", opts.SortDir)
	}
}

func TestListOptionsValidateSortPreservesAllowedValues(t *testing.T) {
	opts := ListOptions{SortField: "filename", SortDir: "asc"}
	opts.ValidateSort()
	if opts.SortField != "filename" || opts.SortDir != "asc" {
		t.Errorf("expected allowed sort to pass through unchanged, got %+v", opts)
	}
}
