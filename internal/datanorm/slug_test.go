package datanorm

import "testing"

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Spring Leads 2024":   "spring-leads-2024",
		"  Hot!! Prospects  ": "hot-prospects",
		"Ünïcode Name":        "ünïcode-name",
		"---":                 "",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCategoryName(t *testing.T) {
	if got := CategoryName("  spring   leads "); got != "Spring Leads" {
		t.Errorf("CategoryName = %q", got)
	}
	if got := CategoryName("ACME corp"); got != "ACME Corp" {
		t.Errorf("CategoryName = %q", got)
	}
}
