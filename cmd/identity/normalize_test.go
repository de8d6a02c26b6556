package identity

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	if got := NormalizeEmail("  Ada@Example.COM "); got != "ada@example.com" {
		t.Fatalf("NormalizeEmail: %q", got)
	}
	if got := NormalizeUsername(" Ada_L "); got != "ada_l" {
		t.Fatalf("NormalizeUsername: %q", got)
	}
}

func TestValidEmail(t *testing.T) {
	t.Parallel()

	valid := []string{"ada@example.com", "a.b+tag@sub.example.io", "o'brien@example.co.uk"}
	for _, s := range valid {
		if !ValidEmail(s) {
			t.Fatalf("expected valid: %q", s)
		}
	}

	invalid := []string{"", "no-at", "two@@example.com", "trailing@example", "@example.com"}
	for _, s := range invalid {
		if ValidEmail(s) {
			t.Fatalf("expected invalid: %q", s)
		}
	}
}
