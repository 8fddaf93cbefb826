package relay

import (
	"strings"
	"testing"
)

func TestWelcomeText(t *testing.T) {
	cases := []struct {
		tag  string
		want string // substring of the expected greeting
	}{
		{"en", "support team"},
		{"en-US", "support team"},
		{"es", "soporte"},
		{"de", "Support-Team"},
		{"de-AT", "Support-Team"},
		{"ru", "поддержки"},
		// Unknown or malformed tags fall back to English.
		{"fi", "support team"},
		{"", "support team"},
		{"not a tag!!", "support team"},
	}
	for _, tc := range cases {
		got := welcomeText(tc.tag)
		if !strings.Contains(got, tc.want) {
			t.Fatalf("welcomeText(%q) = %q, want substring %q", tc.tag, got, tc.want)
		}
	}
}
