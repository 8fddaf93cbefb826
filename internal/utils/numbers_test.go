package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		in   string
		def  int
		want int
	}{
		{"42", 0, 42},
		{"-7", 0, -7},
		{"", 10, 10},
		{"x", 5, 5},
		{"4.2", 9, 9},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.in, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d, want %d", tc.in, tc.def, got, tc.want)
		}
	}
}

func TestAtoi64Default(t *testing.T) {
	cases := []struct {
		in   string
		def  int64
		want int64
	}{
		{"-1001234567890", 0, -1001234567890}, // supergroup ids exceed 32 bits
		{"9001", 0, 9001},
		{"", 7, 7},
		{"nope", 7, 7},
	}
	for _, tc := range cases {
		if got := Atoi64Default(tc.in, tc.def); got != tc.want {
			t.Fatalf("Atoi64Default(%q, %d) = %d, want %d", tc.in, tc.def, got, tc.want)
		}
	}
}
