package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"١٢", 0, false}, // non-ASCII digits
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestParseSignedDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"-4.50", -450, true},
		{"+4.50", 450, true},
		{"4,5", 450, true},
		{"-0", 0, false},
		{"--1", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseSignedDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestParseNonNegativeDecimalToCents(t *testing.T) {
	if got, err := ParseNonNegativeDecimalToCents("0"); err != nil || got != 0 {
		t.Fatalf("expected 0, got %d (err=%v)", got, err)
	}
	if _, err := ParseNonNegativeDecimalToCents("-1"); err == nil {
		t.Fatalf("expected error for negative")
	}
}

func TestFormatCents(t *testing.T) {
	cases := map[int64]string{
		0:      "0.00",
		5:      "0.05",
		1234:   "12.34",
		-50:    "-0.50",
		100000: "1000.00",
	}
	for in, want := range cases {
		if got := FormatCents(in); got != want {
			t.Fatalf("FormatCents(%d) = %q, want %q", in, got, want)
		}
		if got := (Money{Cents: in}).String(); got != want {
			t.Fatalf("Money.String() = %q, want %q", got, want)
		}
	}
}
