package fixedpoint

import "testing"

func TestParsePrice(t *testing.T) {
	cases := map[string]int64{
		"1502.5":   15025000,
		"0":        0,
		"1":        10000,
		"100.0001": 1000001,
		"-50.25":   -502500,
	}
	for in, want := range cases {
		got, err := ParsePrice(in)
		if err != nil {
			t.Fatalf("ParsePrice(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParsePrice(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParsePrice_Invalid(t *testing.T) {
	if _, err := ParsePrice("not-a-number"); err == nil {
		t.Fatalf("expected error parsing invalid price")
	}
}

func TestFormatPrice_RoundTrip(t *testing.T) {
	scaled, err := ParsePrice("1502.5")
	if err != nil {
		t.Fatalf("ParsePrice: %v", err)
	}
	s := FormatPrice(scaled)
	if s != "1502.5000" {
		t.Errorf("FormatPrice(%d) = %q, want %q", scaled, s, "1502.5000")
	}
}
