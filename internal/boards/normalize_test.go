package boards

import "testing"

func TestRatePerMile(t *testing.T) {
	cases := []struct {
		pay, miles float64
		want       float64
		wantNil    bool
	}{
		{1000, 500, 2.0, false},
		{1234.56, 617, 2.0, false},
		{999, 300, 3.33, false},
		{0, 500, 0, true},
		{1000, 0, 0, true},
		{-100, 500, 0, true},
		{1000, -1, 0, true},
	}
	for _, c := range cases {
		got := RatePerMile(c.pay, c.miles)
		if c.wantNil {
			if got != nil {
				t.Errorf("RatePerMile(%v, %v) = %v, want nil", c.pay, c.miles, *got)
			}
			continue
		}
		if got == nil {
			t.Errorf("RatePerMile(%v, %v) = nil, want %v", c.pay, c.miles, c.want)
			continue
		}
		if *got != c.want {
			t.Errorf("RatePerMile(%v, %v) = %v, want %v", c.pay, c.miles, *got, c.want)
		}
	}
}

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"$1,250.00", 1250},
		{"1250", 1250},
		{"  $99.50 ", 99.5},
		{"", 0},
		{"n/a", 0},
	}
	for _, c := range cases {
		if got := ParseMoney(c.in); got != c.want {
			t.Errorf("ParseMoney(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestIntPtr(t *testing.T) {
	if got := IntPtr(0); got != nil {
		t.Errorf("IntPtr(0) = %v, want nil", *got)
	}
	if got := IntPtr(-5); got != nil {
		t.Errorf("IntPtr(-5) = %v, want nil", *got)
	}
	if got := IntPtr(42); got == nil || *got != 42 {
		t.Errorf("IntPtr(42) = %v, want 42", got)
	}
}
