package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"500.00", "500", true},
		{"1,23", "1.23", true},
		{" 2.50 ", "2.5", true},
		{"0", "0", true},
		{"0.1", "0.1", true},
		{"-1", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestParseAmountIsExact(t *testing.T) {
	a, _ := ParseAmount("0.1")
	b, _ := ParseAmount("0.2")
	if !a.Add(b).Equal(decimal.RequireFromString("0.3")) {
		t.Fatal("0.1 + 0.2 should be exactly 0.3")
	}
}

func TestSignedAmount(t *testing.T) {
	tx := Transaction{Amount: "500.00"}

	in, err := SignedAmount(tx, Category{IsIncome: true})
	if err != nil || !in.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("income: got %s err=%v", in, err)
	}
	out, err := SignedAmount(tx, Category{})
	if err != nil || !out.Equal(decimal.NewFromInt(-500)) {
		t.Fatalf("outcome: got %s err=%v", out, err)
	}
	if _, err := SignedAmount(Transaction{Amount: "x"}, Category{}); err == nil {
		t.Fatal("expected error for malformed amount")
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(decimal.RequireFromString("1500")); got != "1500.00" {
		t.Fatalf("got %q", got)
	}
}
