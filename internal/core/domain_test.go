package core

import (
	"testing"
	"time"
)

func TestCategoryDirection(t *testing.T) {
	if (Category{IsIncome: true}).Direction() != Income {
		t.Fatal("income category should be Income")
	}
	if (Category{}).Direction() != Outcome {
		t.Fatal("default category should be Outcome")
	}
}

func TestNewPeriod(t *testing.T) {
	from := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 12, 8, 0, 0, 0, time.UTC)

	p, err := NewPeriod(from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.From.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("From = %v", p.From)
	}
	if !p.Contains(time.Date(2025, 3, 12, 23, 59, 59, 0, time.UTC)) {
		t.Error("period should include the last second of the end day")
	}
	if p.Contains(time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)) {
		t.Error("period should not include the next day")
	}

	if _, err := NewPeriod(to, from); err != ErrInvalidPeriod {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestMonthPeriod(t *testing.T) {
	p := MonthPeriod(time.Date(2024, 2, 17, 0, 0, 0, 0, time.UTC))
	if p.From.Day() != 1 || p.To.Day() != 29 {
		t.Fatalf("unexpected leap-year february: %v - %v", p.From, p.To)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("expected valid period: %v", err)
	}
	if err := (Period{}).Validate(); err == nil {
		t.Fatal("zero period should be invalid")
	}
}

func TestTransactionClone(t *testing.T) {
	comment := "lunch"
	now := time.Now()
	orig := Transaction{ID: 1, Comment: &comment, UpdatedAt: &now}

	c := orig.Clone()
	*c.Comment = "dinner"
	if *orig.Comment != "lunch" {
		t.Fatal("clone shares comment pointer")
	}
	if c.UpdatedAt == orig.UpdatedAt {
		t.Fatal("clone shares updatedAt pointer")
	}
}

func TestBalanceStateString(t *testing.T) {
	if Estimated.String() != "estimated" || Confirmed.String() != "confirmed" {
		t.Fatalf("unexpected names: %s %s", Estimated, Confirmed)
	}
}
