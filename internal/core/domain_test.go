package core

import (
	"errors"
	"testing"
)

func validTransaction() Transaction {
	return Transaction{
		AmountMinor: -150000,
		Currency:    "VND",
		Description: "lunch",
		Category:    "Food",
		Source:      "cash",
		Date:        NewDate(2024, 3, 30),
		Recurrence:  None,
	}
}

func TestTransactionValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"valid", func(*Transaction) {}, nil},
		{"zero amount", func(tx *Transaction) { tx.AmountMinor = 0 }, ErrZeroAmount},
		{"empty currency", func(tx *Transaction) { tx.Currency = "  " }, ErrEmptyCurrency},
		{"empty category", func(tx *Transaction) { tx.Category = "" }, ErrEmptyCategory},
		{"blank source", func(tx *Transaction) { tx.Source = "\t " }, ErrEmptySource},
		{"zero date", func(tx *Transaction) { tx.Date = Date{} }, ErrInvalidDate},
		{"bad recurrence", func(tx *Transaction) { tx.Recurrence = "fortnightly" }, ErrInvalidRecurrence},
	}
	for _, tc := range cases {
		tx := validTransaction()
		tc.mutate(&tx)
		err := tx.Validate()
		if tc.want == nil && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestTransactionKind(t *testing.T) {
	tx := validTransaction()
	if tx.Kind() != KindExpense {
		t.Fatalf("negative amount should be %s, got %s", KindExpense, tx.Kind())
	}
	tx.AmountMinor = 500000
	if tx.Kind() != KindIncome {
		t.Fatalf("positive amount should be %s, got %s", KindIncome, tx.Kind())
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-30")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.String() != "2024-03-30" {
		t.Fatalf("got %s, want 2024-03-30", d)
	}
	for _, in := range []string{"2024-02-30", "2024-13-01", "30/03/2024", "nope", ""} {
		if _, err := ParseDate(in); !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("ParseDate(%q) = %v, want ErrInvalidDate", in, err)
		}
	}
}

func TestRecurrenceAdvance(t *testing.T) {
	cases := []struct {
		rule Recurrence
		from Date
		want string
	}{
		{Daily, NewDate(2024, 3, 30), "2024-03-31"},
		{Daily, NewDate(2024, 12, 31), "2025-01-01"},
		{Weekly, NewDate(2024, 3, 30), "2024-04-06"},
		{Monthly, NewDate(2024, 3, 15), "2024-04-15"},
		{Monthly, NewDate(2024, 1, 31), "2024-02-29"}, // clamp on leap February
		{Monthly, NewDate(2023, 1, 31), "2023-02-28"},
		{Monthly, NewDate(2024, 12, 31), "2025-01-31"},
		{Yearly, NewDate(2024, 2, 29), "2025-02-28"},
		{Yearly, NewDate(2024, 6, 1), "2025-06-01"},
	}
	for _, tc := range cases {
		got := tc.rule.Advance(tc.from)
		if got.String() != tc.want {
			t.Fatalf("%s.Advance(%s) = %s, want %s", tc.rule, tc.from, got, tc.want)
		}
	}
}

func TestBudgetValidate(t *testing.T) {
	b := Budget{Category: "Food", Period: PeriodMonth, LimitMinor: 100000, Currency: "VND"}
	if err := b.Validate(); err != nil {
		t.Fatalf("valid budget rejected: %v", err)
	}
	cases := []struct {
		mutate func(*Budget)
		want   error
	}{
		{func(b *Budget) { b.Category = " " }, ErrEmptyCategory},
		{func(b *Budget) { b.Period = "quarter" }, ErrInvalidPeriod},
		{func(b *Budget) { b.LimitMinor = 0 }, ErrInvalidLimit},
		{func(b *Budget) { b.LimitMinor = -5 }, ErrInvalidLimit},
		{func(b *Budget) { b.Currency = "" }, ErrEmptyCurrency},
	}
	for _, tc := range cases {
		bad := b
		tc.mutate(&bad)
		if err := bad.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("got %v, want %v", err, tc.want)
		}
	}
}

func TestPeriodWindow(t *testing.T) {
	start, end := PeriodMonth.Window(NewDate(2024, 2, 14))
	if start.String() != "2024-02-01" || end.String() != "2024-02-29" {
		t.Fatalf("month window = %s..%s", start, end)
	}
	start, end = PeriodYear.Window(NewDate(2024, 7, 4))
	if start.String() != "2024-01-01" || end.String() != "2024-12-31" {
		t.Fatalf("year window = %s..%s", start, end)
	}
}
