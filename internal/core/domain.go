// Package core holds the domain model of the ledger: transactions,
// budgets, calendar dates and the validation rules that guard writes.
package core

import (
	"errors"
	"strings"
	"time"
)

const (
	None    Recurrence = "none"
	Daily   Recurrence = "daily"
	Weekly  Recurrence = "weekly"
	Monthly Recurrence = "monthly"
	Yearly  Recurrence = "yearly"
)

const (
	KindAny     Kind = ""
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

const (
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

type (
	// Recurrence marks a transaction as a template that an external
	// scheduler materializes into concrete dated rows.
	Recurrence string

	// Kind classifies a transaction by the sign of its amount.
	Kind string

	// Period is the window a budget limit applies to.
	Period string

	Date struct {
		time.Time
	}

	// Transaction is a single ledger entry. AmountMinor is signed and
	// expressed in the smallest unit of Currency: positive for income,
	// negative for expense. The sign is the kind, so the two can never
	// disagree.
	Transaction struct {
		ID          int64
		AmountMinor int64
		Currency    string // code referencing a currency table entry
		Description string
		Category    string
		Source      string
		Date        Date
		Recurrence  Recurrence
		NextDate    Date // next materialization date, templates only
		Tags        []string
		Note        string
		CreatedAt   time.Time
	}

	// TransactionPatch carries the fields of a partial update. Nil
	// pointers leave the stored value untouched.
	TransactionPatch struct {
		AmountMinor *int64
		Currency    *string
		Description *string
		Category    *string
		Source      *string
		Date        *Date
		Tags        *[]string
		Note        *string
	}

	// Budget caps spending for a category over a month or a year.
	// LimitMinor is expressed in minor units of Currency; limit and
	// actual spend are always compared in that same currency.
	Budget struct {
		Category   string
		Period     Period
		LimitMinor int64
		Currency   string
	}

	// Alert is a persisted notification. It stays unread until
	// acknowledged.
	Alert struct {
		ID        int64
		Type      string
		Message   string
		CreatedAt time.Time
		Read      bool
	}

	// Filter narrows a transaction query. Zero values mean "no
	// constraint". From/To are inclusive. Templates controls whether
	// recurring templates appear in the results; reporting excludes
	// them by default.
	Filter struct {
		ID        int64
		From      Date
		To        Date
		On        Date
		Category  string
		Source    string
		Kind      Kind
		Search    string // substring match on description/category/source
		Templates TemplateMode
	}

	// TemplateMode selects concrete rows, templates, or both.
	TemplateMode int
)

const (
	TemplatesExclude TemplateMode = iota
	TemplatesOnly
	TemplatesInclude
)

// AlertTypeBudget marks alerts raised by budget overruns.
const AlertTypeBudget = "budget"

var (
	ErrNotFound          = errors.New("not found")
	ErrIOTimeout         = errors.New("storage operation timed out")
	ErrZeroAmount        = errors.New("amount must be non-zero")
	ErrEmptyCategory     = errors.New("empty category")
	ErrEmptySource       = errors.New("empty source")
	ErrEmptyCurrency     = errors.New("empty currency code")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidRecurrence = errors.New("invalid recurrence")
	ErrInvalidPeriod     = errors.New("invalid budget period")
	ErrInvalidLimit      = errors.New("budget limit must be positive")
)

// DateLayout is the calendar date format used everywhere in the ledger.
const DateLayout = "2006-01-02"

// NewDate creates a Date at UTC midnight.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string into a Date. time.Parse already
// rejects impossible calendar dates such as 2024-02-30.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// Today returns the current date at UTC midnight.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// Before reports whether d falls on an earlier calendar day than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// After reports whether d falls on a later calendar day than other.
func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

func (r Recurrence) Validate() error {
	switch r {
	case None, Daily, Weekly, Monthly, Yearly:
		return nil
	default:
		return ErrInvalidRecurrence
	}
}

// Advance returns the next occurrence after d for this rule. Monthly
// and yearly steps clamp to the last day of short months instead of
// letting time.AddDate roll over into the following month.
func (r Recurrence) Advance(d Date) Date {
	switch r {
	case Daily:
		return Date{Time: d.AddDate(0, 0, 1)}
	case Weekly:
		return Date{Time: d.AddDate(0, 0, 7)}
	case Monthly:
		return addMonthsClamped(d, 1)
	case Yearly:
		return addMonthsClamped(d, 12)
	default:
		return d
	}
}

func addMonthsClamped(d Date, months int) Date {
	year, month, day := d.Date()
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	lastDay := first.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return NewDate(first.Year(), int(first.Month()), day)
}

// Kind returns the transaction classification derived from the amount
// sign.
func (t Transaction) Kind() Kind {
	if t.AmountMinor < 0 {
		return KindExpense
	}
	return KindIncome
}

// IsTemplate reports whether the transaction is a recurring template
// rather than a concrete ledger row.
func (t Transaction) IsTemplate() bool {
	return t.Recurrence != None && t.Recurrence != ""
}

func (t Transaction) Validate() error {
	if t.AmountMinor == 0 {
		return ErrZeroAmount
	}
	if strings.TrimSpace(t.Currency) == "" {
		return ErrEmptyCurrency
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(t.Source) == "" {
		return ErrEmptySource
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if t.Recurrence != "" {
		if err := t.Recurrence.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	if b.Period != PeriodMonth && b.Period != PeriodYear {
		return ErrInvalidPeriod
	}
	if b.LimitMinor <= 0 {
		return ErrInvalidLimit
	}
	if strings.TrimSpace(b.Currency) == "" {
		return ErrEmptyCurrency
	}
	return nil
}

// Window returns the inclusive date range of the budget period that
// contains ref.
func (p Period) Window(ref Date) (Date, Date) {
	year, month, _ := ref.Date()
	if p == PeriodYear {
		return NewDate(year, 1, 1), NewDate(year, 12, 31)
	}
	start := NewDate(year, int(month), 1)
	end := Date{Time: start.AddDate(0, 1, -1)}
	return start, end
}
