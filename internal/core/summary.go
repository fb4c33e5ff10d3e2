package core

// DimensionTotal is a signed total aggregated under one category or
// source value, expressed in minor units of the display currency.
type DimensionTotal struct {
	Name       string
	TotalMinor int64
}

// MonthlySummary breaks a calendar month down by direction. Expense is
// reported as a positive magnitude; Net = Income - Expense.
type MonthlySummary struct {
	Year         int
	Month        int // 1-12
	Currency     string
	IncomeMinor  int64
	ExpenseMinor int64
	NetMinor     int64
}

// YearlySummary is the same breakdown over a whole year.
type YearlySummary struct {
	Year         int
	Currency     string
	IncomeMinor  int64
	ExpenseMinor int64
	NetMinor     int64
}

// BudgetStatus is the structured result of a budget check. All money
// fields are expressed in Currency. The engine never notifies anyone;
// the caller decides what to do with Exceeded.
type BudgetStatus struct {
	Category       string
	Period         Period
	Currency       string
	LimitMinor     int64
	SpentMinor     int64
	RemainingMinor int64
	Exceeded       bool
	StaleRates     bool // advisory: a rate involved was older than the configured max age
}
