package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"finitor/internal/cli"
	"finitor/internal/config"
	"finitor/internal/core"
	"finitor/internal/currency"
	"finitor/internal/export"
	"finitor/internal/log"
	"finitor/internal/rates"
	"finitor/internal/services"
	"finitor/internal/storage"

	"github.com/shopspring/decimal"
)

const usage = `finitor - personal ledger

Usage:
  finitor add -amount <text> [flags]      record a transaction
  finitor view [flags]                    list transactions
  finitor summary [flags]                 monthly or yearly summary
  finitor balance [flags]                 signed total
  finitor currencies <list|set|base|refresh> [flags]
  finitor budget <set|list|check|rm> [flags]
  finitor alerts [-ack <id>]              view or acknowledge alerts
  finitor export [flags]                  dump as JSON or CSV
`

type app struct {
	cfg    *config.Config
	repo   *storage.SQLiteRepository
	rates  *services.RateService
	ledger *services.LedgerService
	agg    *services.AggregationEngine
	budget *services.BudgetEngine
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)

	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg)
	defer repo.Close()

	var provider rates.Provider
	if cfg.RateProviderURL != "" {
		provider = rates.NewHTTPProvider(cfg.RateProviderURL, logger)
	}
	rateSvc := services.NewRateService(repo, provider, cfg.RateMaxAge, logger)

	a := &app{
		cfg:    cfg,
		repo:   repo,
		rates:  rateSvc,
		ledger: services.NewLedgerService(repo, rateSvc, nil, cfg.DefaultCurrency, logger),
		agg:    services.NewAggregationEngine(repo, rateSvc),
		budget: services.NewBudgetEngine(repo, rateSvc, cfg.RateMaxAge, logger),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "add":
		err = a.cmdAdd(ctx, os.Args[2:])
	case "view":
		err = a.cmdView(ctx, os.Args[2:])
	case "summary":
		err = a.cmdSummary(ctx, os.Args[2:])
	case "balance":
		err = a.cmdBalance(ctx, os.Args[2:])
	case "currencies":
		err = a.cmdCurrencies(ctx, os.Args[2:])
	case "budget":
		err = a.cmdBudget(ctx, os.Args[2:])
	case "alerts":
		err = a.cmdAlerts(ctx, os.Args[2:])
	case "export":
		err = a.cmdExport(ctx, os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) cmdAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	amount := fs.String("amount", "", `amount text, e.g. "$20", "30k", "20USD"`)
	income := fs.Bool("income", false, "record as income instead of expense")
	category := fs.String("category", "", "category name")
	source := fs.String("source", "", "account or payment source")
	desc := fs.String("desc", "", "description")
	date := fs.String("date", "", "date YYYY-MM-DD (default today)")
	recur := fs.String("recur", "", "recurrence: daily, weekly, monthly, yearly")
	tags := fs.String("tags", "", "comma-separated tags")
	note := fs.String("note", "", "free-form note")
	if err := fs.Parse(args); err != nil {
		return err
	}

	minor, code, err := a.ledger.ParseAmount(ctx, *amount)
	if err != nil {
		return err
	}
	if !*income {
		minor = -minor
	}

	tx := core.Transaction{
		AmountMinor: minor,
		Currency:    code,
		Description: *desc,
		Category:    *category,
		Source:      *source,
		Date:        core.Today(),
		Note:        *note,
	}
	if *date != "" {
		if tx.Date, err = core.ParseDate(*date); err != nil {
			return err
		}
	}
	if *recur != "" {
		tx.Recurrence = core.Recurrence(*recur)
	}
	if *tags != "" {
		for _, t := range strings.Split(*tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tx.Tags = append(tx.Tags, t)
			}
		}
	}

	id, err := a.ledger.Add(ctx, tx)
	if err != nil {
		return err
	}

	snap, err := a.rates.Snapshot(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("recorded #%d: %s %s (%s / %s) on %s\n",
		id, formatMinor(minor, code, snap), code, tx.Category, tx.Source, tx.Date)
	return nil
}

func (a *app) cmdView(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	from := fs.String("from", "", "start date YYYY-MM-DD")
	to := fs.String("to", "", "end date YYYY-MM-DD")
	on := fs.String("on", "", "exact date YYYY-MM-DD")
	category := fs.String("category", "", "filter by category")
	source := fs.String("source", "", "filter by source")
	kind := fs.String("kind", "", "income or expense")
	search := fs.String("search", "", "substring match")
	templates := fs.Bool("templates", false, "show recurring templates instead")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		f   core.Filter
		err error
	)
	if f.From, err = parseOptionalDate(*from); err != nil {
		return err
	}
	if f.To, err = parseOptionalDate(*to); err != nil {
		return err
	}
	if f.On, err = parseOptionalDate(*on); err != nil {
		return err
	}
	f.Category = *category
	f.Source = *source
	f.Search = *search
	f.Kind = core.Kind(*kind)
	if *templates {
		f.Templates = core.TemplatesOnly
	}

	snap, err := a.rates.Snapshot(ctx)
	if err != nil {
		return err
	}

	count := 0
	for tx, err := range a.ledger.Query(ctx, f) {
		if err != nil {
			return err
		}
		line := fmt.Sprintf("#%-5d %s  %12s %s  %s / %s",
			tx.ID, tx.Date, formatMinor(tx.AmountMinor, tx.Currency, snap), tx.Currency, tx.Category, tx.Source)
		if tx.Description != "" {
			line += "  " + tx.Description
		}
		if tx.IsTemplate() {
			line += fmt.Sprintf("  [%s, next %s]", tx.Recurrence, tx.NextDate)
		}
		fmt.Println(line)
		count++
	}
	if count == 0 {
		fmt.Println("no transactions")
	}
	return nil
}

func (a *app) cmdSummary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	now := time.Now()
	year := fs.Int("year", now.Year(), "year")
	month := fs.Int("month", int(now.Month()), "month 1-12")
	yearly := fs.Bool("yearly", false, "whole-year summary")
	curr := fs.String("currency", a.cfg.BaseCurrency, "display currency")
	byDim := fs.String("by", "", "group by category or source instead")
	if err := fs.Parse(args); err != nil {
		return err
	}

	snap, err := a.rates.Snapshot(ctx)
	if err != nil {
		return err
	}
	display := strings.ToUpper(*curr)

	if *byDim != "" {
		from, to := core.PeriodMonth.Window(core.NewDate(*year, *month, 1))
		if *yearly {
			from, to = core.PeriodYear.Window(core.NewDate(*year, 1, 1))
		}
		totals, err := a.agg.SummarizeBy(ctx, services.Dimension(*byDim), core.Filter{From: from, To: to}, display)
		if err != nil {
			return err
		}
		for _, t := range totals {
			fmt.Printf("%-20s %12s %s\n", t.Name, formatMinor(t.TotalMinor, display, snap), display)
		}
		return nil
	}

	if *yearly {
		sum, err := a.agg.YearlySummary(ctx, *year, display)
		if err != nil {
			return err
		}
		fmt.Printf("%d  income %s  expense %s  net %s %s\n", sum.Year,
			formatMinor(sum.IncomeMinor, display, snap),
			formatMinor(sum.ExpenseMinor, display, snap),
			formatMinor(sum.NetMinor, display, snap), display)
		return nil
	}

	sum, err := a.agg.MonthlySummary(ctx, *year, *month, display)
	if err != nil {
		return err
	}
	fmt.Printf("%d-%02d  income %s  expense %s  net %s %s\n", sum.Year, sum.Month,
		formatMinor(sum.IncomeMinor, display, snap),
		formatMinor(sum.ExpenseMinor, display, snap),
		formatMinor(sum.NetMinor, display, snap), display)
	return nil
}

func (a *app) cmdBalance(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	asOf := fs.String("as-of", "", "cut-off date YYYY-MM-DD (default: everything)")
	curr := fs.String("currency", a.cfg.BaseCurrency, "display currency")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cutoff, err := parseOptionalDate(*asOf)
	if err != nil {
		return err
	}
	display := strings.ToUpper(*curr)

	balance, err := a.agg.Balance(ctx, cutoff, display)
	if err != nil {
		return err
	}
	snap, err := a.rates.Snapshot(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("balance: %s %s\n", formatMinor(balance, display, snap), display)
	return nil
}

func (a *app) cmdCurrencies(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}

	switch sub {
	case "list":
		rows, err := a.rates.ListCurrencies(ctx)
		if err != nil {
			return err
		}
		for _, c := range rows {
			marker := " "
			if c.IsBase {
				marker = "*"
			}
			fmt.Printf("%s %s  %-20s rate %-12s minor units %d\n",
				marker, c.Code, c.Name, c.RateToBase, c.MinorUnits)
		}
		return nil

	case "set":
		fs := flag.NewFlagSet("currencies set", flag.ExitOnError)
		code := fs.String("code", "", "ISO-style 3-letter code")
		name := fs.String("name", "", "display name")
		symbol := fs.String("symbol", "", "symbol, e.g. $")
		rate := fs.String("rate", "", "base units per 1 unit of this currency")
		minor := fs.Int("minor", 2, "minor units (decimal places)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		r, err := decimal.NewFromString(*rate)
		if err != nil {
			return currency.ErrInvalidRate
		}
		return a.rates.UpsertCurrency(ctx, currency.Currency{
			Code: *code, Name: *name, Symbol: *symbol,
			RateToBase: r, MinorUnits: int32(*minor),
		})

	case "base":
		fs := flag.NewFlagSet("currencies base", flag.ExitOnError)
		code := fs.String("code", "", "code of the new base currency")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return a.rates.SetBaseCurrency(ctx, *code)

	case "refresh":
		return a.rates.Refresh(ctx)

	default:
		return fmt.Errorf("unknown currencies subcommand %q", sub)
	}
}

func (a *app) cmdBudget(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("budget needs a subcommand: set, list, check, rm")
	}
	sub, args := args[0], args[1:]

	switch sub {
	case "set":
		fs := flag.NewFlagSet("budget set", flag.ExitOnError)
		category := fs.String("category", "", "category to cap")
		period := fs.String("period", "month", "month or year")
		limit := fs.String("limit", "", `limit amount text, e.g. "300k"`)
		if err := fs.Parse(args); err != nil {
			return err
		}
		minor, code, err := a.ledger.ParseAmount(ctx, *limit)
		if err != nil {
			return err
		}
		return a.budget.SetBudget(ctx, core.Budget{
			Category: *category, Period: core.Period(*period),
			LimitMinor: minor, Currency: code,
		})

	case "list":
		rows, err := a.budget.Budgets(ctx)
		if err != nil {
			return err
		}
		snap, err := a.rates.Snapshot(ctx)
		if err != nil {
			return err
		}
		for _, b := range rows {
			fmt.Printf("%-20s %-6s %12s %s\n", b.Category, b.Period,
				formatMinor(b.LimitMinor, b.Currency, snap), b.Currency)
		}
		return nil

	case "check":
		fs := flag.NewFlagSet("budget check", flag.ExitOnError)
		category := fs.String("category", "", "category to check")
		period := fs.String("period", "month", "month or year")
		ref := fs.String("ref", "", "reference date YYYY-MM-DD (default today)")
		curr := fs.String("currency", "", "re-express result in this currency")
		if err := fs.Parse(args); err != nil {
			return err
		}
		refDate := core.Today()
		if *ref != "" {
			var err error
			if refDate, err = core.ParseDate(*ref); err != nil {
				return err
			}
		}
		status, err := a.budget.Check(ctx, *category, core.Period(*period), refDate, strings.ToUpper(*curr))
		if err != nil {
			return err
		}
		snap, err := a.rates.Snapshot(ctx)
		if err != nil {
			return err
		}
		state := "within budget"
		if status.Exceeded {
			state = "EXCEEDED"
		}
		fmt.Printf("%s (%s): spent %s of %s %s, remaining %s - %s\n",
			status.Category, status.Period,
			formatMinor(status.SpentMinor, status.Currency, snap),
			formatMinor(status.LimitMinor, status.Currency, snap),
			status.Currency,
			formatMinor(status.RemainingMinor, status.Currency, snap),
			state)
		if status.StaleRates {
			fmt.Println("warning: some exchange rates are stale")
		}
		return nil

	case "rm":
		fs := flag.NewFlagSet("budget rm", flag.ExitOnError)
		category := fs.String("category", "", "category")
		period := fs.String("period", "month", "month or year")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return a.budget.RemoveBudget(ctx, *category, core.Period(*period))

	default:
		return fmt.Errorf("unknown budget subcommand %q", sub)
	}
}

func (a *app) cmdAlerts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("alerts", flag.ExitOnError)
	ack := fs.Int64("ack", 0, "mark this alert id as read")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *ack > 0 {
		return a.budget.MarkAlertRead(ctx, *ack)
	}

	rows, err := a.budget.UnreadAlerts(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("no unread alerts")
		return nil
	}
	for _, alert := range rows {
		fmt.Printf("#%-5d [%s] %s (%s)\n", alert.ID, alert.Type, alert.Message,
			alert.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func (a *app) cmdExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "json", "json or csv")
	out := fs.String("o", "", "output file (default stdout)")
	curr := fs.String("currency", a.cfg.BaseCurrency, "display currency")
	from := fs.String("from", "", "start date YYYY-MM-DD")
	to := fs.String("to", "", "end date YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		f   core.Filter
		err error
	)
	if f.From, err = parseOptionalDate(*from); err != nil {
		return err
	}
	if f.To, err = parseOptionalDate(*to); err != nil {
		return err
	}

	w := os.Stdout
	if *out != "" {
		file, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}

	snap, err := a.rates.Snapshot(ctx)
	if err != nil {
		return err
	}
	seq := a.ledger.Query(ctx, f)
	display := strings.ToUpper(*curr)

	switch *format {
	case "json":
		return export.WriteJSON(w, seq, snap, display)
	case "csv":
		return export.WriteCSV(w, seq, snap, display)
	default:
		return fmt.Errorf("unsupported format %q", *format)
	}
}

func parseOptionalDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

// formatMinor renders minor units as a decimal string using the
// currency's minor-unit count, e.g. 2000 cents -> "20.00".
func formatMinor(minor int64, code string, snap currency.Snapshot) string {
	c, err := snap.Get(code)
	if err != nil {
		return fmt.Sprintf("%d", minor)
	}
	return decimal.New(minor, -c.MinorUnits).StringFixed(c.MinorUnits)
}
