package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"finitor/internal/core"
	"finitor/internal/currency"
)

// Record is one exported transaction. The original amount is kept
// alongside its conversion into the display currency so the export is
// reproducible against the snapshot it was taken with.
type Record struct {
	ID               int64    `json:"id"`
	Date             string   `json:"date"`
	AmountMinor      int64    `json:"amount_minor"`
	Currency         string   `json:"currency"`
	DisplayMinor     int64    `json:"display_minor"`
	DisplayCurrency  string   `json:"display_currency"`
	Description      string   `json:"description,omitempty"`
	Category         string   `json:"category"`
	Source           string   `json:"source"`
	Tags             []string `json:"tags,omitempty"`
	Note             string   `json:"note,omitempty"`
}

func newRecord(tx core.Transaction, snap currency.Snapshot, display string) (Record, error) {
	converted, err := snap.Convert(tx.AmountMinor, tx.Currency, display)
	if err != nil {
		return Record{}, fmt.Errorf("convert transaction %d: %w", tx.ID, err)
	}
	return Record{
		ID:              tx.ID,
		Date:            tx.Date.String(),
		AmountMinor:     tx.AmountMinor,
		Currency:        tx.Currency,
		DisplayMinor:    converted,
		DisplayCurrency: display,
		Description:     tx.Description,
		Category:        tx.Category,
		Source:          tx.Source,
		Tags:            tx.Tags,
		Note:            tx.Note,
	}, nil
}

// WriteJSON streams the sequence as a JSON array.
func WriteJSON(w io.Writer, seq iter.Seq2[core.Transaction, error], snap currency.Snapshot, display string) error {
	var records []Record
	for tx, err := range seq {
		if err != nil {
			return err
		}
		rec, err := newRecord(tx, snap, display)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if records == nil {
		records = []Record{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

var csvHeader = []string{
	"id", "date", "amount_minor", "currency",
	"display_minor", "display_currency",
	"description", "category", "source", "tags", "note",
}

// WriteCSV streams the sequence as CSV with a header row. Tags join
// with "|" to stay inside one column.
func WriteCSV(w io.Writer, seq iter.Seq2[core.Transaction, error], snap currency.Snapshot, display string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for tx, err := range seq {
		if err != nil {
			return err
		}
		rec, err := newRecord(tx, snap, display)
		if err != nil {
			return err
		}
		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.Date,
			strconv.FormatInt(rec.AmountMinor, 10),
			rec.Currency,
			strconv.FormatInt(rec.DisplayMinor, 10),
			rec.DisplayCurrency,
			rec.Description,
			rec.Category,
			rec.Source,
			strings.Join(rec.Tags, "|"),
			rec.Note,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", rec.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
