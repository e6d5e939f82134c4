// Package admin holds the administrator's screens: the daily ledger report
// and the product catalog.
package admin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"marketbaza/internal/apperr"
	"marketbaza/internal/domain"
	"marketbaza/internal/lifecycle"
	"marketbaza/internal/reconcile"
)

const (
	reportSheet = "Report"
	emptyCell   = "-"
)

// Columns is the report header, market name first.
var Columns = []string{
	"Market",
	"Total received",
	"Damaged goods",
	"Cash register",
	"Cash",
	"Salary",
	"Expenses",
	"Difference",
	"Remainder",
}

type ReportsAPI interface {
	Markets(ctx context.Context) ([]domain.Market, error)
	MarketTransactionsByDate(ctx context.Context, date string) ([]domain.MarketTransaction, error)
}

// ReportRow is one market's ledger for the loaded date. Transaction is nil
// when the market filed nothing.
type ReportRow struct {
	Market      domain.Market
	Transaction *domain.MarketTransaction
}

// Cells renders the row the way the table shows it.
func (r ReportRow) Cells() []string {
	cells := make([]string, 0, len(Columns))
	cells = append(cells, r.Market.Name)
	if r.Transaction == nil {
		for range Columns[1:] {
			cells = append(cells, emptyCell)
		}
		return cells
	}
	for _, v := range r.amounts() {
		cells = append(cells, reconcile.Display(decimal.NewFromFloat(v)))
	}
	return cells
}

func (r ReportRow) amounts() []float64 {
	tx := r.Transaction
	return []float64{
		tx.TotalReceived,
		tx.DamagedGoods,
		tx.CashRegister,
		tx.Cash,
		tx.Salary,
		tx.Expenses,
		tx.Difference,
		tx.Remainder,
	}
}

type Reports struct {
	api    ReportsAPI
	logger *slog.Logger

	guard lifecycle.Guard
	date  string
	rows  []ReportRow
}

func NewReports(api ReportsAPI, logger *slog.Logger) *Reports {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reports{api: api, logger: logger.With("component", "reports")}
}

// Load builds one row per market for date. If the transactions cannot be
// read every row is empty.
func (r *Reports) Load(ctx context.Context, date string) error {
	markets, err := r.api.Markets(ctx)
	if err != nil {
		return apperr.FromClient("load report", err)
	}

	txs, err := r.api.MarketTransactionsByDate(ctx, date)
	if err != nil {
		r.logger.WarnContext(ctx, "transactions unavailable", "date", date, "error", err)
		txs = nil
	}
	byMarket := make(map[int64]domain.MarketTransaction, len(txs))
	for _, tx := range txs {
		// Later filings for the same day replace earlier ones.
		byMarket[tx.MarketID] = tx
	}

	rows := make([]ReportRow, 0, len(markets))
	for _, m := range markets {
		row := ReportRow{Market: m}
		if tx, ok := byMarket[m.ID]; ok {
			row.Transaction = &tx
		}
		rows = append(rows, row)
	}

	return r.guard.Apply(func() {
		r.date = date
		r.rows = rows
	})
}

func (r *Reports) Date() string {
	var d string
	r.guard.View(func() { d = r.date })
	return d
}

func (r *Reports) Rows() []ReportRow {
	var out []ReportRow
	r.guard.View(func() {
		out = append(out, r.rows...)
	})
	return out
}

// ExportXLSX writes the loaded table as a single-sheet workbook. Amounts are
// numeric cells; missing filings are "-".
func (r *Reports) ExportXLSX(w io.Writer) error {
	rows := r.Rows()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), reportSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(reportSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		values := []any{row.Market.Name}
		if row.Transaction == nil {
			for range Columns[1:] {
				values = append(values, emptyCell)
			}
		} else {
			for _, v := range row.amounts() {
				values = append(values, decimal.NewFromFloat(v).Round(2).InexactFloat64())
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(reportSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func (r *Reports) Close() {
	r.guard.Close()
}

type CatalogAPI interface {
	CreateProduct(ctx context.Context, name string) (domain.Product, error)
}

type Catalog struct {
	api CatalogAPI
}

func NewCatalog(api CatalogAPI) *Catalog {
	return &Catalog{api: api}
}

func (c *Catalog) AddProduct(ctx context.Context, name string) (domain.Product, error) {
	const op = "add product"
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Product{}, apperr.NewValidation(op, "product name is required")
	}
	product, err := c.api.CreateProduct(ctx, name)
	if err != nil {
		return domain.Product{}, apperr.FromClient(op, err)
	}
	return product, nil
}
