// Package daybook is a market's end-of-day ledger: what came in, what went
// out, and what is left.
package daybook

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"marketbaza/internal/apperr"
	"marketbaza/internal/domain"
	"marketbaza/internal/lifecycle"
	"marketbaza/internal/reconcile"
)

type Field string

const (
	TotalReceived Field = "total_received"
	DamagedGoods  Field = "damaged_goods"
	CashRegister  Field = "cash_register"
	Cash          Field = "cash"
	Salary        Field = "salary"
	Expenses      Field = "expenses"
	Difference    Field = "difference"
)

// Deductions lists the fields subtracted from the received total.
var Deductions = []Field{DamagedGoods, CashRegister, Cash, Salary, Expenses, Difference}

type API interface {
	MarketTotal(ctx context.Context, marketID int64) (domain.MarketTotalReceived, error)
	CreateMarketTransaction(ctx context.Context, req domain.MarketTransactionRequest) (domain.MarketTransaction, error)
}

type Ledger struct {
	api      API
	marketID int64
	logger   *slog.Logger

	guard  lifecycle.Guard
	values map[Field]string
}

func New(api API, marketID int64, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		api:      api,
		marketID: marketID,
		logger:   logger.With("component", "daybook", "market_id", marketID),
		values:   make(map[Field]string),
	}
}

// Load prefills the received total from the market's published total. When
// it cannot be read the field stays as it was.
func (l *Ledger) Load(ctx context.Context) error {
	total, err := l.api.MarketTotal(ctx, l.marketID)
	if err != nil {
		l.logger.WarnContext(ctx, "market total unavailable", "error", err)
		return nil
	}
	return l.guard.Apply(func() {
		l.values[TotalReceived] = reconcile.InputText(total.TotalAmount)
	})
}

func (l *Ledger) Set(field Field, raw string) error {
	if !known(field) {
		return apperr.NewValidation("set field", "unknown field "+string(field))
	}
	value := reconcile.SanitizeDecimalInput(raw)
	return l.guard.Apply(func() {
		l.values[field] = value
	})
}

func known(field Field) bool {
	if field == TotalReceived {
		return true
	}
	for _, f := range Deductions {
		if f == field {
			return true
		}
	}
	return false
}

func (l *Ledger) Value(field Field) string {
	var v string
	l.guard.View(func() { v = l.values[field] })
	return v
}

func (l *Ledger) Remainder() decimal.Decimal {
	return reconcile.Remainder(l.input())
}

func (l *Ledger) input() reconcile.LedgerInput {
	var in reconcile.LedgerInput
	l.guard.View(func() {
		in = reconcile.LedgerInput{
			TotalReceived: reconcile.ParseDecimal(l.values[TotalReceived]),
			DamagedGoods:  reconcile.ParseDecimal(l.values[DamagedGoods]),
			CashRegister:  reconcile.ParseDecimal(l.values[CashRegister]),
			Cash:          reconcile.ParseDecimal(l.values[Cash]),
			Salary:        reconcile.ParseDecimal(l.values[Salary]),
			Expenses:      reconcile.ParseDecimal(l.values[Expenses]),
			Difference:    reconcile.ParseDecimal(l.values[Difference]),
		}
	})
	return in
}

// Reset clears the deductions and keeps the received total.
func (l *Ledger) Reset() error {
	return l.guard.Apply(func() {
		for _, f := range Deductions {
			delete(l.values, f)
		}
	})
}

// Submit records the ledger for date (YYYY-MM-DD) with the remainder
// computed here.
func (l *Ledger) Submit(ctx context.Context, date string) (domain.MarketTransaction, error) {
	const op = "submit ledger"
	if date == "" {
		return domain.MarketTransaction{}, apperr.NewValidation(op, "date is required")
	}

	in := l.input()
	created, err := l.api.CreateMarketTransaction(ctx, domain.MarketTransactionRequest{
		MarketID:      l.marketID,
		Date:          date,
		TotalReceived: in.TotalReceived.InexactFloat64(),
		DamagedGoods:  in.DamagedGoods.InexactFloat64(),
		CashRegister:  in.CashRegister.InexactFloat64(),
		Cash:          in.Cash.InexactFloat64(),
		Salary:        in.Salary.InexactFloat64(),
		Expenses:      in.Expenses.InexactFloat64(),
		Difference:    in.Difference.InexactFloat64(),
		Remainder:     reconcile.Remainder(in).InexactFloat64(),
	})
	if err != nil {
		return domain.MarketTransaction{}, apperr.FromClient(op, err)
	}
	l.logger.InfoContext(ctx, "ledger submitted", "date", date, "transaction_id", created.ID)
	return created, nil
}

func (l *Ledger) Close() {
	l.guard.Close()
}
