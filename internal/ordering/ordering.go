// Package ordering is the market-side order screen: one editable row per
// product, backed by the market's server draft.
package ordering

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"marketbaza/internal/apperr"
	"marketbaza/internal/domain"
	"marketbaza/internal/lifecycle"
	"marketbaza/internal/reconcile"
	"marketbaza/internal/session"
)

// API is the part of the service client the order screen calls.
type API interface {
	Products(ctx context.Context) ([]domain.Product, error)
	DraftByMarket(ctx context.Context, marketID int64) ([]domain.DraftOrderLine, error)
	CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.OrderDetail, error)
	SaveDraft(ctx context.Context, req domain.DraftSaveRequest) error
	ClearDraft(ctx context.Context, marketID int64) error
	SaveMarketTotal(ctx context.Context, req domain.MarketTotalRequest) error
}

// LocalCache removes client-side keys left by older versions.
type LocalCache interface {
	Delete(ctx context.Context, key string) error
}

// Row is one product line as the operator typed it.
type Row struct {
	ProductID        int64
	Name             string
	Quantity         string
	ReceivedQuantity string
	Price            string
}

// Total is received quantity times price, rounded to cents.
func (r Row) Total() decimal.Decimal {
	return reconcile.LineTotal(reconcile.ParseDecimal(r.ReceivedQuantity), reconcile.ParseDecimal(r.Price))
}

type field int

const (
	fieldQuantity field = iota
	fieldReceived
	fieldPrice
)

type Controller struct {
	api      API
	cache    LocalCache
	marketID int64
	logger   *slog.Logger

	guard lifecycle.Guard
	rows  []Row
	index map[int64]int
}

func New(api API, cache LocalCache, marketID int64, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		api:      api,
		cache:    cache,
		marketID: marketID,
		logger:   logger.With("component", "ordering", "market_id", marketID),
		index:    make(map[int64]int),
	}
}

func (c *Controller) MarketID() int64 { return c.marketID }

// LoadWorkingSet rebuilds the rows from the product list and this market's
// draft. A missing draft leaves every row empty.
func (c *Controller) LoadWorkingSet(ctx context.Context) error {
	products, err := c.api.Products(ctx)
	if err != nil {
		return apperr.FromClient("load products", err)
	}

	lines, err := c.api.DraftByMarket(ctx, c.marketID)
	if err != nil {
		c.logger.WarnContext(ctx, "draft unavailable, starting empty", "error", err)
		lines = nil
	}
	drafts := make(map[int64]domain.DraftOrderLine, len(lines))
	for _, l := range lines {
		drafts[l.ProductID] = l
	}

	rows := make([]Row, 0, len(products))
	index := make(map[int64]int, len(products))
	for _, p := range products {
		row := Row{ProductID: p.ID, Name: p.Name}
		if d, ok := drafts[p.ID]; ok {
			row.Quantity = reconcile.InputText(d.Quantity)
			row.ReceivedQuantity = reconcile.InputText(d.ReceivedQuantity)
			row.Price = reconcile.InputText(d.Price)
		}
		index[p.ID] = len(rows)
		rows = append(rows, row)
	}

	return c.guard.Apply(func() {
		c.rows = rows
		c.index = index
	})
}

func (c *Controller) SetQuantity(productID int64, raw string) error {
	return c.set("set quantity", productID, fieldQuantity, raw)
}

func (c *Controller) SetReceivedQuantity(productID int64, raw string) error {
	return c.set("set received quantity", productID, fieldReceived, raw)
}

func (c *Controller) SetPrice(productID int64, raw string) error {
	return c.set("set price", productID, fieldPrice, raw)
}

func (c *Controller) set(op string, productID int64, f field, raw string) error {
	value := reconcile.SanitizeDecimalInput(raw)
	var missing bool
	err := c.guard.Apply(func() {
		i, ok := c.index[productID]
		if !ok {
			missing = true
			return
		}
		switch f {
		case fieldQuantity:
			c.rows[i].Quantity = value
		case fieldReceived:
			c.rows[i].ReceivedQuantity = value
		case fieldPrice:
			c.rows[i].Price = value
		}
	})
	if err != nil {
		return err
	}
	if missing {
		return apperr.NewValidation(op, "unknown product")
	}
	return nil
}

func (c *Controller) Rows() []Row {
	var out []Row
	c.guard.View(func() {
		out = make([]Row, len(c.rows))
		copy(out, c.rows)
	})
	return out
}

func (c *Controller) GrandTotal() decimal.Decimal {
	return grandTotal(c.Rows())
}

func grandTotal(rows []Row) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Total())
	}
	return total
}

// SubmitOrder sends every row with a positive quantity as a new order and
// then stores those rows as the draft. A failed draft write after the order
// went through is reported as partial.
func (c *Controller) SubmitOrder(ctx context.Context) (domain.OrderDetail, error) {
	const op = "submit order"

	var items []domain.OrderItemInput
	var draft []domain.DraftItemInput
	for _, r := range c.Rows() {
		qty := reconcile.ParseDecimal(r.Quantity)
		if !qty.IsPositive() {
			continue
		}
		price := reconcile.ParseDecimal(r.Price)
		items = append(items, domain.OrderItemInput{
			ProductID: r.ProductID,
			Quantity:  qty.InexactFloat64(),
			Price:     price.InexactFloat64(),
		})
		draft = append(draft, draftItem(r))
	}
	if len(items) == 0 {
		return domain.OrderDetail{}, apperr.NewValidation(op, "enter a quantity for at least one product")
	}

	detail, err := c.api.CreateOrder(ctx, domain.OrderCreateRequest{MarketID: c.marketID, Items: items})
	if err != nil {
		return domain.OrderDetail{}, apperr.FromClient(op, err)
	}
	c.logger.InfoContext(ctx, "order submitted", "order_id", detail.ID, "items", len(items))

	if err := c.api.SaveDraft(ctx, domain.DraftSaveRequest{MarketID: c.marketID, Items: draft}); err != nil {
		return detail, apperr.NewPartial(op, "order sent but draft not saved", err)
	}
	if c.guard.Closed() {
		return detail, lifecycle.ErrClosed
	}
	return detail, nil
}

// SaveDraft stores every row, empty ones included, and then publishes the
// grand total for the end-of-day ledger.
func (c *Controller) SaveDraft(ctx context.Context) error {
	const op = "save draft"

	rows := c.Rows()
	items := make([]domain.DraftItemInput, 0, len(rows))
	for _, r := range rows {
		items = append(items, draftItem(r))
	}

	if err := c.api.SaveDraft(ctx, domain.DraftSaveRequest{MarketID: c.marketID, Items: items}); err != nil {
		return apperr.FromClient(op, err)
	}

	total := grandTotal(rows)
	err := c.api.SaveMarketTotal(ctx, domain.MarketTotalRequest{
		MarketID:    c.marketID,
		TotalAmount: total.InexactFloat64(),
	})
	if err != nil {
		return apperr.NewPartial(op, "draft saved but market total not updated", err)
	}
	if c.guard.Closed() {
		return lifecycle.ErrClosed
	}
	return nil
}

// ResetWorkingSet empties every editable field locally and then removes the
// server draft and the legacy local cache. The local rows end empty even when
// the server side fails.
func (c *Controller) ResetWorkingSet(ctx context.Context) error {
	const op = "reset working set"

	if err := c.guard.Apply(func() {
		for i := range c.rows {
			c.rows[i].Quantity = ""
			c.rows[i].ReceivedQuantity = ""
			c.rows[i].Price = ""
		}
	}); err != nil {
		return err
	}

	var errs []error
	if err := c.api.ClearDraft(ctx, c.marketID); err != nil {
		errs = append(errs, err)
	}
	if c.cache != nil {
		if err := c.cache.Delete(ctx, session.LegacyOrdersKey(c.marketID)); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return apperr.NewPartial(op, "local rows cleared but server draft may remain", errors.Join(errs...))
	}
	return nil
}

// Close stops later results from touching the rows.
func (c *Controller) Close() {
	c.guard.Close()
}

func draftItem(r Row) domain.DraftItemInput {
	return domain.DraftItemInput{
		ProductID:        r.ProductID,
		Quantity:         reconcile.ParseDecimal(r.Quantity).InexactFloat64(),
		ReceivedQuantity: reconcile.ParseDecimal(r.ReceivedQuantity).InexactFloat64(),
		Price:            reconcile.ParseDecimal(r.Price).InexactFloat64(),
		Total:            r.Total().InexactFloat64(),
	}
}
