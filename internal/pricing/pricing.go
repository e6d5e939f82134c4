// Package pricing is the depot screen: pending orders from every market
// folded into one table of quantities, priced per product by the depot.
package pricing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"marketbaza/internal/apperr"
	"marketbaza/internal/domain"
	"marketbaza/internal/lifecycle"
	"marketbaza/internal/reconcile"
)

const detailFetchLimit = 8

type API interface {
	Markets(ctx context.Context) ([]domain.Market, error)
	Products(ctx context.Context) ([]domain.Product, error)
	PendingOrders(ctx context.Context) ([]domain.Order, error)
	Order(ctx context.Context, id int64) (domain.OrderDetail, error)
	Prices(ctx context.Context) (domain.PriceSheet, error)
	SavePrices(ctx context.Context, req domain.PriceSaveRequest) error
	ClearOrders(ctx context.Context) error
	ClearPrices(ctx context.Context) error
	ApproveOrder(ctx context.Context, id int64, items []domain.ApproveItemInput) (domain.OrderDetail, error)
}

// Row is one product as the depot sees it for the selected market.
type Row struct {
	ProductID      int64
	Name           string
	MarketQuantity decimal.Decimal
	TotalQuantity  decimal.Decimal
	Price          string
	GrandTotal     decimal.Decimal
}

type Controller struct {
	api    API
	logger *slog.Logger

	guard      lifecycle.Guard
	markets    []domain.Market
	products   []domain.Product
	orders     []domain.OrderDetail
	quantities reconcile.Quantities
	prices     map[int64]string
	selected   int64
}

func New(api API, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		api:        api,
		logger:     logger.With("component", "pricing"),
		quantities: make(reconcile.Quantities),
		prices:     make(map[int64]string),
	}
}

// LoadAggregates refetches markets, products and every pending order and
// rebuilds the quantity table. Any order detail failure fails the load.
// Saved prices are applied afterwards; if they cannot be read the prices
// start empty.
func (c *Controller) LoadAggregates(ctx context.Context) error {
	const op = "load aggregates"

	markets, err := c.api.Markets(ctx)
	if err != nil {
		return apperr.FromClient(op, err)
	}
	products, err := c.api.Products(ctx)
	if err != nil {
		return apperr.FromClient(op, err)
	}
	pending, err := c.api.PendingOrders(ctx)
	if err != nil {
		return apperr.FromClient(op, err)
	}

	details := make([]domain.OrderDetail, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailFetchLimit)
	for i, o := range pending {
		g.Go(func() error {
			d, err := c.api.Order(gctx, o.ID)
			if err != nil {
				return err
			}
			details[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return apperr.FromClient(op, err)
	}

	prices := make(map[int64]string)
	sheet, err := c.api.Prices(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "saved prices unavailable", "error", err)
	} else {
		for _, p := range sheet.Prices {
			prices[p.ProductID] = reconcile.InputText(p.Price)
		}
	}

	quantities := aggregate(details)
	c.logger.DebugContext(ctx, "aggregates loaded", "orders", len(details), "markets", len(markets), "products", len(products))

	return c.guard.Apply(func() {
		c.markets = markets
		c.products = products
		c.orders = details
		c.quantities = quantities
		c.prices = prices
		if !hasMarket(markets, c.selected) {
			c.selected = 0
			if len(markets) > 0 {
				c.selected = markets[0].ID
			}
		}
	})
}

func aggregate(details []domain.OrderDetail) reconcile.Quantities {
	var lines []reconcile.Line
	for _, d := range details {
		for _, item := range d.Items {
			lines = append(lines, reconcile.Line{
				MarketID:  d.MarketID,
				ProductID: item.ProductID,
				Quantity:  decimal.NewFromFloat(item.RequestedQuantity),
			})
		}
	}
	return reconcile.AggregateByMarketAndProduct(lines)
}

func hasMarket(markets []domain.Market, id int64) bool {
	for _, m := range markets {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (c *Controller) Markets() []domain.Market {
	var out []domain.Market
	c.guard.View(func() {
		out = append(out, c.markets...)
	})
	return out
}

func (c *Controller) SelectedMarket() int64 {
	var id int64
	c.guard.View(func() { id = c.selected })
	return id
}

func (c *Controller) SelectMarket(id int64) error {
	var unknown bool
	err := c.guard.Apply(func() {
		if !hasMarket(c.markets, id) {
			unknown = true
			return
		}
		c.selected = id
	})
	if err != nil {
		return err
	}
	if unknown {
		return apperr.NewValidation("select market", "unknown market")
	}
	return nil
}

// View returns one row per product for the selected market.
func (c *Controller) View() []Row {
	var rows []Row
	c.guard.View(func() {
		rows = c.rowsLocked()
	})
	return rows
}

func (c *Controller) rowsLocked() []Row {
	rows := make([]Row, 0, len(c.products))
	for _, p := range c.products {
		total := c.quantities.TotalAcrossMarkets(p.ID)
		price := c.prices[p.ID]
		rows = append(rows, Row{
			ProductID:      p.ID,
			Name:           p.Name,
			MarketQuantity: c.quantities.At(c.selected, p.ID),
			TotalQuantity:  total,
			Price:          price,
			GrandTotal:     reconcile.ApplyPrice(total, reconcile.ParseDecimal(price)),
		})
	}
	return rows
}

// SetPrice stores the sanitized price and returns that product's grand
// total: its quantity across every market times the new price.
func (c *Controller) SetPrice(productID int64, raw string) (decimal.Decimal, error) {
	value := reconcile.SanitizeDecimalInput(raw)
	var total decimal.Decimal
	var unknown bool
	err := c.guard.Apply(func() {
		if !c.hasProductLocked(productID) {
			unknown = true
			return
		}
		c.prices[productID] = value
		total = reconcile.ApplyPrice(c.quantities.TotalAcrossMarkets(productID), reconcile.ParseDecimal(value))
	})
	if err != nil {
		return decimal.Zero, err
	}
	if unknown {
		return decimal.Zero, apperr.NewValidation("set price", "unknown product")
	}
	return total, nil
}

func (c *Controller) hasProductLocked(id int64) bool {
	for _, p := range c.products {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (c *Controller) GrandTotal() decimal.Decimal {
	return sumGrand(c.View())
}

func sumGrand(rows []Row) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.GrandTotal)
	}
	return total
}

// CommitPrices sends every priced product in one batch and returns how many
// entries went out. Products without a positive price are skipped.
func (c *Controller) CommitPrices(ctx context.Context) (int, error) {
	const op = "commit prices"

	rows := c.View()
	items := make([]domain.PriceItemInput, 0, len(rows))
	for _, r := range rows {
		price := reconcile.ParseDecimal(r.Price)
		if !price.IsPositive() {
			continue
		}
		items = append(items, domain.PriceItemInput{
			ProductID:  r.ProductID,
			Price:      price.InexactFloat64(),
			Total:      r.TotalQuantity.InexactFloat64(),
			GrandTotal: r.GrandTotal.InexactFloat64(),
		})
	}

	err := c.api.SavePrices(ctx, domain.PriceSaveRequest{
		Items:       items,
		TotalAmount: sumGrand(rows).InexactFloat64(),
	})
	if err != nil {
		return 0, apperr.FromClient(op, err)
	}
	c.logger.InfoContext(ctx, "prices committed", "entries", len(items))
	return len(items), nil
}

// ClearAll deletes every order and every saved price on the server. Both
// requests are always attempted and the local table is always emptied.
func (c *Controller) ClearAll(ctx context.Context) error {
	const op = "clear all"

	var errs []error
	if err := c.api.ClearOrders(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := c.api.ClearPrices(ctx); err != nil {
		errs = append(errs, err)
	}

	closedErr := c.guard.Apply(func() {
		c.orders = nil
		c.quantities = make(reconcile.Quantities)
		c.prices = make(map[int64]string)
	})

	if len(errs) > 0 {
		return apperr.NewPartial(op, "local table cleared but the server was not fully cleared", errors.Join(errs...))
	}
	return closedErr
}

// ResetPrices forgets every local price and keeps the quantities.
func (c *Controller) ResetPrices() error {
	return c.guard.Apply(func() {
		c.prices = make(map[int64]string)
	})
}

// ApproveOrder approves one pending order at the current prices, treating
// the requested quantities as received. The order leaves the local table.
func (c *Controller) ApproveOrder(ctx context.Context, orderID int64) (domain.OrderDetail, error) {
	const op = "approve order"

	var (
		items []domain.ApproveItemInput
		found bool
	)
	c.guard.View(func() {
		for _, d := range c.orders {
			if d.ID != orderID {
				continue
			}
			found = true
			for _, item := range d.Items {
				items = append(items, domain.ApproveItemInput{
					ProductID:        item.ProductID,
					Price:            reconcile.ParseDecimal(c.prices[item.ProductID]).InexactFloat64(),
					ReceivedQuantity: item.RequestedQuantity,
				})
			}
		}
	})
	if !found {
		return domain.OrderDetail{}, apperr.NewValidation(op, "order is not pending")
	}

	approved, err := c.api.ApproveOrder(ctx, orderID, items)
	if err != nil {
		return domain.OrderDetail{}, apperr.FromClient(op, err)
	}

	err = c.guard.Apply(func() {
		kept := c.orders[:0]
		for _, d := range c.orders {
			if d.ID != orderID {
				kept = append(kept, d)
			}
		}
		c.orders = kept
		c.quantities = aggregate(kept)
	})
	return approved, err
}

// PendingOrders lists the loaded orders in the order the service returned them.
func (c *Controller) PendingOrders() []domain.OrderDetail {
	var out []domain.OrderDetail
	c.guard.View(func() {
		out = append(out, c.orders...)
	})
	return out
}

func (c *Controller) Close() {
	c.guard.Close()
}
