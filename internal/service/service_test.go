package service

import (
	"context"
	"errors"
	"testing"

	"marketbaza/internal/domain"
	"marketbaza/internal/store"
	"marketbaza/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), nil)
}

func marketCtx(marketID int64) context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID:   3,
		Email:    "market1@marketbaza.local",
		Role:     domain.RoleMarket,
		MarketID: marketID,
	})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: 1, Email: "admin@marketbaza.local", Role: domain.RoleAdmin})
}

func bazaCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: 2, Email: "baza@marketbaza.local", Role: domain.RoleBaza})
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(marketCtx(1), domain.ProductCreateRequest{Name: "Banan"})
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected forbidden for market role, got %v", err)
	}

	created, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{Name: "  Banan  "})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	if created.Name != "Banan" || created.ID == 0 {
		t.Fatalf("unexpected product: %+v", created)
	}
}

func TestCreateProductRejectsBlankAndDuplicateNames(t *testing.T) {
	svc := newTestService()

	if _, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{Name: "   "}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank name, got %v", err)
	}
	if _, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{Name: "pomidor"}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate for existing product, got %v", err)
	}
}

func TestMarketOperatorCannotTouchOtherMarkets(t *testing.T) {
	svc := newTestService()
	ctx := marketCtx(1)

	err := svc.SaveDraft(ctx, domain.DraftSaveRequest{
		MarketID: 2,
		Items:    []domain.DraftItemInput{{ProductID: 1, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected forbidden draft save, got %v", err)
	}

	_, err = svc.CreateOrder(ctx, domain.OrderCreateRequest{
		MarketID: 2,
		Items:    []domain.OrderItemInput{{ProductID: 1, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected forbidden order, got %v", err)
	}

	if _, err := svc.GetDraft(ctx, 2); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected forbidden draft read, got %v", err)
	}
}

func TestCreateOrderValidatesItems(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateOrder(marketCtx(1), domain.OrderCreateRequest{MarketID: 1})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty items, got %v", err)
	}

	_, err = svc.CreateOrder(marketCtx(1), domain.OrderCreateRequest{
		MarketID: 1,
		Items:    []domain.OrderItemInput{{ProductID: 1, Quantity: 0}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for zero quantity, got %v", err)
	}

	_, err = svc.CreateOrder(marketCtx(1), domain.OrderCreateRequest{
		MarketID: 1,
		Items:    []domain.OrderItemInput{{ProductID: 999, Quantity: 2}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}
}

func TestApprovedOrdersLeavePendingList(t *testing.T) {
	svc := newTestService()

	order, err := svc.CreateOrder(marketCtx(1), domain.OrderCreateRequest{
		MarketID: 1,
		Items:    []domain.OrderItemInput{{ProductID: 1, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	pending, err := svc.ListPendingOrders(bazaCtx())
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending order, got %d", len(pending))
	}

	approved, err := svc.ApproveOrder(bazaCtx(), order.Order.ID, domain.ApproveOrderRequest{
		Items: []domain.ApproveItemInput{{ProductID: 1, Price: 2.5, ReceivedQuantity: 3}},
	})
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Order.Status != domain.OrderStatusApproved || approved.Items[0].Price != 2.5 {
		t.Fatalf("unexpected approved order: %+v", approved)
	}

	pending, err = svc.ListPendingOrders(bazaCtx())
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending orders after approval, got %d", len(pending))
	}
}

func TestSaveDraftOverwritesPreviousSnapshot(t *testing.T) {
	svc := newTestService()
	ctx := marketCtx(1)

	if err := svc.SaveDraft(ctx, domain.DraftSaveRequest{
		MarketID: 1,
		Items: []domain.DraftItemInput{
			{ProductID: 1, Quantity: 5},
			{ProductID: 2, Quantity: 2},
		},
	}); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := svc.SaveDraft(ctx, domain.DraftSaveRequest{
		MarketID: 1,
		Items:    []domain.DraftItemInput{{ProductID: 3, Quantity: 1, ReceivedQuantity: 1, Price: 4, Total: 4}},
	}); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	lines, err := svc.GetDraft(ctx, 1)
	if err != nil {
		t.Fatalf("get draft failed: %v", err)
	}
	if len(lines) != 1 || lines[0].ProductID != 3 || lines[0].MarketID != 1 {
		t.Fatalf("expected last full write to win, got %+v", lines)
	}
}

func TestSavePricesRejectsUnpricedAndDuplicateEntries(t *testing.T) {
	svc := newTestService()

	err := svc.SavePrices(bazaCtx(), domain.PriceSaveRequest{
		Items: []domain.PriceItemInput{{ProductID: 1, Price: 0}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for zero price, got %v", err)
	}

	err = svc.SavePrices(bazaCtx(), domain.PriceSaveRequest{
		Items: []domain.PriceItemInput{
			{ProductID: 1, Price: 2},
			{ProductID: 1, Price: 3},
		},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for duplicate product, got %v", err)
	}

	if err := svc.SavePrices(bazaCtx(), domain.PriceSaveRequest{
		Items:       []domain.PriceItemInput{{ProductID: 1, Price: 2.5, Total: 10, GrandTotal: 25}},
		TotalAmount: 25,
	}); err != nil {
		t.Fatalf("save prices failed: %v", err)
	}
	sheet, err := svc.GetPrices(bazaCtx())
	if err != nil {
		t.Fatalf("get prices failed: %v", err)
	}
	if len(sheet.Prices) != 1 || sheet.TotalAmount != 25 {
		t.Fatalf("unexpected sheet: %+v", sheet)
	}

	if err := svc.ClearPrices(bazaCtx()); err != nil {
		t.Fatalf("clear prices failed: %v", err)
	}
	sheet, _ = svc.GetPrices(bazaCtx())
	if len(sheet.Prices) != 0 {
		t.Fatalf("expected empty sheet after clear, got %+v", sheet)
	}
}

func TestGetMarketTotalDefaultsToZero(t *testing.T) {
	svc := newTestService()

	total, err := svc.GetMarketTotal(bazaCtx(), 2)
	if err != nil {
		t.Fatalf("get market total failed: %v", err)
	}
	if total.MarketID != 2 || total.TotalAmount != 0 {
		t.Fatalf("expected zero total, got %+v", total)
	}

	if err := svc.SaveMarketTotal(marketCtx(1), domain.MarketTotalRequest{MarketID: 1, TotalAmount: 42.5}); err != nil {
		t.Fatalf("save market total failed: %v", err)
	}
	total, err = svc.GetMarketTotal(marketCtx(1), 1)
	if err != nil {
		t.Fatalf("get market total failed: %v", err)
	}
	if total.TotalAmount != 42.5 {
		t.Fatalf("expected 42.5, got %v", total.TotalAmount)
	}
}

func TestMarketTransactionsByDate(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateMarketTransaction(marketCtx(1), domain.MarketTransactionRequest{
		MarketID:      1,
		Date:          "15-10-2026",
		TotalReceived: 100,
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid date to be rejected, got %v", err)
	}

	created, err := svc.CreateMarketTransaction(marketCtx(1), domain.MarketTransactionRequest{
		MarketID:      1,
		Date:          "2026-10-15",
		TotalReceived: 100,
		Cash:          40,
		Remainder:     60,
	})
	if err != nil {
		t.Fatalf("create transaction failed: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected assigned id")
	}

	txs, err := svc.ListMarketTransactionsByDate(adminCtx(), "2026-10-15")
	if err != nil {
		t.Fatalf("list transactions failed: %v", err)
	}
	if len(txs) != 1 || txs[0].Remainder != 60 {
		t.Fatalf("unexpected transactions: %+v", txs)
	}

	if _, err := svc.ListMarketTransactionsByDate(adminCtx(), "yesterday"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for malformed date, got %v", err)
	}
}

func TestClearOrdersRemovesEverything(t *testing.T) {
	svc := newTestService()
	for i := 0; i < 2; i++ {
		if _, err := svc.CreateOrder(marketCtx(1), domain.OrderCreateRequest{
			MarketID: 1,
			Items:    []domain.OrderItemInput{{ProductID: 2, Quantity: 1}},
		}); err != nil {
			t.Fatalf("create order failed: %v", err)
		}
	}

	removed, err := svc.ClearOrders(bazaCtx())
	if err != nil {
		t.Fatalf("clear orders failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
}

func TestStoredAmountsUseSchemaScale(t *testing.T) {
	svc := newTestService()

	if err := svc.SavePrices(bazaCtx(), domain.PriceSaveRequest{
		Items:       []domain.PriceItemInput{{ProductID: 1, Price: 2.555, Total: 1.2345, GrandTotal: 3.155}},
		TotalAmount: 3.155,
	}); err != nil {
		t.Fatalf("save prices failed: %v", err)
	}
	sheet, err := svc.GetPrices(bazaCtx())
	if err != nil {
		t.Fatalf("get prices failed: %v", err)
	}
	got := sheet.Prices[0]
	if got.Price != 2.56 || got.Total != 1.235 || got.GrandTotal != 3.16 || sheet.TotalAmount != 3.16 {
		t.Fatalf("expected amounts rounded to stored scale, got %+v total %v", got, sheet.TotalAmount)
	}

	if err := svc.SaveDraft(marketCtx(1), domain.DraftSaveRequest{
		MarketID: 1,
		Items:    []domain.DraftItemInput{{ProductID: 2, Quantity: 0.3335, ReceivedQuantity: 1, Price: 0.125, Total: 0.125}},
	}); err != nil {
		t.Fatalf("save draft failed: %v", err)
	}
	lines, err := svc.GetDraft(marketCtx(1), 1)
	if err != nil {
		t.Fatalf("get draft failed: %v", err)
	}
	if lines[0].Quantity != 0.334 || lines[0].Price != 0.13 || lines[0].Total != 0.13 {
		t.Fatalf("expected draft rounded to stored scale, got %+v", lines[0])
	}

	order, err := svc.CreateOrder(marketCtx(1), domain.OrderCreateRequest{
		MarketID: 1,
		Items:    []domain.OrderItemInput{{ProductID: 1, Quantity: 1.0005, Price: 9.999}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if order.Items[0].RequestedQuantity != 1.001 || order.Items[0].Price != 10 {
		t.Fatalf("expected order rounded to stored scale, got %+v", order.Items[0])
	}
}
