package pricing_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketbaza/internal/apiclient"
	"marketbaza/internal/apperr"
	"marketbaza/internal/domain"
	"marketbaza/internal/lifecycle"
	"marketbaza/internal/pricing"
	"marketbaza/internal/session"
	"marketbaza/internal/testserver"
)

func login(t *testing.T, srv *testserver.Server, email, password string) *apiclient.Client {
	t.Helper()
	client := apiclient.New(srv.BaseURL(), session.New(nil))
	_, err := client.Login(context.Background(), email, password)
	require.NoError(t, err)
	return client
}

func placeOrder(t *testing.T, client *apiclient.Client, marketID int64, items ...domain.OrderItemInput) {
	t.Helper()
	_, err := client.CreateOrder(context.Background(), domain.OrderCreateRequest{MarketID: marketID, Items: items})
	require.NoError(t, err)
}

func rowFor(t *testing.T, rows []pricing.Row, productID int64) pricing.Row {
	t.Helper()
	for _, r := range rows {
		if r.ProductID == productID {
			return r
		}
	}
	t.Fatalf("product %d missing from view", productID)
	return pricing.Row{}
}

func TestAggregatesAcrossMarketsAndPrices(t *testing.T) {
	ctx := context.Background()
	srv := testserver.Start(t)
	admin := login(t, srv, testserver.AdminEmail, testserver.AdminPassword)
	placeOrder(t, admin, 1, domain.OrderItemInput{ProductID: 1, Quantity: 3})
	placeOrder(t, admin, 2, domain.OrderItemInput{ProductID: 1, Quantity: 7})

	ctrl := pricing.New(login(t, srv, testserver.BazaEmail, testserver.BazaPassword), nil)
	require.NoError(t, ctrl.LoadAggregates(ctx))
	assert.Equal(t, int64(1), ctrl.SelectedMarket())

	row := rowFor(t, ctrl.View(), 1)
	assert.Equal(t, "3", row.MarketQuantity.String())
	assert.Equal(t, "10", row.TotalQuantity.String())

	require.NoError(t, ctrl.SelectMarket(2))
	row = rowFor(t, ctrl.View(), 1)
	assert.Equal(t, "7", row.MarketQuantity.String())
	assert.Equal(t, "10", row.TotalQuantity.String())

	total, err := ctrl.SetPrice(1, "2,50")
	require.NoError(t, err)
	assert.Equal(t, "25.00", total.StringFixed(2))
	assert.Equal(t, "25.00", ctrl.GrandTotal().StringFixed(2))
}

func TestCommitPricesSkipsUnpricedProducts(t *testing.T) {
	ctx := context.Background()
	srv := testserver.Start(t)
	admin := login(t, srv, testserver.AdminEmail, testserver.AdminPassword)
	placeOrder(t, admin, 1,
		domain.OrderItemInput{ProductID: 1, Quantity: 2},
		domain.OrderItemInput{ProductID: 2, Quantity: 4},
	)

	baza := login(t, srv, testserver.BazaEmail, testserver.BazaPassword)
	ctrl := pricing.New(baza, nil)
	require.NoError(t, ctrl.LoadAggregates(ctx))
	_, err := ctrl.SetPrice(1, "3.00")
	require.NoError(t, err)

	sent, err := ctrl.CommitPrices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	sheet, err := baza.Prices(ctx)
	require.NoError(t, err)
	require.Len(t, sheet.Prices, 1)
	assert.Equal(t, int64(1), sheet.Prices[0].ProductID)
	assert.Equal(t, 3.0, sheet.Prices[0].Price)
	assert.InDelta(t, 6.0, sheet.TotalAmount, 0.0001)
}

func TestReloadRestoresSavedPrices(t *testing.T) {
	ctx := context.Background()
	srv := testserver.Start(t)
	baza := login(t, srv, testserver.BazaEmail, testserver.BazaPassword)
	require.NoError(t, baza.SavePrices(ctx, domain.PriceSaveRequest{
		Items:       []domain.PriceItemInput{{ProductID: 2, Price: 1.25, GrandTotal: 999}},
		TotalAmount: 999,
	}))

	ctrl := pricing.New(baza, nil)
	require.NoError(t, ctrl.LoadAggregates(ctx))
	row := rowFor(t, ctrl.View(), 2)
	assert.Equal(t, "1.25", row.Price)
	assert.True(t, row.GrandTotal.IsZero())

	require.NoError(t, ctrl.ResetPrices())
	assert.Empty(t, rowFor(t, ctrl.View(), 2).Price)
}

func TestApproveOrderRemovesItFromTable(t *testing.T) {
	ctx := context.Background()
	srv := testserver.Start(t)
	admin := login(t, srv, testserver.AdminEmail, testserver.AdminPassword)
	placeOrder(t, admin, 1, domain.OrderItemInput{ProductID: 3, Quantity: 5})

	baza := login(t, srv, testserver.BazaEmail, testserver.BazaPassword)
	ctrl := pricing.New(baza, nil)
	require.NoError(t, ctrl.LoadAggregates(ctx))
	pending := ctrl.PendingOrders()
	require.Len(t, pending, 1)
	_, err := ctrl.SetPrice(3, "1.10")
	require.NoError(t, err)

	approved, err := ctrl.ApproveOrder(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusApproved, approved.Status)
	assert.Equal(t, 1.1, approved.Items[0].Price)
	assert.Equal(t, 5.0, approved.Items[0].ReceivedQuantity)

	assert.Empty(t, ctrl.PendingOrders())
	assert.True(t, rowFor(t, ctrl.View(), 3).TotalQuantity.IsZero())

	_, err = ctrl.ApproveOrder(ctx, pending[0].ID)
	assert.True(t, apperr.IsKind(err, apperr.Validation))
}

func TestClearAllAttemptsBothAndAlwaysClearsLocally(t *testing.T) {
	ctx := context.Background()
	api := newStub()
	api.orders[10] = domain.OrderDetail{
		Order: domain.Order{ID: 10, MarketID: 1},
		Items: []domain.OrderItem{{ProductID: 1, RequestedQuantity: 4}},
	}
	api.clearOrdersErr = errors.New("orders table locked")

	ctrl := pricing.New(api, nil)
	require.NoError(t, ctrl.LoadAggregates(ctx))
	_, err := ctrl.SetPrice(1, "2")
	require.NoError(t, err)

	err = ctrl.ClearAll(ctx)
	assert.True(t, apperr.IsKind(err, apperr.Partial))
	assert.Equal(t, 1, api.clearPricesCalls)

	row := rowFor(t, ctrl.View(), 1)
	assert.True(t, row.TotalQuantity.IsZero())
	assert.Empty(t, row.Price)
	assert.Empty(t, ctrl.PendingOrders())
}

func TestDetailFailureFailsWholeLoad(t *testing.T) {
	api := newStub()
	api.orders[1] = domain.OrderDetail{Order: domain.Order{ID: 1, MarketID: 1}}
	api.orders[2] = domain.OrderDetail{Order: domain.Order{ID: 2, MarketID: 2}}
	api.detailErr = map[int64]error{2: &apiclient.NetworkError{Method: "GET", Path: "/baza/orders/2", Err: errors.New("refused")}}

	ctrl := pricing.New(api, nil)
	err := ctrl.LoadAggregates(context.Background())
	assert.True(t, apperr.IsKind(err, apperr.Network))
	assert.Empty(t, ctrl.View())
}

func TestPriceFetchFailureLeavesPricesEmpty(t *testing.T) {
	api := newStub()
	api.pricesErr = errors.New("boom")

	ctrl := pricing.New(api, nil)
	require.NoError(t, ctrl.LoadAggregates(context.Background()))
	for _, r := range ctrl.View() {
		assert.Empty(t, r.Price)
	}
}

func TestEmptyProductListYieldsNoRows(t *testing.T) {
	api := newStub()
	api.products = nil

	ctrl := pricing.New(api, nil)
	require.NoError(t, ctrl.LoadAggregates(context.Background()))
	assert.Empty(t, ctrl.View())
	assert.True(t, ctrl.GrandTotal().IsZero())
}

func TestSetPriceReturnsProductGrandTotal(t *testing.T) {
	api := newStub()
	api.orders[1] = domain.OrderDetail{
		Order: domain.Order{ID: 1, MarketID: 1},
		Items: []domain.OrderItem{
			{ProductID: 1, RequestedQuantity: 3},
			{ProductID: 2, RequestedQuantity: 4},
		},
	}
	api.orders[2] = domain.OrderDetail{
		Order: domain.Order{ID: 2, MarketID: 2},
		Items: []domain.OrderItem{{ProductID: 2, RequestedQuantity: 1.5}},
	}

	ctrl := pricing.New(api, nil)
	require.NoError(t, ctrl.LoadAggregates(context.Background()))

	total, err := ctrl.SetPrice(1, "2")
	require.NoError(t, err)
	assert.Equal(t, "6.00", total.StringFixed(2))

	total, err = ctrl.SetPrice(2, "1")
	require.NoError(t, err)
	assert.Equal(t, "5.50", total.StringFixed(2))
	assert.Equal(t, "11.50", ctrl.GrandTotal().StringFixed(2))

	total, err = ctrl.SetPrice(2, "")
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestLoadFinishingAfterCloseLeavesStateUntouched(t *testing.T) {
	api := newStub()
	api.orders[1] = domain.OrderDetail{
		Order: domain.Order{ID: 1, MarketID: 1},
		Items: []domain.OrderItem{{ProductID: 1, RequestedQuantity: 2}},
	}
	ctrl := pricing.New(api, nil)
	api.onPrices = ctrl.Close

	err := ctrl.LoadAggregates(context.Background())
	assert.ErrorIs(t, err, lifecycle.ErrClosed)
	assert.Empty(t, ctrl.View())
	assert.Empty(t, ctrl.Markets())
	assert.Empty(t, ctrl.PendingOrders())
	assert.Zero(t, ctrl.SelectedMarket())

	_, err = ctrl.SetPrice(1, "2")
	assert.ErrorIs(t, err, lifecycle.ErrClosed)
	assert.ErrorIs(t, ctrl.ResetPrices(), lifecycle.ErrClosed)
}

type stubAPI struct {
	mu               sync.Mutex
	markets          []domain.Market
	products         []domain.Product
	orders           map[int64]domain.OrderDetail
	detailErr        map[int64]error
	pricesErr        error
	onPrices         func()
	clearOrdersErr   error
	clearPricesCalls int
}

func newStub() *stubAPI {
	return &stubAPI{
		markets:  []domain.Market{{ID: 1, Name: "Market 1"}, {ID: 2, Name: "Market 2"}},
		products: []domain.Product{{ID: 1, Name: "Pomidor"}, {ID: 2, Name: "Xiyar"}},
		orders:   make(map[int64]domain.OrderDetail),
	}
}

func (s *stubAPI) Markets(context.Context) ([]domain.Market, error)   { return s.markets, nil }
func (s *stubAPI) Products(context.Context) ([]domain.Product, error) { return s.products, nil }

func (s *stubAPI) PendingOrders(context.Context) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Order, 0, len(s.orders))
	for _, d := range s.orders {
		out = append(out, d.Order)
	}
	return out, nil
}

func (s *stubAPI) Order(_ context.Context, id int64) (domain.OrderDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.detailErr[id]; err != nil {
		return domain.OrderDetail{}, err
	}
	return s.orders[id], nil
}

func (s *stubAPI) Prices(context.Context) (domain.PriceSheet, error) {
	if s.onPrices != nil {
		s.onPrices()
	}
	return domain.PriceSheet{}, s.pricesErr
}

func (s *stubAPI) SavePrices(context.Context, domain.PriceSaveRequest) error { return nil }

func (s *stubAPI) ClearOrders(context.Context) error { return s.clearOrdersErr }

func (s *stubAPI) ClearPrices(context.Context) error {
	s.clearPricesCalls++
	return nil
}

func (s *stubAPI) ApproveOrder(_ context.Context, id int64, _ []domain.ApproveItemInput) (domain.OrderDetail, error) {
	return s.orders[id], nil
}
