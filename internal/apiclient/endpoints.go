package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"marketbaza/internal/domain"
)

// Login authenticates and stores the token and profile in the session.
func (c *Client) Login(ctx context.Context, email, password string) (domain.LoginResponse, error) {
	var resp domain.LoginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", domain.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if resp.Token != "" && c.session != nil {
		if err := c.session.Save(ctx, resp.Token, resp.User); err != nil {
			return domain.LoginResponse{}, fmt.Errorf("persist session: %w", err)
		}
	}
	return resp, nil
}

// Logout tells the service and then clears the session. A failed server
// call is logged and does not keep the session alive.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
		c.logger.WarnContext(ctx, "logout request failed", "error", err)
	}
	if c.session == nil {
		return nil
	}
	return c.session.Clear(ctx)
}

func (c *Client) Profile(ctx context.Context) (domain.User, error) {
	var user domain.User
	err := c.do(ctx, http.MethodGet, "/auth/profile", nil, &user)
	return user, err
}

func (c *Client) Markets(ctx context.Context) ([]domain.Market, error) {
	var markets []domain.Market
	err := c.do(ctx, http.MethodGet, "/market", nil, &markets)
	return markets, err
}

func (c *Client) Products(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	err := c.do(ctx, http.MethodGet, "/products", nil, &products)
	return products, err
}

func (c *Client) CreateProduct(ctx context.Context, name string) (domain.Product, error) {
	var product domain.Product
	err := c.do(ctx, http.MethodPost, "/products", domain.ProductCreateRequest{Name: name}, &product)
	return product, err
}

func (c *Client) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.OrderDetail, error) {
	var detail domain.OrderDetail
	err := c.do(ctx, http.MethodPost, "/orders", req, &detail)
	return detail, err
}

func (c *Client) SaveDraft(ctx context.Context, req domain.DraftSaveRequest) error {
	return c.do(ctx, http.MethodPost, "/draft-orders", req, nil)
}

func (c *Client) DraftByMarket(ctx context.Context, marketID int64) ([]domain.DraftOrderLine, error) {
	var lines []domain.DraftOrderLine
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/draft-orders/market/%d", marketID), nil, &lines)
	return lines, err
}

func (c *Client) ClearDraft(ctx context.Context, marketID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/draft-orders/market/%d", marketID), nil, nil)
}

func (c *Client) PendingOrders(ctx context.Context) ([]domain.Order, error) {
	var orders []domain.Order
	err := c.do(ctx, http.MethodGet, "/baza/orders", nil, &orders)
	return orders, err
}

func (c *Client) Order(ctx context.Context, id int64) (domain.OrderDetail, error) {
	var detail domain.OrderDetail
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/baza/orders/%d", id), nil, &detail)
	return detail, err
}

func (c *Client) ApproveOrder(ctx context.Context, id int64, items []domain.ApproveItemInput) (domain.OrderDetail, error) {
	var detail domain.OrderDetail
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/baza/approve/%d", id), domain.ApproveOrderRequest{Items: items}, &detail)
	return detail, err
}

func (c *Client) ClearOrders(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/baza/clear-orders", nil, nil)
}

func (c *Client) SavePrices(ctx context.Context, req domain.PriceSaveRequest) error {
	return c.do(ctx, http.MethodPost, "/baza/prices", req, nil)
}

func (c *Client) Prices(ctx context.Context) (domain.PriceSheet, error) {
	var sheet domain.PriceSheet
	err := c.do(ctx, http.MethodGet, "/baza/prices", nil, &sheet)
	return sheet, err
}

func (c *Client) ClearPrices(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/baza/clear-prices", nil, nil)
}

func (c *Client) SaveMarketTotal(ctx context.Context, req domain.MarketTotalRequest) error {
	return c.do(ctx, http.MethodPost, "/market-total", req, nil)
}

func (c *Client) MarketTotal(ctx context.Context, marketID int64) (domain.MarketTotalReceived, error) {
	var total domain.MarketTotalReceived
	q := url.Values{"marketId": []string{fmt.Sprint(marketID)}}
	err := c.do(ctx, http.MethodGet, "/market-total?"+q.Encode(), nil, &total)
	return total, err
}

func (c *Client) CreateMarketTransaction(ctx context.Context, req domain.MarketTransactionRequest) (domain.MarketTransaction, error) {
	var created domain.MarketTransaction
	err := c.do(ctx, http.MethodPost, "/market-transactions", req, &created)
	return created, err
}

func (c *Client) MarketTransactionsByDate(ctx context.Context, date string) ([]domain.MarketTransaction, error) {
	var txs []domain.MarketTransaction
	err := c.do(ctx, http.MethodGet, "/market-transactions/date/"+url.PathEscape(date), nil, &txs)
	return txs, err
}
