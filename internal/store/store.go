package store

import (
	"context"
	"errors"

	"marketbaza/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrForbidden    = errors.New("forbidden")
)

type Repository interface {
	ListMarkets(ctx context.Context) ([]domain.Market, error)
	GetMarket(ctx context.Context, id int64) (*domain.Market, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, name string) (*domain.Product, error)

	CreateOrder(ctx context.Context, marketID int64, items []domain.OrderItemInput) (*domain.OrderDetail, error)
	ListOrdersByStatus(ctx context.Context, status string) ([]domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.OrderDetail, error)
	ApproveOrder(ctx context.Context, id int64, items []domain.ApproveItemInput) (*domain.OrderDetail, error)
	DeleteAllOrders(ctx context.Context) (int, error)

	ReplaceDraft(ctx context.Context, marketID int64, lines []domain.DraftOrderLine) error
	ListDraft(ctx context.Context, marketID int64) ([]domain.DraftOrderLine, error)
	DeleteDraft(ctx context.Context, marketID int64) error

	ReplacePrices(ctx context.Context, sheet domain.PriceSheet) error
	GetPrices(ctx context.Context) (domain.PriceSheet, error)
	DeletePrices(ctx context.Context) error

	UpsertMarketTotal(ctx context.Context, total domain.MarketTotalReceived) error
	GetMarketTotal(ctx context.Context, marketID int64) (*domain.MarketTotalReceived, error)

	CreateMarketTransaction(ctx context.Context, tx domain.MarketTransaction) (*domain.MarketTransaction, error)
	ListMarketTransactionsByDate(ctx context.Context, date string) ([]domain.MarketTransaction, error)

	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id int64) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
}
