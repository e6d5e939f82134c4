package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"marketbaza/internal/domain"
	"marketbaza/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	validate *validator.Validate
	logger   *slog.Logger
}

func New(repo store.Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "service"),
	}
}

func (s *Service) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	return s.repo.ListMarkets(ctx)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, fmt.Errorf("%w: admin role required", store.ErrForbidden)
	}

	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, req.Name)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, "name", created.Name)
	return *created, nil
}

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.OrderDetail, error) {
	if err := s.check(req); err != nil {
		return domain.OrderDetail{}, err
	}
	if err := s.authorizeMarket(ctx, req.MarketID); err != nil {
		return domain.OrderDetail{}, err
	}

	items := make([]domain.OrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		item.Quantity = quantity(item.Quantity)
		item.Price = money(item.Price)
		items = append(items, item)
	}

	detail, err := s.repo.CreateOrder(ctx, req.MarketID, items)
	if err != nil {
		return domain.OrderDetail{}, err
	}

	s.logAudit(ctx, "order_create", "order", detail.Order.ID, "market_id", req.MarketID, "items", len(detail.Items))
	return *detail, nil
}

// ListPendingOrders returns orders that have not been approved. Approved
// orders stay in storage until the depot clears them but no longer count
// toward the aggregate.
func (s *Service) ListPendingOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repo.ListOrdersByStatus(ctx, domain.OrderStatusPending)
}

func (s *Service) GetOrder(ctx context.Context, id int64) (domain.OrderDetail, error) {
	if id < 1 {
		return domain.OrderDetail{}, fmt.Errorf("%w: order id must be positive", store.ErrInvalidInput)
	}
	detail, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.OrderDetail{}, err
	}
	return *detail, nil
}

func (s *Service) ApproveOrder(ctx context.Context, id int64, req domain.ApproveOrderRequest) (domain.OrderDetail, error) {
	if id < 1 {
		return domain.OrderDetail{}, fmt.Errorf("%w: order id must be positive", store.ErrInvalidInput)
	}
	if err := s.check(req); err != nil {
		return domain.OrderDetail{}, err
	}

	items := make([]domain.ApproveItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		item.Price = money(item.Price)
		item.ReceivedQuantity = quantity(item.ReceivedQuantity)
		items = append(items, item)
	}

	detail, err := s.repo.ApproveOrder(ctx, id, items)
	if err != nil {
		return domain.OrderDetail{}, err
	}

	s.logAudit(ctx, "order_approve", "order", id, "items", len(req.Items))
	return *detail, nil
}

func (s *Service) ClearOrders(ctx context.Context) (int, error) {
	removed, err := s.repo.DeleteAllOrders(ctx)
	if err != nil {
		return 0, err
	}
	s.logAudit(ctx, "orders_clear", "order", 0, "removed", removed)
	return removed, nil
}

func (s *Service) SaveDraft(ctx context.Context, req domain.DraftSaveRequest) error {
	if err := s.check(req); err != nil {
		return err
	}
	if err := s.authorizeMarket(ctx, req.MarketID); err != nil {
		return err
	}

	lines := make([]domain.DraftOrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, domain.DraftOrderLine{
			MarketID:         req.MarketID,
			ProductID:        item.ProductID,
			Quantity:         quantity(item.Quantity),
			ReceivedQuantity: quantity(item.ReceivedQuantity),
			Price:            money(item.Price),
			Total:            money(item.Total),
		})
	}
	if err := s.repo.ReplaceDraft(ctx, req.MarketID, lines); err != nil {
		return err
	}

	s.logAudit(ctx, "draft_save", "market", req.MarketID, "lines", len(lines))
	return nil
}

func (s *Service) GetDraft(ctx context.Context, marketID int64) ([]domain.DraftOrderLine, error) {
	if marketID < 1 {
		return nil, fmt.Errorf("%w: market id must be positive", store.ErrInvalidInput)
	}
	if err := s.authorizeMarket(ctx, marketID); err != nil {
		return nil, err
	}
	return s.repo.ListDraft(ctx, marketID)
}

func (s *Service) DeleteDraft(ctx context.Context, marketID int64) error {
	if marketID < 1 {
		return fmt.Errorf("%w: market id must be positive", store.ErrInvalidInput)
	}
	if err := s.authorizeMarket(ctx, marketID); err != nil {
		return err
	}
	if err := s.repo.DeleteDraft(ctx, marketID); err != nil {
		return err
	}
	s.logAudit(ctx, "draft_delete", "market", marketID)
	return nil
}

func (s *Service) SavePrices(ctx context.Context, req domain.PriceSaveRequest) error {
	if err := s.check(req); err != nil {
		return err
	}

	sheet := domain.PriceSheet{
		Prices:      make([]domain.PriceEntry, 0, len(req.Items)),
		TotalAmount: money(req.TotalAmount),
	}
	seen := make(map[int64]struct{}, len(req.Items))
	for _, item := range req.Items {
		if _, dup := seen[item.ProductID]; dup {
			return fmt.Errorf("%w: product %d priced twice", store.ErrInvalidInput, item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
		sheet.Prices = append(sheet.Prices, domain.PriceEntry{
			ProductID:  item.ProductID,
			Price:      money(item.Price),
			Total:      quantity(item.Total),
			GrandTotal: money(item.GrandTotal),
		})
	}
	if err := s.repo.ReplacePrices(ctx, sheet); err != nil {
		return err
	}

	s.logAudit(ctx, "prices_save", "price_sheet", 1, "entries", len(sheet.Prices), "total_amount", sheet.TotalAmount)
	return nil
}

func (s *Service) GetPrices(ctx context.Context) (domain.PriceSheet, error) {
	return s.repo.GetPrices(ctx)
}

func (s *Service) ClearPrices(ctx context.Context) error {
	if err := s.repo.DeletePrices(ctx); err != nil {
		return err
	}
	s.logAudit(ctx, "prices_clear", "price_sheet", 1)
	return nil
}

func (s *Service) SaveMarketTotal(ctx context.Context, req domain.MarketTotalRequest) error {
	if err := s.check(req); err != nil {
		return err
	}
	if err := s.authorizeMarket(ctx, req.MarketID); err != nil {
		return err
	}
	return s.repo.UpsertMarketTotal(ctx, domain.MarketTotalReceived{
		MarketID:    req.MarketID,
		TotalAmount: money(req.TotalAmount),
	})
}

// GetMarketTotal returns a zero total for markets that never saved a draft.
func (s *Service) GetMarketTotal(ctx context.Context, marketID int64) (domain.MarketTotalReceived, error) {
	if marketID < 1 {
		return domain.MarketTotalReceived{}, fmt.Errorf("%w: marketId is required", store.ErrInvalidInput)
	}
	total, err := s.repo.GetMarketTotal(ctx, marketID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.MarketTotalReceived{MarketID: marketID}, nil
	}
	if err != nil {
		return domain.MarketTotalReceived{}, err
	}
	return *total, nil
}

func (s *Service) CreateMarketTransaction(ctx context.Context, req domain.MarketTransactionRequest) (domain.MarketTransaction, error) {
	if err := s.check(req); err != nil {
		return domain.MarketTransaction{}, err
	}
	if err := s.authorizeMarket(ctx, req.MarketID); err != nil {
		return domain.MarketTransaction{}, err
	}

	created, err := s.repo.CreateMarketTransaction(ctx, domain.MarketTransaction{
		MarketID:      req.MarketID,
		Date:          req.Date,
		TotalReceived: money(req.TotalReceived),
		DamagedGoods:  money(req.DamagedGoods),
		CashRegister:  money(req.CashRegister),
		Cash:          money(req.Cash),
		Salary:        money(req.Salary),
		Expenses:      money(req.Expenses),
		Difference:    money(req.Difference),
		Remainder:     money(req.Remainder),
	})
	if err != nil {
		return domain.MarketTransaction{}, err
	}

	s.logAudit(ctx, "market_transaction_create", "market", req.MarketID, "date", req.Date, "remainder", req.Remainder)
	return *created, nil
}

func (s *Service) ListMarketTransactionsByDate(ctx context.Context, date string) ([]domain.MarketTransaction, error) {
	if err := s.validate.Var(date, "required,datetime=2006-01-02"); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
	}
	return s.repo.ListMarketTransactionsByDate(ctx, date)
}

// authorizeMarket lets market operators touch only their own market. Other
// roles pass; route-level role checks already narrowed who gets here.
func (s *Service) authorizeMarket(ctx context.Context, marketID int64) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: no actor in context", store.ErrForbidden)
	}
	if actor.Role == domain.RoleMarket && actor.MarketID != marketID {
		return fmt.Errorf("%w: market %d belongs to another operator", store.ErrForbidden, marketID)
	}
	return nil
}

func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: %s failed on %s", store.ErrInvalidInput, fe.Namespace(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
}

func (s *Service) logAudit(ctx context.Context, action, entity string, entityID int64, attrs ...any) {
	actor, _ := ActorFromContext(ctx)
	args := append([]any{
		"action", action,
		"entity", entity,
		"entity_id", entityID,
		"actor", actor.Email,
		"role", actor.Role,
	}, attrs...)
	s.logger.InfoContext(ctx, "audit", args...)
}

// money and quantity round to the scale the postgres schema stores
// (NUMERIC(14,2) and NUMERIC(14,3)) so every backend returns the same value.
func money(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func quantity(v float64) float64 {
	return decimal.NewFromFloat(v).Round(3).InexactFloat64()
}
