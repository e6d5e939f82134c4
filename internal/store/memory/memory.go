package memory

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"marketbaza/internal/domain"
	"marketbaza/internal/store"
)

type Store struct {
	mu            sync.RWMutex
	markets       map[int64]domain.Market
	products      map[int64]domain.Product
	orders        map[int64]*domain.OrderDetail
	drafts        map[int64][]domain.DraftOrderLine
	prices        domain.PriceSheet
	marketTotals  map[int64]domain.MarketTotalReceived
	transactions  []domain.MarketTransaction
	usersByID     map[int64]domain.UserAccount
	nextProductID int64
	nextOrderID   int64
	nextItemID    int64
	nextTxID      int64
	nextUserID    int64
}

func New() *Store {
	return &Store{
		markets:       make(map[int64]domain.Market),
		products:      make(map[int64]domain.Product),
		orders:        make(map[int64]*domain.OrderDetail),
		drafts:        make(map[int64][]domain.DraftOrderLine),
		marketTotals:  make(map[int64]domain.MarketTotalReceived),
		usersByID:     make(map[int64]domain.UserAccount),
		nextProductID: 1,
		nextOrderID:   1,
		nextItemID:    1,
		nextTxID:      1,
		nextUserID:    1,
	}
}

// NewSeeded returns a store with three markets, a small product catalog and
// one account per role. Passwords come from SEED_ADMIN_PASSWORD,
// SEED_BAZA_PASSWORD and SEED_MARKET_PASSWORD; dev defaults apply otherwise.
func NewSeeded() *Store {
	s := New()
	for i, name := range []string{"Market 1", "Market 2", "Market 3"} {
		id := int64(i + 1)
		s.markets[id] = domain.Market{ID: id, Name: name}
	}
	for _, name := range []string{"Pomidor", "Xiyar", "Kartof", "Soğan", "Alma"} {
		s.products[s.nextProductID] = domain.Product{ID: s.nextProductID, Name: name}
		s.nextProductID++
	}

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	bazaPwd := envOr("SEED_BAZA_PASSWORD", "baza123")
	marketPwd := envOr("SEED_MARKET_PASSWORD", "market123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_BAZA_PASSWORD") == "" || os.Getenv("SEED_MARKET_PASSWORD") == "" {
		slog.Warn("using default dev credentials; set SEED_*_PASSWORD to override", "component", "memory-store")
	}

	marketOne := int64(1)
	for _, u := range []struct {
		name     string
		email    string
		password string
		role     string
		marketID *int64
	}{
		{"Admin", "admin@marketbaza.local", adminPwd, domain.RoleAdmin, nil},
		{"Baza", "baza@marketbaza.local", bazaPwd, domain.RoleBaza, nil},
		{"Market 1", "market1@marketbaza.local", marketPwd, domain.RoleMarket, &marketOne},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			panic("memory: hash seed password: " + err.Error())
		}
		_, _ = s.CreateUser(context.Background(), domain.UserAccount{
			User: domain.User{
				Name:     u.name,
				Email:    u.email,
				Role:     u.role,
				MarketID: u.marketID,
			},
			PasswordHash: string(hash),
			Active:       true,
		})
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// AddMarket registers a market; tests and seed tooling use it since markets
// have no public create endpoint.
func (s *Store) AddMarket(id int64, name string) domain.Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := domain.Market{ID: id, Name: name}
	s.markets[id] = m
	return m
}

func (s *Store) ListMarkets(_ context.Context) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetMarket(_ context.Context, id int64) (*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateProduct(_ context.Context, name string) (*domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.products {
		if strings.EqualFold(p.Name, name) {
			return nil, store.ErrDuplicate
		}
	}
	p := domain.Product{ID: s.nextProductID, Name: name}
	s.products[p.ID] = p
	s.nextProductID++
	return &p, nil
}

func (s *Store) CreateOrder(_ context.Context, marketID int64, items []domain.OrderItemInput) (*domain.OrderDetail, error) {
	if len(items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[marketID]; !ok {
		return nil, store.ErrNotFound
	}

	detail := &domain.OrderDetail{
		Order: domain.Order{
			ID:        s.nextOrderID,
			MarketID:  marketID,
			Status:    domain.OrderStatusPending,
			CreatedAt: time.Now().UTC(),
		},
		Items: make([]domain.OrderItem, 0, len(items)),
	}
	for _, item := range items {
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, store.ErrNotFound
		}
		detail.Items = append(detail.Items, domain.OrderItem{
			ID:                s.nextItemID,
			ProductID:         item.ProductID,
			RequestedQuantity: item.Quantity,
			Price:             item.Price,
		})
		s.nextItemID++
	}
	s.orders[detail.Order.ID] = detail
	s.nextOrderID++

	return cloneOrder(detail), nil
}

func (s *Store) ListOrdersByStatus(_ context.Context, status string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if status != "" && o.Order.Status != status {
			continue
		}
		out = append(out, o.Order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetOrder(_ context.Context, id int64) (*domain.OrderDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) ApproveOrder(_ context.Context, id int64, items []domain.ApproveItemInput) (*domain.OrderDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	byProduct := make(map[int64]domain.ApproveItemInput, len(items))
	for _, item := range items {
		byProduct[item.ProductID] = item
	}
	for i := range o.Items {
		if in, ok := byProduct[o.Items[i].ProductID]; ok {
			o.Items[i].Price = in.Price
			o.Items[i].ReceivedQuantity = in.ReceivedQuantity
		}
	}
	o.Order.Status = domain.OrderStatusApproved
	return cloneOrder(o), nil
}

func (s *Store) DeleteAllOrders(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.orders)
	s.orders = make(map[int64]*domain.OrderDetail)
	return n, nil
}

func (s *Store) ReplaceDraft(_ context.Context, marketID int64, lines []domain.DraftOrderLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[marketID]; !ok {
		return store.ErrNotFound
	}
	copied := make([]domain.DraftOrderLine, 0, len(lines))
	for _, line := range lines {
		line.MarketID = marketID
		copied = append(copied, line)
	}
	s.drafts[marketID] = copied
	return nil
}

func (s *Store) ListDraft(_ context.Context, marketID int64) ([]domain.DraftOrderLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := s.drafts[marketID]
	out := make([]domain.DraftOrderLine, len(lines))
	copy(out, lines)
	return out, nil
}

func (s *Store) DeleteDraft(_ context.Context, marketID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.drafts, marketID)
	return nil
}

func (s *Store) ReplacePrices(_ context.Context, sheet domain.PriceSheet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prices := make([]domain.PriceEntry, len(sheet.Prices))
	copy(prices, sheet.Prices)
	now := time.Now().UTC()
	s.prices = domain.PriceSheet{Prices: prices, TotalAmount: sheet.TotalAmount, SavedAt: &now}
	return nil
}

func (s *Store) GetPrices(_ context.Context) (domain.PriceSheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prices := make([]domain.PriceEntry, len(s.prices.Prices))
	copy(prices, s.prices.Prices)
	return domain.PriceSheet{Prices: prices, TotalAmount: s.prices.TotalAmount, SavedAt: s.prices.SavedAt}, nil
}

func (s *Store) DeletePrices(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prices = domain.PriceSheet{}
	return nil
}

func (s *Store) UpsertMarketTotal(_ context.Context, total domain.MarketTotalReceived) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[total.MarketID]; !ok {
		return store.ErrNotFound
	}
	if total.UpdatedAt.IsZero() {
		total.UpdatedAt = time.Now().UTC()
	}
	s.marketTotals[total.MarketID] = total
	return nil
}

func (s *Store) GetMarketTotal(_ context.Context, marketID int64) (*domain.MarketTotalReceived, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total, ok := s.marketTotals[marketID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &total, nil
}

func (s *Store) CreateMarketTransaction(_ context.Context, tx domain.MarketTransaction) (*domain.MarketTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[tx.MarketID]; !ok {
		return nil, store.ErrNotFound
	}
	tx.ID = s.nextTxID
	s.nextTxID++
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	s.transactions = append(s.transactions, tx)
	saved := tx
	return &saved, nil
}

func (s *Store) ListMarketTransactionsByDate(_ context.Context, date string) ([]domain.MarketTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.MarketTransaction, 0)
	for _, tx := range s.transactions {
		if tx.Date == date {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.usersByID {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.usersByID {
		if u.Email == user.Email {
			return nil, store.ErrDuplicate
		}
	}
	user.ID = s.nextUserID
	s.nextUserID++
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByID[user.ID] = user
	saved := user
	return &saved, nil
}

func cloneOrder(o *domain.OrderDetail) *domain.OrderDetail {
	items := make([]domain.OrderItem, len(o.Items))
	copy(items, o.Items)
	return &domain.OrderDetail{Order: o.Order, Items: items}
}
