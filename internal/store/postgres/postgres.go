package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"marketbaza/internal/domain"
	"marketbaza/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM markets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	markets := make([]domain.Market, 0, 16)
	for rows.Next() {
		var m domain.Market
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

func (s *Store) GetMarket(ctx context.Context, id int64) (*domain.Market, error) {
	var m domain.Market
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM markets WHERE id = $1`, id).Scan(&m.ID, &m.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, name string) (*domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, store.ErrInvalidInput
	}

	p := domain.Product{Name: name}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, created_at)
		VALUES ($1, now())
		RETURNING id
	`, name).Scan(&p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateOrder(ctx context.Context, marketID int64, items []domain.OrderItemInput) (*domain.OrderDetail, error) {
	if marketID < 1 || len(items) == 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	detail := domain.OrderDetail{Order: domain.Order{MarketID: marketID, Status: domain.OrderStatusPending}}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (market_id, status, created_at)
		VALUES ($1, $2, now())
		RETURNING id, created_at
	`, marketID, detail.Order.Status).Scan(&detail.Order.ID, &detail.Order.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	detail.Items = make([]domain.OrderItem, 0, len(items))
	for _, in := range items {
		item := domain.OrderItem{ProductID: in.ProductID, RequestedQuantity: in.Quantity, Price: in.Price}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_id, requested_quantity, price)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, detail.Order.ID, in.ProductID, in.Quantity, in.Price).Scan(&item.ID)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		detail.Items = append(detail.Items, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (s *Store) ListOrdersByStatus(ctx context.Context, status string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, market_id, status, created_at
		FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY id
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 32)
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.MarketID, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*domain.OrderDetail, error) {
	return getOrder(ctx, s.db, id)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getOrder(ctx context.Context, q queryer, id int64) (*domain.OrderDetail, error) {
	var detail domain.OrderDetail
	err := q.QueryRowContext(ctx, `
		SELECT id, market_id, status, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&detail.Order.ID, &detail.Order.MarketID, &detail.Order.Status, &detail.Order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, requested_quantity::float8, received_quantity::float8, price::float8
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	detail.Items = make([]domain.OrderItem, 0, 16)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.RequestedQuantity, &item.ReceivedQuantity, &item.Price); err != nil {
			return nil, err
		}
		detail.Items = append(detail.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (s *Store) ApproveOrder(ctx context.Context, id int64, items []domain.ApproveItemInput) (*domain.OrderDetail, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, domain.OrderStatusApproved)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}

	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			UPDATE order_items
			SET price = $3, received_quantity = $4
			WHERE order_id = $1 AND product_id = $2
		`, id, item.ProductID, item.Price, item.ReceivedQuantity); err != nil {
			return nil, err
		}
	}

	detail, err := getOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Store) DeleteAllOrders(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders`)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) ReplaceDraft(ctx context.Context, marketID int64, lines []domain.DraftOrderLine) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM draft_orders WHERE market_id = $1`, marketID); err != nil {
		return err
	}
	for _, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO draft_orders (market_id, product_id, quantity, received_quantity, price, total)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (market_id, product_id)
			DO UPDATE SET quantity = EXCLUDED.quantity, received_quantity = EXCLUDED.received_quantity,
				price = EXCLUDED.price, total = EXCLUDED.total
		`, marketID, line.ProductID, line.Quantity, line.ReceivedQuantity, line.Price, line.Total)
		if err != nil {
			if isForeignKeyViolation(err) {
				return store.ErrNotFound
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListDraft(ctx context.Context, marketID int64) ([]domain.DraftOrderLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, product_id, quantity::float8, received_quantity::float8, price::float8, total::float8
		FROM draft_orders
		WHERE market_id = $1
		ORDER BY product_id
	`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.DraftOrderLine, 0, 64)
	for rows.Next() {
		var l domain.DraftOrderLine
		if err := rows.Scan(&l.MarketID, &l.ProductID, &l.Quantity, &l.ReceivedQuantity, &l.Price, &l.Total); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *Store) DeleteDraft(ctx context.Context, marketID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM draft_orders WHERE market_id = $1`, marketID)
	return err
}

func (s *Store) ReplacePrices(ctx context.Context, sheet domain.PriceSheet) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM baza_prices`); err != nil {
		return err
	}
	for _, p := range sheet.Prices {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO baza_prices (product_id, price, total, grand_total)
			VALUES ($1, $2, $3, $4)
		`, p.ProductID, p.Price, p.Total, p.GrandTotal)
		if err != nil {
			if isForeignKeyViolation(err) {
				return store.ErrNotFound
			}
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO baza_price_sheet (id, total_amount, saved_at)
		VALUES (1, $1, now())
		ON CONFLICT (id)
		DO UPDATE SET total_amount = EXCLUDED.total_amount, saved_at = EXCLUDED.saved_at
	`, sheet.TotalAmount)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetPrices(ctx context.Context) (domain.PriceSheet, error) {
	sheet := domain.PriceSheet{Prices: make([]domain.PriceEntry, 0, 64)}

	var savedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT total_amount::float8, saved_at FROM baza_price_sheet WHERE id = 1
	`).Scan(&sheet.TotalAmount, &savedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return domain.PriceSheet{}, err
	default:
		sheet.SavedAt = &savedAt
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, price::float8, total::float8, grand_total::float8
		FROM baza_prices
		ORDER BY product_id
	`)
	if err != nil {
		return domain.PriceSheet{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.PriceEntry
		if err := rows.Scan(&p.ProductID, &p.Price, &p.Total, &p.GrandTotal); err != nil {
			return domain.PriceSheet{}, err
		}
		sheet.Prices = append(sheet.Prices, p)
	}
	return sheet, rows.Err()
}

func (s *Store) DeletePrices(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM baza_prices`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM baza_price_sheet`); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) UpsertMarketTotal(ctx context.Context, total domain.MarketTotalReceived) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_totals (market_id, total_amount, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (market_id)
		DO UPDATE SET total_amount = EXCLUDED.total_amount, updated_at = EXCLUDED.updated_at
	`, total.MarketID, total.TotalAmount)
	if err != nil && isForeignKeyViolation(err) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) GetMarketTotal(ctx context.Context, marketID int64) (*domain.MarketTotalReceived, error) {
	var t domain.MarketTotalReceived
	err := s.db.QueryRowContext(ctx, `
		SELECT market_id, total_amount::float8, updated_at
		FROM market_totals
		WHERE market_id = $1
	`, marketID).Scan(&t.MarketID, &t.TotalAmount, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateMarketTransaction(ctx context.Context, t domain.MarketTransaction) (*domain.MarketTransaction, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO market_transactions (
			market_id, date, total_received, damaged_goods, cash_register,
			cash, salary, expenses, difference, remainder, created_at
		)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9, $10, now())
		RETURNING id, created_at
	`, t.MarketID, t.Date, t.TotalReceived, t.DamagedGoods, t.CashRegister,
		t.Cash, t.Salary, t.Expenses, t.Difference, t.Remainder).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListMarketTransactionsByDate(ctx context.Context, date string) ([]domain.MarketTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, market_id, to_char(date, 'YYYY-MM-DD'), total_received::float8, damaged_goods::float8,
			cash_register::float8, cash::float8, salary::float8, expenses::float8,
			difference::float8, remainder::float8, created_at
		FROM market_transactions
		WHERE date = $1::date
		ORDER BY market_id, id
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.MarketTransaction, 0, 16)
	for rows.Next() {
		var t domain.MarketTransaction
		if err := rows.Scan(&t.ID, &t.MarketID, &t.Date, &t.TotalReceived, &t.DamagedGoods,
			&t.CashRegister, &t.Cash, &t.Salary, &t.Expenses, &t.Difference, &t.Remainder, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	return s.getUser(ctx, `WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.UserAccount, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*domain.UserAccount, error) {
	var (
		u        domain.UserAccount
		marketID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, market_id, active, created_at
		FROM users `+where, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &marketID, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if marketID.Valid {
		id := marketID.Int64
		u.MarketID = &id
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password_hash, role, market_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, created_at
	`, user.Name, user.Email, user.PasswordHash, user.Role, user.MarketID, user.Active).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
