package domain

import "time"

const (
	RoleAdmin  = "admin"
	RoleBaza   = "baza"
	RoleMarket = "market"
)

const (
	OrderStatusPending  = "pending"
	OrderStatusApproved = "approved"
)

type Product struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ProductCreateRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type Market struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	MarketID *int64 `json:"market_id,omitempty"`
}

// MarketRef returns the market a market operator works for. Accounts created
// before market_id existed used the user id as the market id.
func (u User) MarketRef() int64 {
	if u.MarketID != nil && *u.MarketID > 0 {
		return *u.MarketID
	}
	return u.ID
}

type UserAccount struct {
	User
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	User      User   `json:"user"`
	ExpiresAt string `json:"expires_at"`
}

type Actor struct {
	UserID   int64
	Email    string
	Role     string
	MarketID int64
}

type OrderItemInput struct {
	ProductID int64   `json:"productId" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"gt=0"`
	Price     float64 `json:"price" validate:"gte=0"`
}

type OrderCreateRequest struct {
	MarketID int64            `json:"marketId" validate:"required,gt=0"`
	Items    []OrderItemInput `json:"items" validate:"required,min=1,dive"`
}

type Order struct {
	ID        int64     `json:"id"`
	MarketID  int64     `json:"market_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type OrderItem struct {
	ID                int64   `json:"id"`
	ProductID         int64   `json:"product_id"`
	RequestedQuantity float64 `json:"requested_quantity"`
	ReceivedQuantity  float64 `json:"received_quantity"`
	Price             float64 `json:"price"`
}

// OrderDetail flattens the order header next to its items on the wire.
type OrderDetail struct {
	Order
	Items []OrderItem `json:"items"`
}

type ApproveItemInput struct {
	ProductID        int64   `json:"productId" validate:"required,gt=0"`
	Price            float64 `json:"price" validate:"gte=0"`
	ReceivedQuantity float64 `json:"receivedQuantity" validate:"gte=0"`
}

type ApproveOrderRequest struct {
	Items []ApproveItemInput `json:"items" validate:"dive"`
}

type DraftItemInput struct {
	ProductID        int64   `json:"productId" validate:"required,gt=0"`
	Quantity         float64 `json:"quantity" validate:"gte=0"`
	ReceivedQuantity float64 `json:"receivedQuantity" validate:"gte=0"`
	Price            float64 `json:"price" validate:"gte=0"`
	Total            float64 `json:"total" validate:"gte=0"`
}

type DraftSaveRequest struct {
	MarketID int64            `json:"marketId" validate:"required,gt=0"`
	Items    []DraftItemInput `json:"items" validate:"dive"`
}

type DraftOrderLine struct {
	MarketID         int64   `json:"market_id"`
	ProductID        int64   `json:"product_id"`
	Quantity         float64 `json:"quantity"`
	ReceivedQuantity float64 `json:"received_quantity"`
	Price            float64 `json:"price"`
	Total            float64 `json:"total"`
}

type PriceItemInput struct {
	ProductID  int64   `json:"productId" validate:"required,gt=0"`
	Price      float64 `json:"price" validate:"gt=0"`
	Total      float64 `json:"total" validate:"gte=0"`
	GrandTotal float64 `json:"grandTotal" validate:"gte=0"`
}

type PriceSaveRequest struct {
	Items       []PriceItemInput `json:"items" validate:"dive"`
	TotalAmount float64          `json:"totalAmount" validate:"gte=0"`
}

type PriceEntry struct {
	ProductID  int64   `json:"product_id"`
	Price      float64 `json:"price"`
	Total      float64 `json:"total"`
	GrandTotal float64 `json:"grand_total"`
}

type PriceSheet struct {
	Prices      []PriceEntry `json:"prices"`
	TotalAmount float64      `json:"total_amount"`
	SavedAt     *time.Time   `json:"saved_at,omitempty"`
}

type MarketTotalRequest struct {
	MarketID    int64   `json:"marketId" validate:"required,gt=0"`
	TotalAmount float64 `json:"totalAmount" validate:"gte=0"`
}

type MarketTotalReceived struct {
	MarketID    int64     `json:"market_id"`
	TotalAmount float64   `json:"total_amount"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type MarketTransactionRequest struct {
	MarketID      int64   `json:"marketId" validate:"required,gt=0"`
	Date          string  `json:"date" validate:"required,datetime=2006-01-02"`
	TotalReceived float64 `json:"total_received"`
	DamagedGoods  float64 `json:"damaged_goods"`
	CashRegister  float64 `json:"cash_register"`
	Cash          float64 `json:"cash"`
	Salary        float64 `json:"salary"`
	Expenses      float64 `json:"expenses"`
	Difference    float64 `json:"difference"`
	Remainder     float64 `json:"remainder"`
}

type MarketTransaction struct {
	ID            int64     `json:"id"`
	MarketID      int64     `json:"market_id"`
	Date          string    `json:"date"`
	TotalReceived float64   `json:"total_received"`
	DamagedGoods  float64   `json:"damaged_goods"`
	CashRegister  float64   `json:"cash_register"`
	Cash          float64   `json:"cash"`
	Salary        float64   `json:"salary"`
	Expenses      float64   `json:"expenses"`
	Difference    float64   `json:"difference"`
	Remainder     float64   `json:"remainder"`
	CreatedAt     time.Time `json:"created_at"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
