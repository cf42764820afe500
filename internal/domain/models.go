package domain

import "time"

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// ValidRole reports whether role is one of the two supported roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleStaff
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	CreatedBy    *int64    `json:"created_by,omitempty"`
}

type UserCreateRequest struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	Role            string
}

// UserUpdateRequest carries the admin edit form. Password is applied only
// when non-empty; Active false deactivates the account.
type UserUpdateRequest struct {
	Email           string
	Password        string
	ConfirmPassword string
	Role            string
	Active          bool
}

// Tile is a stock-keeping unit: one brand+size with a sale price and an
// on-hand quantity. BuyPricePaise is the cost price and is only shown to
// admins; it is optional because legacy rows never recorded it.
type Tile struct {
	ID            int64  `json:"id"`
	Brand         string `json:"brand"`
	Size          string `json:"size"`
	BuyPricePaise *int64 `json:"buy_price_paise,omitempty"`
	PricePaise    int64  `json:"price_paise"`
	Quantity      int    `json:"quantity"`
}

type TileRequest struct {
	Brand         string
	Size          string
	BuyPricePaise *int64
	PricePaise    int64
	Quantity      int
}

// Bill is a persisted sale. TotalPaise is computed once at creation as
// subtotal + round(subtotal*gst/100) - discount and is recomputed from the
// persisted item totals when an admin edits gst/discount. It is not floored
// at zero: a discount larger than subtotal+tax yields a negative total.
type Bill struct {
	ID             int64      `json:"id"`
	CustomerName   string     `json:"customer_name,omitempty"`
	CustomerMobile string     `json:"customer_mobile,omitempty"`
	TotalPaise     int64      `json:"total_paise"`
	GSTPercent     float64    `json:"gst_percent"`
	DiscountPaise  int64      `json:"discount_paise"`
	CreatedAt      time.Time  `json:"created_at"`
	Items          []BillItem `json:"items,omitempty"`
}

// BillItem snapshots the tile's name, size and price at sale time so the
// bill stays stable when the tile is later edited or deleted. TileID is kept
// only so an optional restock-on-delete policy can find the source tile; it
// is never consulted for pricing.
type BillItem struct {
	ID         int64  `json:"id"`
	BillID     int64  `json:"bill_id"`
	TileID     *int64 `json:"tile_id,omitempty"`
	TileName   string `json:"tile_name"`
	Size       string `json:"size"`
	PricePaise int64  `json:"price_paise"`
	Quantity   int    `json:"quantity"`
	TotalPaise int64  `json:"total_paise"`
}

// BillCreateRequest carries the checkout form. Quantities maps tile id to
// the requested quantity; tiles absent from the map are treated as zero.
type BillCreateRequest struct {
	CustomerName   string
	CustomerMobile string
	GSTPercent     float64
	DiscountPaise  int64
	Quantities     map[int64]int
}

type BillUpdateRequest struct {
	CustomerName   string
	CustomerMobile string
	GSTPercent     float64
	DiscountPaise  int64
}

// Actor is the authenticated identity threaded through request contexts.
type Actor struct {
	UserID    int64
	Username  string
	Role      string
	SessionID string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// SalesReport is the aggregate view for a single UTC day. Date is the
// YYYY-MM-DD day the report covers.
type SalesReport struct {
	Date       string `json:"date"`
	TotalPaise int64  `json:"total_paise"`
	Bills      []Bill `json:"bills"`
}
