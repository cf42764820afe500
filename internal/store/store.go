package store

import (
	"context"
	"errors"
	"time"

	"tilestock/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("already exists")
	ErrInvalidInput = errors.New("invalid input")
)

// BillOutcome describes what a billing transaction actually did. Requested
// lines that were skipped by the partial-fulfillment policy simply do not
// appear in Bill.Items; SubtotalPaise is the sum of the lines that were
// fulfilled.
type BillOutcome struct {
	Bill          domain.Bill
	SubtotalPaise int64
}

// Repository is the typed persistence interface. Both implementations
// (postgres and the embedded sqlite fallback) must run CreateBill as a
// single database transaction: the stock decrements and the final bill
// total commit together or not at all.
type Repository interface {
	// Users.
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUser(ctx context.Context, user domain.User) (*domain.User, error)
	DeleteUser(ctx context.Context, id int64) error
	CountUsers(ctx context.Context) (int, error)

	// Tiles.
	ListTiles(ctx context.Context, search string) ([]domain.Tile, error)
	GetTile(ctx context.Context, id int64) (*domain.Tile, error)
	CreateTile(ctx context.Context, tile domain.Tile) (*domain.Tile, error)
	UpdateTile(ctx context.Context, tile domain.Tile) (*domain.Tile, error)
	DeleteTile(ctx context.Context, id int64) error
	IncreaseTileQuantity(ctx context.Context, id int64, by int) error

	// Bills.
	CreateBill(ctx context.Context, bill domain.Bill, requested map[int64]int) (*BillOutcome, error)
	GetBill(ctx context.Context, id int64) (*domain.Bill, error)
	ListBills(ctx context.Context) ([]domain.Bill, error)
	ListBillsOnDate(ctx context.Context, day time.Time) ([]domain.Bill, error)
	UpdateBill(ctx context.Context, id int64, req domain.BillUpdateRequest) (*domain.Bill, error)
	DeleteBill(ctx context.Context, id int64) ([]domain.BillItem, error)
	SumBillTotals(ctx context.Context) (int64, error)
	SumBillTotalsOnDate(ctx context.Context, day time.Time) (int64, error)

	Close() error
}
