package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"tilestock/internal/domain"
	"tilestock/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTile(t *testing.T, s *Store, brand, size string, pricePaise int64, qty int) domain.Tile {
	t.Helper()
	tile, err := s.CreateTile(context.Background(), domain.Tile{
		Brand:      brand,
		Size:       size,
		PricePaise: pricePaise,
		Quantity:   qty,
	})
	if err != nil {
		t.Fatalf("create tile: %v", err)
	}
	return *tile
}

func TestCreateBillComputesTotalsAndDecrementsStock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tile := seedTile(t, s, "Kajaria", "2x2", 10000, 10)

	outcome, err := s.CreateBill(ctx, domain.Bill{
		CustomerName:  "Ravi",
		GSTPercent:    18,
		DiscountPaise: 2000,
	}, map[int64]int{tile.ID: 5})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}

	if outcome.SubtotalPaise != 50000 {
		t.Fatalf("subtotal = %d, want 50000", outcome.SubtotalPaise)
	}
	if outcome.Bill.TotalPaise != 57000 {
		t.Fatalf("total = %d, want 57000", outcome.Bill.TotalPaise)
	}
	if len(outcome.Bill.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(outcome.Bill.Items))
	}
	item := outcome.Bill.Items[0]
	if item.TileName != "Kajaria" || item.Size != "2x2" || item.PricePaise != 10000 || item.Quantity != 5 {
		t.Fatalf("unexpected item snapshot: %+v", item)
	}

	after, err := s.GetTile(ctx, tile.ID)
	if err != nil {
		t.Fatalf("get tile: %v", err)
	}
	if after.Quantity != 5 {
		t.Fatalf("stock = %d, want 5", after.Quantity)
	}
}

func TestCreateBillSkipsUnsatisfiableLines(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scarce := seedTile(t, s, "Somany", "1x1", 5000, 2)
	plenty := seedTile(t, s, "Cera", "2x4", 8000, 20)

	outcome, err := s.CreateBill(ctx, domain.Bill{}, map[int64]int{
		scarce.ID: 3,  // over stock, skipped
		plenty.ID: 4,  // fulfilled
		9999:      1,  // unknown id, ignored
		scarce.ID - 1: -2, // non-positive, ignored
	})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}

	if len(outcome.Bill.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(outcome.Bill.Items))
	}
	if got := outcome.Bill.Items[0].TileName; got != "Cera" {
		t.Fatalf("fulfilled item = %q, want Cera", got)
	}
	if outcome.Bill.TotalPaise != 32000 {
		t.Fatalf("total = %d, want 32000", outcome.Bill.TotalPaise)
	}

	untouched, err := s.GetTile(ctx, scarce.ID)
	if err != nil {
		t.Fatalf("get tile: %v", err)
	}
	if untouched.Quantity != 2 {
		t.Fatalf("skipped line changed stock: %d", untouched.Quantity)
	}
}

func TestCreateBillEmptyRequestYieldsEmptyBill(t *testing.T) {
	s := newTestStore(t)
	seedTile(t, s, "Kajaria", "2x2", 10000, 10)

	outcome, err := s.CreateBill(context.Background(), domain.Bill{GSTPercent: 18}, nil)
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	if len(outcome.Bill.Items) != 0 || outcome.Bill.TotalPaise != 0 {
		t.Fatalf("expected empty zero bill, got %d items total %d", len(outcome.Bill.Items), outcome.Bill.TotalPaise)
	}
}

func TestCreateBillDiscountCanDriveTotalNegative(t *testing.T) {
	s := newTestStore(t)
	tile := seedTile(t, s, "Cera", "1x1", 1000, 5)

	outcome, err := s.CreateBill(context.Background(), domain.Bill{
		DiscountPaise: 10000,
	}, map[int64]int{tile.ID: 1})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	if outcome.Bill.TotalPaise != -9000 {
		t.Fatalf("total = %d, want -9000", outcome.Bill.TotalPaise)
	}
}

func TestUpdateBillRecomputesFromStoredItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tile := seedTile(t, s, "Kajaria", "2x2", 10000, 10)

	outcome, err := s.CreateBill(ctx, domain.Bill{GSTPercent: 18, DiscountPaise: 2000}, map[int64]int{tile.ID: 5})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}

	updated, err := s.UpdateBill(ctx, outcome.Bill.ID, domain.BillUpdateRequest{
		CustomerName: "Meena",
		GSTPercent:   0,
	})
	if err != nil {
		t.Fatalf("update bill: %v", err)
	}
	// Subtotal stays 50000; zero GST and zero discount now apply.
	if updated.TotalPaise != 50000 {
		t.Fatalf("total = %d, want 50000", updated.TotalPaise)
	}
	if updated.CustomerName != "Meena" {
		t.Fatalf("customer = %q, want Meena", updated.CustomerName)
	}
}

func TestDeleteBillReturnsItemsAndKeepsStock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tile := seedTile(t, s, "Somany", "2x2", 10000, 10)

	outcome, err := s.CreateBill(ctx, domain.Bill{}, map[int64]int{tile.ID: 4})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}

	items, err := s.DeleteBill(ctx, outcome.Bill.ID)
	if err != nil {
		t.Fatalf("delete bill: %v", err)
	}
	if len(items) != 1 || items[0].Quantity != 4 {
		t.Fatalf("unexpected removed items: %+v", items)
	}

	if _, err := s.GetBill(ctx, outcome.Bill.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("bill still readable after delete: %v", err)
	}

	// Stock is not restored by the store; the restock policy lives above.
	after, err := s.GetTile(ctx, tile.ID)
	if err != nil {
		t.Fatalf("get tile: %v", err)
	}
	if after.Quantity != 6 {
		t.Fatalf("stock = %d, want 6", after.Quantity)
	}
}

func TestTileSearchMatchesBrandAndSize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTile(t, s, "Kajaria", "2x2", 10000, 10)
	seedTile(t, s, "Somany", "2x4", 8000, 5)

	byBrand, err := s.ListTiles(ctx, "kaja")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(byBrand) != 1 || byBrand[0].Brand != "Kajaria" {
		t.Fatalf("brand search returned %+v", byBrand)
	}

	bySize, err := s.ListTiles(ctx, "2x4")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(bySize) != 1 || bySize[0].Brand != "Somany" {
		t.Fatalf("size search returned %+v", bySize)
	}

	all, err := s.ListTiles(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("list returned %d tiles", len(all))
	}
}

func TestDuplicateUsernameReturnsDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := domain.User{Username: "meena", PasswordHash: "x", Role: domain.RoleStaff, Active: true}
	if _, err := s.CreateUser(ctx, base); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := s.CreateUser(ctx, base); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("duplicate username error = %v, want ErrDuplicate", err)
	}
}

func TestDailySumsCoverOnlyTheDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tile := seedTile(t, s, "Cera", "1x1", 10000, 50)

	today := time.Now().UTC()
	yesterday := today.AddDate(0, 0, -1)

	if _, err := s.CreateBill(ctx, domain.Bill{CreatedAt: yesterday}, map[int64]int{tile.ID: 1}); err != nil {
		t.Fatalf("create old bill: %v", err)
	}
	if _, err := s.CreateBill(ctx, domain.Bill{CreatedAt: today}, map[int64]int{tile.ID: 2}); err != nil {
		t.Fatalf("create bill: %v", err)
	}

	daily, err := s.SumBillTotalsOnDate(ctx, today)
	if err != nil {
		t.Fatalf("sum daily: %v", err)
	}
	if daily != 20000 {
		t.Fatalf("daily sum = %d, want 20000", daily)
	}

	all, err := s.SumBillTotals(ctx)
	if err != nil {
		t.Fatalf("sum all: %v", err)
	}
	if all != 30000 {
		t.Fatalf("total sum = %d, want 30000", all)
	}

	bills, err := s.ListBillsOnDate(ctx, today)
	if err != nil {
		t.Fatalf("list daily: %v", err)
	}
	if len(bills) != 1 {
		t.Fatalf("daily bills = %d, want 1", len(bills))
	}
}
