package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"tilestock/internal/domain"
)

func TestBillingTransactionAgainstPostgres(t *testing.T) {
	databaseURL := os.Getenv("TILESTOCK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TILESTOCK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	brand := fmt.Sprintf("IT-Brand-%d", time.Now().UnixNano())
	tile, err := s.CreateTile(ctx, domain.Tile{
		Brand:      brand,
		Size:       "2x2",
		PricePaise: 10000,
		Quantity:   10,
	})
	if err != nil {
		t.Fatalf("create tile: %v", err)
	}

	var billID int64
	t.Cleanup(func() {
		if billID != 0 {
			_, _ = s.db.ExecContext(ctx, `DELETE FROM bill_items WHERE bill_id = $1`, billID)
			_, _ = s.db.ExecContext(ctx, `DELETE FROM bills WHERE id = $1`, billID)
		}
		_, _ = s.db.ExecContext(ctx, `DELETE FROM tiles WHERE id = $1`, tile.ID)
	})

	outcome, err := s.CreateBill(ctx, domain.Bill{
		CustomerName:  "Integration",
		GSTPercent:    18,
		DiscountPaise: 2000,
	}, map[int64]int{tile.ID: 5})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	billID = outcome.Bill.ID

	if outcome.SubtotalPaise != 50000 || outcome.Bill.TotalPaise != 57000 {
		t.Fatalf("subtotal=%d total=%d, want 50000/57000", outcome.SubtotalPaise, outcome.Bill.TotalPaise)
	}

	after, err := s.GetTile(ctx, tile.ID)
	if err != nil {
		t.Fatalf("get tile: %v", err)
	}
	if after.Quantity != 5 {
		t.Fatalf("stock = %d, want 5", after.Quantity)
	}

	fetched, err := s.GetBill(ctx, billID)
	if err != nil {
		t.Fatalf("get bill: %v", err)
	}
	if len(fetched.Items) != 1 || fetched.Items[0].TileName != brand {
		t.Fatalf("unexpected persisted items: %+v", fetched.Items)
	}
}
