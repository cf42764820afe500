// Command migrate copies a legacy SQLite database into the PostgreSQL
// schema used by the server. Rows that already exist in the target are
// left untouched, so the copy can be re-run safely. Legacy monetary
// columns hold rupee floats and are converted to paise on the way in.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	pgstore "tilestock/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}

	source := flag.String("source", "database.db", "path to the legacy sqlite database")
	target := flag.String("target", os.Getenv("DATABASE_URL"), "postgres connection URL")
	flag.Parse()

	if *target == "" {
		log.Fatal("target postgres URL required (flag -target or DATABASE_URL)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	src, err := sqlx.ConnectContext(ctx, "sqlite", *source)
	if err != nil {
		log.Fatalf("open sqlite source: %v", err)
	}
	defer src.Close()

	// Opening the store ensures the target schema exists before copying.
	pg, err := pgstore.New(ctx, *target)
	if err != nil {
		log.Fatalf("open postgres target: %v", err)
	}
	defer pg.Close()
	dst := pg.DB()

	tx, err := dst.BeginTx(ctx, nil)
	if err != nil {
		log.Fatalf("begin target transaction: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := migrateUsers(ctx, src, tx); err != nil {
		log.Fatalf("migrate users: %v", err)
	}
	if err := migrateTiles(ctx, src, tx); err != nil {
		log.Fatalf("migrate tiles: %v", err)
	}
	if err := migrateBills(ctx, src, tx); err != nil {
		log.Fatalf("migrate bills: %v", err)
	}
	if err := migrateBillItems(ctx, src, tx); err != nil {
		log.Fatalf("migrate bill items: %v", err)
	}
	if err := resetSequences(ctx, tx); err != nil {
		log.Fatalf("reset sequences: %v", err)
	}

	if err := tx.Commit(); err != nil {
		log.Fatalf("commit: %v", err)
	}
	log.Println("migration completed")
}

// paise converts a legacy rupee float to integer paise.
func paise(rupees float64) int64 {
	return int64(math.Round(rupees * 100))
}

// parseLegacyTime handles the timestamp formats legacy rows were written
// with. Unparseable values fall back to the current time rather than
// aborting the copy.
func parseLegacyTime(raw sql.NullString) time.Time {
	if !raw.Valid || raw.String == "" {
		return time.Now().UTC()
	}
	layouts := []string{
		"2006-01-02 15:04:05.999999",
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
		time.RFC3339,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw.String); err == nil {
			return t.UTC()
		}
	}
	log.Printf("warning: unparseable timestamp %q, using current time", raw.String)
	return time.Now().UTC()
}

type legacyUser struct {
	ID        int64          `db:"id"`
	Username  string         `db:"username"`
	Email     sql.NullString `db:"email"`
	Password  string         `db:"password"`
	Role      string         `db:"role"`
	IsActive  bool           `db:"is_active"`
	CreatedAt sql.NullString `db:"created_at"`
	CreatedBy sql.NullInt64  `db:"created_by"`
}

func migrateUsers(ctx context.Context, src *sqlx.DB, tx *sql.Tx) error {
	var users []legacyUser
	if err := src.SelectContext(ctx, &users, `SELECT id, username, email, password, role, is_active, created_at, created_by FROM user`); err != nil {
		return err
	}

	migrated := 0
	for _, u := range users {
		// Legacy password hashes are copied verbatim; accounts keep
		// working only if the hash format is still understood, so
		// operators should reset passwords after migrating.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, username, email, password_hash, role, active, created_at, created_by)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (id) DO NOTHING
		`, u.ID, u.Username, nullString(u.Email), u.Password, u.Role, u.IsActive, parseLegacyTime(u.CreatedAt), nullInt(u.CreatedBy))
		if err != nil {
			log.Printf("warning: could not migrate user %q: %v", u.Username, err)
			continue
		}
		migrated++
	}
	log.Printf("migrated %d/%d users", migrated, len(users))
	return nil
}

type legacyTile struct {
	ID       int64           `db:"id"`
	Brand    string          `db:"brand"`
	Size     string          `db:"size"`
	BuyPrice sql.NullFloat64 `db:"buy_price"`
	Price    float64         `db:"price"`
	Quantity int             `db:"quantity"`
}

func migrateTiles(ctx context.Context, src *sqlx.DB, tx *sql.Tx) error {
	var tiles []legacyTile
	if err := src.SelectContext(ctx, &tiles, `SELECT id, brand, size, buy_price, price, quantity FROM tile`); err != nil {
		return err
	}

	migrated := 0
	for _, t := range tiles {
		var buyPaise any
		if t.BuyPrice.Valid {
			buyPaise = paise(t.BuyPrice.Float64)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tiles (id, brand, size, buy_price_paise, price_paise, quantity)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (id) DO NOTHING
		`, t.ID, t.Brand, t.Size, buyPaise, paise(t.Price), t.Quantity)
		if err != nil {
			log.Printf("warning: could not migrate tile %q: %v", t.Brand, err)
			continue
		}
		migrated++
	}
	log.Printf("migrated %d/%d tiles", migrated, len(tiles))
	return nil
}

type legacyBill struct {
	ID             int64          `db:"id"`
	CustomerName   sql.NullString `db:"customer_name"`
	CustomerMobile sql.NullString `db:"customer_mobile"`
	Total          float64        `db:"total"`
	GST            float64        `db:"gst"`
	Discount       float64        `db:"discount"`
	Date           sql.NullString `db:"date"`
}

func migrateBills(ctx context.Context, src *sqlx.DB, tx *sql.Tx) error {
	var bills []legacyBill
	if err := src.SelectContext(ctx, &bills, `SELECT id, customer_name, customer_mobile, total, gst, discount, date FROM bill`); err != nil {
		return err
	}

	migrated := 0
	for _, b := range bills {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bills (id, customer_name, customer_mobile, total_paise, gst_percent, discount_paise, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO NOTHING
		`, b.ID, nullString(b.CustomerName), nullString(b.CustomerMobile), paise(b.Total), b.GST, paise(b.Discount), parseLegacyTime(b.Date))
		if err != nil {
			log.Printf("warning: could not migrate bill %d: %v", b.ID, err)
			continue
		}
		migrated++
	}
	log.Printf("migrated %d/%d bills", migrated, len(bills))
	return nil
}

type legacyBillItem struct {
	ID       int64   `db:"id"`
	BillID   int64   `db:"bill_id"`
	TileName string  `db:"tile_name"`
	Size     string  `db:"size"`
	Price    float64 `db:"price"`
	Quantity int     `db:"quantity"`
	Total    float64 `db:"total"`
}

func migrateBillItems(ctx context.Context, src *sqlx.DB, tx *sql.Tx) error {
	var items []legacyBillItem
	if err := src.SelectContext(ctx, &items, `SELECT id, bill_id, tile_name, size, price, quantity, total FROM bill_item`); err != nil {
		return err
	}

	migrated := 0
	for _, item := range items {
		// Legacy line items carry no tile reference, only the snapshot.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bill_items (id, bill_id, tile_id, tile_name, size, price_paise, quantity, total_paise)
			VALUES ($1,$2,NULL,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO NOTHING
		`, item.ID, item.BillID, item.TileName, item.Size, paise(item.Price), item.Quantity, paise(item.Total))
		if err != nil {
			log.Printf("warning: could not migrate bill item %d: %v", item.ID, err)
			continue
		}
		migrated++
	}
	log.Printf("migrated %d/%d bill items", migrated, len(items))
	return nil
}

// resetSequences moves each serial sequence past the highest copied id so
// new inserts do not collide with migrated rows.
func resetSequences(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"users", "tiles", "bills", "bill_items"} {
		stmt := fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%s','id'), GREATEST((SELECT COALESCE(MAX(id),0) FROM %s), 1))`,
			table, table,
		)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", table, err)
		}
	}
	return nil
}

func nullString(v sql.NullString) any {
	if !v.Valid || v.String == "" {
		return nil
	}
	return v.String
}

func nullInt(v sql.NullInt64) any {
	if !v.Valid {
		return nil
	}
	return v.Int64
}
