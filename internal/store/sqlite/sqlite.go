package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"tilestock/internal/domain"
	"tilestock/internal/store"
)

// Store is the embedded file-backed repository. It backs the application
// when no DATABASE_URL is configured and doubles as the test store via the
// ":memory:" path. SQLite allows a single writer, so the store is pinned to
// one connection; every call sees a serialized view of the database.
type Store struct {
	db *sqlx.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		path = "database.db"
	}
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			email TEXT,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			created_by INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS tiles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			brand TEXT NOT NULL,
			size TEXT NOT NULL,
			buy_price_paise INTEGER,
			price_paise INTEGER NOT NULL,
			quantity INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS bills (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			customer_name TEXT,
			customer_mobile TEXT,
			total_paise INTEGER NOT NULL,
			gst_percent REAL NOT NULL,
			discount_paise INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS bill_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			bill_id INTEGER NOT NULL,
			tile_id INTEGER,
			tile_name TEXT NOT NULL,
			size TEXT NOT NULL,
			price_paise INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			total_paise INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_bill_items_bill ON bill_items(bill_id);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return nil
}

const timeLayout = time.RFC3339Nano

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// -------- users --------

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.Username == "" || user.PasswordHash == "" || !domain.ValidRole(user.Role) {
		return nil, store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, role, active, created_at, created_by)
		VALUES (?,?,?,?,?,?,?)
	`, user.Username, nullIfEmpty(user.Email), user.PasswordHash, user.Role, user.Active, encodeTime(user.CreatedAt), user.CreatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("username %q: %w", user.Username, store.ErrDuplicate)
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	user.ID = id
	return &user, nil
}

const userColumns = `id, username, COALESCE(email,''), password_hash, role, active, created_at, created_by`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	var createdAt string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Active, &createdAt, &u.CreatedBy); err != nil {
		return nil, err
	}
	u.CreatedAt = decodeTime(createdAt)
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return user, err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return user, err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 16)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.ID == 0 || !domain.ValidRole(user.Role) {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET email = ?, password_hash = ?, role = ?, active = ?
		WHERE id = ?
	`, nullIfEmpty(user.Email), user.PasswordHash, user.Role, user.Active, user.ID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetUserByID(ctx, user.ID)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// -------- tiles --------

func (s *Store) ListTiles(ctx context.Context, search string) ([]domain.Tile, error) {
	query := `
		SELECT id, brand, size, buy_price_paise, price_paise, quantity
		FROM tiles
	`
	args := []any{}
	if search = strings.TrimSpace(search); search != "" {
		query += ` WHERE lower(brand) LIKE ? OR lower(size) LIKE ?`
		needle := "%" + strings.ToLower(search) + "%"
		args = append(args, needle, needle)
	}
	query += ` ORDER BY brand, size`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tiles := make([]domain.Tile, 0, 64)
	for rows.Next() {
		var t domain.Tile
		if err := rows.Scan(&t.ID, &t.Brand, &t.Size, &t.BuyPricePaise, &t.PricePaise, &t.Quantity); err != nil {
			return nil, err
		}
		tiles = append(tiles, t)
	}
	return tiles, rows.Err()
}

func (s *Store) GetTile(ctx context.Context, id int64) (*domain.Tile, error) {
	var t domain.Tile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, brand, size, buy_price_paise, price_paise, quantity
		FROM tiles WHERE id = ?
	`, id).Scan(&t.ID, &t.Brand, &t.Size, &t.BuyPricePaise, &t.PricePaise, &t.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateTile(ctx context.Context, tile domain.Tile) (*domain.Tile, error) {
	if tile.Brand == "" || tile.Size == "" || tile.PricePaise < 1 || tile.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tiles (brand, size, buy_price_paise, price_paise, quantity)
		VALUES (?,?,?,?,?)
	`, tile.Brand, tile.Size, tile.BuyPricePaise, tile.PricePaise, tile.Quantity)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	tile.ID = id
	return &tile, nil
}

func (s *Store) UpdateTile(ctx context.Context, tile domain.Tile) (*domain.Tile, error) {
	if tile.ID == 0 || tile.Brand == "" || tile.Size == "" || tile.PricePaise < 1 || tile.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tiles
		SET brand = ?, size = ?, buy_price_paise = ?, price_paise = ?, quantity = ?
		WHERE id = ?
	`, tile.Brand, tile.Size, tile.BuyPricePaise, tile.PricePaise, tile.Quantity, tile.ID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := tile
	return &updated, nil
}

func (s *Store) DeleteTile(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) IncreaseTileQuantity(ctx context.Context, id int64, by int) error {
	if by < 1 {
		return nil
	}
	res, err := s.db.ExecContext(ctx, `UPDATE tiles SET quantity = quantity + ? WHERE id = ?`, by, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// -------- bills --------

// CreateBill runs the whole billing flow in one transaction: insert the bill
// with total 0 to obtain its id, walk the full catalog matching requested
// quantities, decrement stock and snapshot a line for every satisfiable
// request, then write the final total. Requests for more than the on-hand
// quantity (or for zero/negative amounts) are skipped without error; the
// returned bill simply omits them.
func (s *Store) CreateBill(ctx context.Context, bill domain.Bill, requested map[int64]int) (*store.BillOutcome, error) {
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO bills (customer_name, customer_mobile, total_paise, gst_percent, discount_paise, created_at)
		VALUES (?,?,0,?,?,?)
	`, nullIfEmpty(bill.CustomerName), nullIfEmpty(bill.CustomerMobile), bill.GSTPercent, bill.DiscountPaise, encodeTime(bill.CreatedAt))
	if err != nil {
		return nil, err
	}
	billID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	bill.ID = billID

	rows, err := tx.QueryContext(ctx, `
		SELECT id, brand, size, price_paise, quantity
		FROM tiles ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	type catalogRow struct {
		id       int64
		brand    string
		size     string
		price    int64
		quantity int
	}
	catalog := make([]catalogRow, 0, 64)
	for rows.Next() {
		var row catalogRow
		if err := rows.Scan(&row.id, &row.brand, &row.size, &row.price, &row.quantity); err != nil {
			_ = rows.Close()
			return nil, err
		}
		catalog = append(catalog, row)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	subtotal := int64(0)
	items := make([]domain.BillItem, 0, len(requested))
	for _, tile := range catalog {
		qty := requested[tile.id]
		if qty <= 0 || qty > tile.quantity {
			continue
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE tiles SET quantity = quantity - ? WHERE id = ?
		`, qty, tile.id); err != nil {
			return nil, err
		}

		lineTotal := tile.price * int64(qty)
		tileID := tile.id
		itemRes, err := tx.ExecContext(ctx, `
			INSERT INTO bill_items (bill_id, tile_id, tile_name, size, price_paise, quantity, total_paise)
			VALUES (?,?,?,?,?,?,?)
		`, billID, tileID, tile.brand, tile.size, tile.price, qty, lineTotal)
		if err != nil {
			return nil, err
		}
		itemID, err := itemRes.LastInsertId()
		if err != nil {
			return nil, err
		}

		items = append(items, domain.BillItem{
			ID:         itemID,
			BillID:     billID,
			TileID:     &tileID,
			TileName:   tile.brand,
			Size:       tile.size,
			PricePaise: tile.price,
			Quantity:   qty,
			TotalPaise: lineTotal,
		})
		subtotal += lineTotal
	}

	bill.TotalPaise = billTotal(subtotal, bill.GSTPercent, bill.DiscountPaise)
	if _, err := tx.ExecContext(ctx, `
		UPDATE bills SET total_paise = ? WHERE id = ?
	`, bill.TotalPaise, billID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	bill.Items = items
	return &store.BillOutcome{Bill: bill, SubtotalPaise: subtotal}, nil
}

// billTotal applies the invoice formula. The result is not floored at
// zero; an oversized discount yields a negative total.
func billTotal(subtotalPaise int64, gstPercent float64, discountPaise int64) int64 {
	tax := int64(math.Round(float64(subtotalPaise) * gstPercent / 100))
	return subtotalPaise + tax - discountPaise
}

const billColumns = `id, COALESCE(customer_name,''), COALESCE(customer_mobile,''), total_paise, gst_percent, discount_paise, created_at`

func scanBill(row interface{ Scan(...any) error }) (*domain.Bill, error) {
	var b domain.Bill
	var createdAt string
	if err := row.Scan(&b.ID, &b.CustomerName, &b.CustomerMobile, &b.TotalPaise, &b.GSTPercent, &b.DiscountPaise, &createdAt); err != nil {
		return nil, err
	}
	b.CreatedAt = decodeTime(createdAt)
	return &b, nil
}

func (s *Store) GetBill(ctx context.Context, id int64) (*domain.Bill, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+billColumns+` FROM bills WHERE id = ?`, id)
	bill, err := scanBill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := s.listBillItems(ctx, id)
	if err != nil {
		return nil, err
	}
	bill.Items = items
	return bill, nil
}

func (s *Store) listBillItems(ctx context.Context, billID int64) ([]domain.BillItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bill_id, tile_id, tile_name, size, price_paise, quantity, total_paise
		FROM bill_items WHERE bill_id = ? ORDER BY id
	`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.BillItem, 0, 8)
	for rows.Next() {
		var item domain.BillItem
		if err := rows.Scan(&item.ID, &item.BillID, &item.TileID, &item.TileName, &item.Size, &item.PricePaise, &item.Quantity, &item.TotalPaise); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) ListBills(ctx context.Context) ([]domain.Bill, error) {
	return s.queryBills(ctx, `SELECT `+billColumns+` FROM bills ORDER BY created_at DESC, id DESC`)
}

func (s *Store) ListBillsOnDate(ctx context.Context, day time.Time) ([]domain.Bill, error) {
	return s.queryBills(ctx, `
		SELECT `+billColumns+` FROM bills
		WHERE substr(created_at, 1, 10) = ?
		ORDER BY created_at DESC, id DESC
	`, day.UTC().Format("2006-01-02"))
}

func (s *Store) queryBills(ctx context.Context, query string, args ...any) ([]domain.Bill, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bills := make([]domain.Bill, 0, 32)
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, *bill)
	}
	return bills, rows.Err()
}

// UpdateBill mutates the customer/tax/discount fields and recomputes the
// total from the already-persisted item totals. Stock is never revisited.
func (s *Store) UpdateBill(ctx context.Context, id int64, req domain.BillUpdateRequest) (*domain.Bill, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bills WHERE id = ?`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, store.ErrNotFound
	}

	var subtotal int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_paise), 0) FROM bill_items WHERE bill_id = ?
	`, id).Scan(&subtotal); err != nil {
		return nil, err
	}

	total := billTotal(subtotal, req.GSTPercent, req.DiscountPaise)
	if _, err := tx.ExecContext(ctx, `
		UPDATE bills
		SET customer_name = ?, customer_mobile = ?, gst_percent = ?, discount_paise = ?, total_paise = ?
		WHERE id = ?
	`, nullIfEmpty(req.CustomerName), nullIfEmpty(req.CustomerMobile), req.GSTPercent, req.DiscountPaise, total, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetBill(ctx, id)
}

// DeleteBill removes the bill's line items and then the bill itself. It
// returns the removed items so the caller can apply an explicit restock
// policy; by default decremented stock stays decremented.
func (s *Store) DeleteBill(ctx context.Context, id int64) ([]domain.BillItem, error) {
	items, err := s.listBillItems(ctx, id)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bill_items WHERE bill_id = ?`, id); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM bills WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SumBillTotals(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(total_paise), 0) FROM bills`).Scan(&total)
	return total, err
}

func (s *Store) SumBillTotalsOnDate(ctx context.Context, day time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_paise), 0) FROM bills
		WHERE substr(created_at, 1, 10) = ?
	`, day.UTC().Format("2006-01-02")).Scan(&total)
	return total, err
}

func nullIfEmpty(val string) any {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return val
}
