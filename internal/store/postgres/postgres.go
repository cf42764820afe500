package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tilestock/internal/domain"
	"tilestock/internal/store"
)

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

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for offline tooling that needs raw
// access to the schema, such as the data migration command.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) ensureSchema(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_by BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS tiles (
			id BIGSERIAL PRIMARY KEY,
			brand TEXT NOT NULL,
			size TEXT NOT NULL,
			buy_price_paise BIGINT,
			price_paise BIGINT NOT NULL,
			quantity INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bills (
			id BIGSERIAL PRIMARY KEY,
			customer_name TEXT,
			customer_mobile TEXT,
			total_paise BIGINT NOT NULL,
			gst_percent DOUBLE PRECISION NOT NULL,
			discount_paise BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS bill_items (
			id BIGSERIAL PRIMARY KEY,
			bill_id BIGINT NOT NULL REFERENCES bills(id),
			tile_id BIGINT,
			tile_name TEXT NOT NULL,
			size TEXT NOT NULL,
			price_paise BIGINT NOT NULL,
			quantity INT NOT NULL,
			total_paise BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bill_items_bill ON bill_items(bill_id)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres schema: %w", err)
		}
	}
	return nil
}

// -------- users --------

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.Username == "" || user.PasswordHash == "" || !domain.ValidRole(user.Role) {
		return nil, store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, role, active, created_at, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, user.Username, nullIfEmpty(user.Email), user.PasswordHash, user.Role, user.Active, user.CreatedAt, user.CreatedBy).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("username %q: %w", user.Username, store.ErrDuplicate)
		}
		return nil, err
	}
	return &user, nil
}

const userColumns = `id, username, COALESCE(email,''), password_hash, role, active, created_at, created_by`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt, &u.CreatedBy); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return user, err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
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
		SET email = $2, password_hash = $3, role = $4, active = $5
		WHERE id = $1
	`, user.ID, nullIfEmpty(user.Email), user.PasswordHash, user.Role, user.Active)
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
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
		query += ` WHERE brand ILIKE $1 OR size ILIKE $1`
		args = append(args, "%"+search+"%")
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
		FROM tiles WHERE id = $1
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
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tiles (brand, size, buy_price_paise, price_paise, quantity)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, tile.Brand, tile.Size, tile.BuyPricePaise, tile.PricePaise, tile.Quantity).Scan(&tile.ID)
	if err != nil {
		return nil, err
	}
	return &tile, nil
}

func (s *Store) UpdateTile(ctx context.Context, tile domain.Tile) (*domain.Tile, error) {
	if tile.ID == 0 || tile.Brand == "" || tile.Size == "" || tile.PricePaise < 1 || tile.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tiles
		SET brand = $2, size = $3, buy_price_paise = $4, price_paise = $5, quantity = $6
		WHERE id = $1
	`, tile.ID, tile.Brand, tile.Size, tile.BuyPricePaise, tile.PricePaise, tile.Quantity)
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM tiles WHERE id = $1`, id)
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
	res, err := s.db.ExecContext(ctx, `UPDATE tiles SET quantity = quantity + $1 WHERE id = $2`, by, id)
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

// CreateBill executes the billing transaction: insert the bill with a zero
// total to obtain its id, lock the full catalog, decrement stock and insert
// a snapshotted line for every satisfiable request, then write the final
// total and commit. The row locks close the lost-update race between two
// concurrent checkouts of the same tile; the partial-fulfillment policy is
// unchanged (over-requested and non-positive lines are skipped silently).
func (s *Store) CreateBill(ctx context.Context, bill domain.Bill, requested map[int64]int) (*store.BillOutcome, error) {
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO bills (customer_name, customer_mobile, total_paise, gst_percent, discount_paise, created_at)
		VALUES ($1,$2,0,$3,$4,$5)
		RETURNING id
	`, nullIfEmpty(bill.CustomerName), nullIfEmpty(bill.CustomerMobile), bill.GSTPercent, bill.DiscountPaise, bill.CreatedAt).Scan(&bill.ID)
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, brand, size, price_paise, quantity
		FROM tiles
		ORDER BY id
		FOR UPDATE
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
			UPDATE tiles SET quantity = quantity - $1 WHERE id = $2
		`, qty, tile.id); err != nil {
			return nil, err
		}

		lineTotal := tile.price * int64(qty)
		tileID := tile.id
		item := domain.BillItem{
			BillID:     bill.ID,
			TileID:     &tileID,
			TileName:   tile.brand,
			Size:       tile.size,
			PricePaise: tile.price,
			Quantity:   qty,
			TotalPaise: lineTotal,
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO bill_items (bill_id, tile_id, tile_name, size, price_paise, quantity, total_paise)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id
		`, item.BillID, item.TileID, item.TileName, item.Size, item.PricePaise, item.Quantity, item.TotalPaise).Scan(&item.ID)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
		subtotal += lineTotal
	}

	bill.TotalPaise = billTotal(subtotal, bill.GSTPercent, bill.DiscountPaise)
	if _, err := tx.ExecContext(ctx, `
		UPDATE bills SET total_paise = $1 WHERE id = $2
	`, bill.TotalPaise, bill.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	bill.Items = items
	return &store.BillOutcome{Bill: bill, SubtotalPaise: subtotal}, nil
}

func billTotal(subtotalPaise int64, gstPercent float64, discountPaise int64) int64 {
	tax := int64(math.Round(float64(subtotalPaise) * gstPercent / 100))
	return subtotalPaise + tax - discountPaise
}

const billColumns = `id, COALESCE(customer_name,''), COALESCE(customer_mobile,''), total_paise, gst_percent, discount_paise, created_at`

func scanBill(row interface{ Scan(...any) error }) (*domain.Bill, error) {
	var b domain.Bill
	if err := row.Scan(&b.ID, &b.CustomerName, &b.CustomerMobile, &b.TotalPaise, &b.GSTPercent, &b.DiscountPaise, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

func (s *Store) GetBill(ctx context.Context, id int64) (*domain.Bill, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+billColumns+` FROM bills WHERE id = $1`, id)
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
		FROM bill_items WHERE bill_id = $1 ORDER BY id
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
		WHERE created_at::date = $1
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

func (s *Store) UpdateBill(ctx context.Context, id int64, req domain.BillUpdateRequest) (*domain.Bill, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var subtotal int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_paise), 0) FROM bill_items WHERE bill_id = $1
	`, id).Scan(&subtotal)
	if err != nil {
		return nil, err
	}

	total := billTotal(subtotal, req.GSTPercent, req.DiscountPaise)
	res, err := tx.ExecContext(ctx, `
		UPDATE bills
		SET customer_name = $2, customer_mobile = $3, gst_percent = $4, discount_paise = $5, total_paise = $6
		WHERE id = $1
	`, id, nullIfEmpty(req.CustomerName), nullIfEmpty(req.CustomerMobile), req.GSTPercent, req.DiscountPaise, total)
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
	return s.GetBill(ctx, id)
}

func (s *Store) DeleteBill(ctx context.Context, id int64) ([]domain.BillItem, error) {
	items, err := s.listBillItems(ctx, id)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bill_items WHERE bill_id = $1`, id); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM bills WHERE id = $1`, id)
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
		WHERE created_at::date = $1
	`, day.UTC().Format("2006-01-02")).Scan(&total)
	return total, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return val
}
