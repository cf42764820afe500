package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tilestock/internal/domain"
	"tilestock/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountDeactivated = errors.New("account is deactivated")
	ErrUnauthorized       = errors.New("authentication required")
	ErrForbidden          = errors.New("admin access required")
	ErrProtectedUser      = errors.New("default admin account cannot be modified")
	ErrSelfAction         = errors.New("operation not allowed on own account")
)

// bootstrapUsername is the permanently protected first admin account.
const bootstrapUsername = "admin"

type actorKey struct{}

// WithActor attaches the authenticated actor to the request context.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(domain.Actor)
	return actor, ok
}

// Options tune behavior that is deliberately configurable rather than fixed.
type Options struct {
	// RestockOnBillDelete returns sold quantities to inventory when a bill
	// is deleted. Off by default: deleting a bill historically discarded
	// the record without touching stock.
	RestockOnBillDelete bool
}

type Service struct {
	repo store.Repository
	opts Options
}

func New(repo store.Repository, opts Options) *Service {
	return &Service{repo: repo, opts: opts}
}

func (s *Service) requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, ErrUnauthorized
	}
	return actor, nil
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if !actor.IsAdmin() {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

// -------- auth --------

func (s *Service) Login(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, ErrAccountDeactivated
	}
	return user, nil
}

// EnsureBootstrapAdmin seeds the default admin account when the user table
// is empty, so a fresh install is reachable. The password can be overridden
// through configuration; the fallback matches the historical default.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, password string) error {
	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		password = "admin123"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.repo.CreateUser(ctx, domain.User{
		Username:     bootstrapUsername,
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Printf("[service] seeded default admin account %q; change its password immediately", bootstrapUsername)
	return nil
}

// -------- users --------

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

func (s *Service) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.GetUserByID(ctx, id)
}

func validateNewUser(req domain.UserCreateRequest) error {
	if len(strings.TrimSpace(req.Username)) < 3 {
		return fmt.Errorf("%w: username must be at least 3 characters", store.ErrInvalidInput)
	}
	if len(req.Password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidInput)
	}
	if req.Password != req.ConfirmPassword {
		return fmt.Errorf("%w: passwords do not match", store.ErrInvalidInput)
	}
	if !domain.ValidRole(req.Role) {
		return fmt.Errorf("%w: role must be admin or staff", store.ErrInvalidInput)
	}
	return nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (*domain.User, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateNewUser(req); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	createdBy := actor.UserID
	return s.repo.CreateUser(ctx, domain.User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
		CreatedBy:    &createdBy,
	})
}

// guardUserTarget enforces the shared rules for mutating a user account:
// the bootstrap admin is immutable and nobody may deactivate or delete
// themselves.
func (s *Service) guardUserTarget(ctx context.Context, actor domain.Actor, id int64) (*domain.User, error) {
	target, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.Username == bootstrapUsername {
		return nil, ErrProtectedUser
	}
	if target.ID == actor.UserID {
		return nil, ErrSelfAction
	}
	return target, nil
}

func (s *Service) UpdateUser(ctx context.Context, id int64, req domain.UserUpdateRequest) (*domain.User, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	target, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.Username == bootstrapUsername {
		return nil, ErrProtectedUser
	}
	if !domain.ValidRole(req.Role) {
		return nil, fmt.Errorf("%w: role must be admin or staff", store.ErrInvalidInput)
	}
	// Demoting yourself is allowed; locking yourself out is not.
	if target.ID == actor.UserID && !req.Active {
		return nil, ErrSelfAction
	}

	target.Email = strings.TrimSpace(req.Email)
	target.Role = req.Role
	target.Active = req.Active
	if req.Password != "" {
		if len(req.Password) < 6 {
			return nil, fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidInput)
		}
		if req.Password != req.ConfirmPassword {
			return nil, fmt.Errorf("%w: passwords do not match", store.ErrInvalidInput)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		target.PasswordHash = string(hash)
	}
	return s.repo.UpdateUser(ctx, *target)
}

func (s *Service) ToggleUserActive(ctx context.Context, id int64) (*domain.User, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	target, err := s.guardUserTarget(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	target.Active = !target.Active
	return s.repo.UpdateUser(ctx, *target)
}

func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}
	if _, err := s.guardUserTarget(ctx, actor, id); err != nil {
		return err
	}
	return s.repo.DeleteUser(ctx, id)
}

// -------- tiles --------

func (s *Service) ListTiles(ctx context.Context, search string) ([]domain.Tile, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListTiles(ctx, search)
}

func (s *Service) GetTile(ctx context.Context, id int64) (*domain.Tile, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.GetTile(ctx, id)
}

func validateTile(req domain.TileRequest) error {
	if strings.TrimSpace(req.Brand) == "" {
		return fmt.Errorf("%w: brand is required", store.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Size) == "" {
		return fmt.Errorf("%w: size is required", store.ErrInvalidInput)
	}
	if req.PricePaise < 1 {
		return fmt.Errorf("%w: price must be positive", store.ErrInvalidInput)
	}
	if req.Quantity < 0 {
		return fmt.Errorf("%w: quantity cannot be negative", store.ErrInvalidInput)
	}
	if req.BuyPricePaise != nil && *req.BuyPricePaise < 0 {
		return fmt.Errorf("%w: buy price cannot be negative", store.ErrInvalidInput)
	}
	return nil
}

func (s *Service) CreateTile(ctx context.Context, req domain.TileRequest) (*domain.Tile, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := validateTile(req); err != nil {
		return nil, err
	}
	return s.repo.CreateTile(ctx, domain.Tile{
		Brand:         strings.TrimSpace(req.Brand),
		Size:          strings.TrimSpace(req.Size),
		BuyPricePaise: req.BuyPricePaise,
		PricePaise:    req.PricePaise,
		Quantity:      req.Quantity,
	})
}

func (s *Service) UpdateTile(ctx context.Context, id int64, req domain.TileRequest) (*domain.Tile, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := validateTile(req); err != nil {
		return nil, err
	}
	return s.repo.UpdateTile(ctx, domain.Tile{
		ID:            id,
		Brand:         strings.TrimSpace(req.Brand),
		Size:          strings.TrimSpace(req.Size),
		BuyPricePaise: req.BuyPricePaise,
		PricePaise:    req.PricePaise,
		Quantity:      req.Quantity,
	})
}

func (s *Service) DeleteTile(ctx context.Context, id int64) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeleteTile(ctx, id)
}

// -------- billing --------

func (s *Service) CreateBill(ctx context.Context, req domain.BillCreateRequest) (*store.BillOutcome, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	if req.GSTPercent < 0 {
		return nil, fmt.Errorf("%w: gst cannot be negative", store.ErrInvalidInput)
	}
	if req.DiscountPaise < 0 {
		return nil, fmt.Errorf("%w: discount cannot be negative", store.ErrInvalidInput)
	}

	outcome, err := s.repo.CreateBill(ctx, domain.Bill{
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CustomerMobile: strings.TrimSpace(req.CustomerMobile),
		GSTPercent:     req.GSTPercent,
		DiscountPaise:  req.DiscountPaise,
		CreatedAt:      time.Now().UTC(),
	}, req.Quantities)
	if err != nil {
		return nil, fmt.Errorf("create bill: %w", err)
	}
	return outcome, nil
}

func (s *Service) GetBill(ctx context.Context, id int64) (*domain.Bill, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.GetBill(ctx, id)
}

func (s *Service) ListBills(ctx context.Context) ([]domain.Bill, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListBills(ctx)
}

func (s *Service) UpdateBill(ctx context.Context, id int64, req domain.BillUpdateRequest) (*domain.Bill, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if req.GSTPercent < 0 {
		return nil, fmt.Errorf("%w: gst cannot be negative", store.ErrInvalidInput)
	}
	if req.DiscountPaise < 0 {
		return nil, fmt.Errorf("%w: discount cannot be negative", store.ErrInvalidInput)
	}
	return s.repo.UpdateBill(ctx, id, req)
}

func (s *Service) DeleteBill(ctx context.Context, id int64) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	items, err := s.repo.DeleteBill(ctx, id)
	if err != nil {
		return err
	}
	if !s.opts.RestockOnBillDelete {
		return nil
	}
	for _, item := range items {
		if item.TileID == nil {
			continue
		}
		if err := s.repo.IncreaseTileQuantity(ctx, *item.TileID, item.Quantity); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("restock tile %d: %w", *item.TileID, err)
		}
	}
	return nil
}

// -------- reports --------

func (s *Service) SalesOnDate(ctx context.Context, day time.Time) (*domain.SalesReport, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	bills, err := s.repo.ListBillsOnDate(ctx, day)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.SumBillTotalsOnDate(ctx, day)
	if err != nil {
		return nil, err
	}
	return &domain.SalesReport{
		Date:       day.UTC().Format("2006-01-02"),
		TotalPaise: total,
		Bills:      bills,
	}, nil
}

func (s *Service) AllTimeSales(ctx context.Context) (int64, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return 0, err
	}
	return s.repo.SumBillTotals(ctx)
}
