package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"biztrack/backend/internal/domain"
	"biztrack/backend/internal/store"
	"biztrack/backend/internal/xid"
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

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) RegisterBusiness(ctx context.Context, business domain.Business, owner domain.User) (*domain.Business, *domain.User, error) {
	business.Name = strings.TrimSpace(business.Name)
	owner.Email = strings.ToLower(strings.TrimSpace(owner.Email))
	if business.Name == "" || owner.Email == "" || strings.TrimSpace(owner.PasswordHash) == "" {
		return nil, nil, store.ErrInvalidInput
	}
	if business.ID == "" {
		business.ID = xid.New()
	}
	if business.CreatedAt.IsZero() {
		business.CreatedAt = time.Now().UTC()
	}
	if owner.ID == "" {
		owner.ID = xid.New()
	}
	if owner.Role == "" {
		owner.Role = domain.RoleOwner
	}
	if owner.CreatedAt.IsZero() {
		owner.CreatedAt = business.CreatedAt
	}
	owner.BusinessID = business.ID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, store.Unavailable("register business", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO businesses (id, name, location, created_at)
		VALUES ($1,$2,$3,$4)
	`, business.ID, business.Name, nullIfEmpty(business.Location), business.CreatedAt); err != nil {
		return nil, nil, classify("insert business", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, business_id, name, email, password_hash, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, owner.ID, owner.BusinessID, owner.Name, owner.Email, owner.PasswordHash, owner.Role, owner.CreatedAt); err != nil {
		return nil, nil, classify("insert owner", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, store.Unavailable("register business", err)
	}

	return &business, &owner, nil
}

func (s *Store) GetBusiness(ctx context.Context, id string) (*domain.Business, error) {
	var (
		business domain.Business
		location sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, location, created_at
		FROM businesses
		WHERE id = $1
	`, id).Scan(&business.ID, &business.Name, &location, &business.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Unavailable("get business", err)
	}
	business.Location = location.String
	business.CreatedAt = business.CreatedAt.UTC()
	return &business, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || strings.TrimSpace(user.PasswordHash) == "" || user.BusinessID == "" {
		return nil, store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = xid.New()
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, business_id, name, email, password_hash, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, user.ID, user.BusinessID, user.Name, user.Email, user.PasswordHash, user.Role, user.CreatedAt)
	if err != nil {
		return nil, classify("insert user", err)
	}
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) getUser(ctx context.Context, column string, value string) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, business_id, name, email, password_hash, role, created_at
		FROM users
		WHERE `+column+` = $1
	`, value).Scan(&user.ID, &user.BusinessID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Unavailable("get user", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context, businessID string, role string) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_id, name, email, password_hash, role, created_at
		FROM users
		WHERE business_id = $1
			AND ($2 = '' OR role = $2)
		ORDER BY email ASC
	`, businessID, role)
	if err != nil {
		return nil, store.Unavailable("list users", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0, 8)
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.BusinessID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt); err != nil {
			return nil, store.Unavailable("list users", err)
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("list users", err)
	}
	return users, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" || customer.BusinessID == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New()
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, business_id, name, phone, email, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, customer.ID, customer.BusinessID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email), customer.CreatedAt)
	if err != nil {
		return nil, classify("insert customer", err)
	}
	return &customer, nil
}

func (s *Store) GetCustomer(ctx context.Context, businessID string, id string) (*domain.Customer, error) {
	var (
		customer     domain.Customer
		phone, email sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, business_id, name, phone, email, created_at
		FROM customers
		WHERE business_id = $1 AND id = $2
	`, businessID, id).Scan(&customer.ID, &customer.BusinessID, &customer.Name, &phone, &email, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Unavailable("get customer", err)
	}
	customer.Phone = phone.String
	customer.Email = email.String
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context, businessID string) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_id, name, phone, email, created_at
		FROM customers
		WHERE business_id = $1
		ORDER BY name ASC, id ASC
	`, businessID)
	if err != nil {
		return nil, store.Unavailable("list customers", err)
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		var (
			customer     domain.Customer
			phone, email sql.NullString
		)
		if err := rows.Scan(&customer.ID, &customer.BusinessID, &customer.Name, &phone, &email, &customer.CreatedAt); err != nil {
			return nil, store.Unavailable("list customers", err)
		}
		customer.Phone = phone.String
		customer.Email = email.String
		customer.CreatedAt = customer.CreatedAt.UTC()
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("list customers", err)
	}
	return customers, nil
}

// CreateSale lets the database stamp created_at unless the caller supplied
// one, and reads the stored value back.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.BusinessID == "" || sale.CreatedBy == "" || sale.Amount.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New()
	}

	// The customer must belong to the same tenant; the join makes a foreign
	// or unknown customer insert zero rows.
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sales (id, business_id, amount, payment_method, customer_id, created_by, created_at)
		SELECT $1, $2, $3, $4, $5, $6, COALESCE($7, now())
		WHERE $5::text IS NULL
			OR EXISTS (SELECT 1 FROM customers c WHERE c.id = $5 AND c.business_id = $2)
		RETURNING created_at
	`, sale.ID, sale.BusinessID, sale.Amount, nullIfEmpty(sale.PaymentMethod), nullIfEmpty(sale.CustomerID), sale.CreatedBy, nullTime(sale.CreatedAt)).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrInvalidInput
		}
		return nil, classify("insert sale", err)
	}
	sale.CreatedAt = createdAt.UTC()
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, businessID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_id, amount, payment_method, customer_id, created_by, created_at
		FROM sales
		WHERE business_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, store.Unavailable("list sales", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var (
			sale               domain.Sale
			method, customerID sql.NullString
		)
		if err := rows.Scan(&sale.ID, &sale.BusinessID, &sale.Amount, &method, &customerID, &sale.CreatedBy, &sale.CreatedAt); err != nil {
			return nil, store.Unavailable("list sales", err)
		}
		sale.PaymentMethod = method.String
		sale.CustomerID = customerID.String
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("list sales", err)
	}
	return sales, nil
}

// ScanSales runs one statement, so every row comes from the same snapshot.
// Rows are streamed from the server cursor; memory use does not grow with
// the size of the window.
func (s *Store) ScanSales(ctx context.Context, businessID string, from time.Time, to time.Time, fn func(domain.SaleRecord) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.business_id, s.amount, s.payment_method, s.customer_id, c.name, s.created_by, s.created_at
		FROM sales s
		LEFT JOIN customers c ON c.id = s.customer_id AND c.business_id = s.business_id
		WHERE s.business_id = $1
			AND ($2::timestamptz IS NULL OR s.created_at >= $2)
			AND s.created_at < $3
		ORDER BY s.created_at DESC, s.id DESC
	`, businessID, nullTime(from), to)
	if err != nil {
		return store.Unavailable("scan sales", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec                          domain.SaleRecord
			method, customerID, customer sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.BusinessID, &rec.Amount, &method, &customerID, &customer, &rec.CreatedBy, &rec.CreatedAt); err != nil {
			return store.Unavailable("scan sales", err)
		}
		rec.PaymentMethod = method.String
		rec.CustomerID = customerID.String
		rec.CustomerName = customer.String
		rec.CreatedAt = rec.CreatedAt.UTC()
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return store.Unavailable("scan sales", err)
	}
	return nil
}

// classify maps constraint violations to store sentinels and everything else
// to ErrUnavailable.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return store.ErrConflict
		// 22003 numeric out of range, 22P02 invalid text representation.
		case "23503", "23502", "23514", "22003", "22P02":
			return store.ErrInvalidInput
		}
	}
	return store.Unavailable(op, err)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val.UTC()
}
