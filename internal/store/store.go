package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"biztrack/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("already exists")
	ErrUnavailable  = errors.New("store unavailable")
)

// Unavailable tags a storage I/O failure so callers can match both
// ErrUnavailable and the underlying driver or context error.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// SaleScanner streams a tenant's sales in [from, to), newest first. A zero
// from means no lower bound. Returning an error from fn stops the scan and
// that error is returned unchanged.
type SaleScanner interface {
	ScanSales(ctx context.Context, businessID string, from time.Time, to time.Time, fn func(domain.SaleRecord) error) error
}

type Repository interface {
	SaleScanner

	RegisterBusiness(ctx context.Context, business domain.Business, owner domain.User) (*domain.Business, *domain.User, error)
	GetBusiness(ctx context.Context, id string) (*domain.Business, error)

	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context, businessID string, role string) ([]domain.User, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, businessID string, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, businessID string) ([]domain.Customer, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListSales(ctx context.Context, businessID string, limit int) ([]domain.Sale, error)
}
