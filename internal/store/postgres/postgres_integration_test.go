package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"biztrack/backend/internal/domain"
	"biztrack/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("BIZTRACK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BIZTRACK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})

	_, err = s.db.ExecContext(ctx, schemaSQL)
	require.NoError(t, err)
	return s
}

func TestSalesScanAndSummaryInputs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()

	business, owner, err := s.RegisterBusiness(ctx,
		domain.Business{Name: fmt.Sprintf("IT Shop %d", stamp)},
		domain.User{Name: "IT Owner", Email: fmt.Sprintf("it-%d@biztrack.test", stamp), PasswordHash: "$2a$10$hash"},
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE business_id = $1`, business.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE business_id = $1`, business.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE business_id = $1`, business.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM businesses WHERE id = $1`, business.ID)
	})

	_, _, err = s.RegisterBusiness(ctx,
		domain.Business{Name: "Duplicate"},
		domain.User{Name: "Dup", Email: owner.Email, PasswordHash: "$2a$10$hash"},
	)
	require.ErrorIs(t, err, store.ErrConflict)

	customer, err := s.CreateCustomer(ctx, domain.Customer{BusinessID: business.ID, Name: "John Doe", Phone: "+254700000001"})
	require.NoError(t, err)

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	_, err = s.CreateSale(ctx, domain.Sale{BusinessID: business.ID, CreatedBy: owner.ID, Amount: decimal.RequireFromString("1500.50"), PaymentMethod: "mpesa", CustomerID: customer.ID, CreatedAt: base})
	require.NoError(t, err)
	_, err = s.CreateSale(ctx, domain.Sale{BusinessID: business.ID, CreatedBy: owner.ID, Amount: decimal.NewFromInt(800), CreatedAt: base.Add(time.Minute)})
	require.NoError(t, err)

	_, err = s.CreateSale(ctx, domain.Sale{BusinessID: business.ID, CreatedBy: owner.ID, Amount: decimal.NewFromInt(1), CustomerID: "missing-customer"})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	var rows []domain.SaleRecord
	err = s.ScanSales(ctx, business.ID, time.Time{}, time.Now().UTC(), func(rec domain.SaleRecord) error {
		rows = append(rows, rec)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "", rows[0].PaymentMethod)
	require.Equal(t, "", rows[0].CustomerName)
	require.True(t, rows[1].Amount.Equal(decimal.RequireFromString("1500.50")))
	require.Equal(t, "John Doe", rows[1].CustomerName)

	rows = rows[:0]
	err = s.ScanSales(ctx, business.ID, base.Add(time.Second), time.Now().UTC(), func(rec domain.SaleRecord) error {
		rows = append(rows, rec)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
