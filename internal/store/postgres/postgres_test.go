package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"biztrack/backend/internal/store"
)

func TestClassifyMapsClientErrorsToInvalidInput(t *testing.T) {
	for code, want := range map[string]error{
		"23505": store.ErrConflict,
		"23503": store.ErrInvalidInput,
		"22003": store.ErrInvalidInput,
		"22P02": store.ErrInvalidInput,
		"57014": store.ErrUnavailable,
	} {
		err := classify("insert sale", fmt.Errorf("exec: %w", &pgconn.PgError{Code: code}))
		require.ErrorIs(t, err, want, code)
	}

	err := classify("insert sale", errors.New("connection reset"))
	require.ErrorIs(t, err, store.ErrUnavailable)
}
