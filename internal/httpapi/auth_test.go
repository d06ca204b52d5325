package httpapi

import (
	"context"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"biztrack/backend/internal/domain"
	"biztrack/backend/internal/service"
	"biztrack/backend/internal/store"
	"biztrack/backend/internal/store/memory"
)

const testSecret = "test-secret-key-with-at-least-32-chars"

func newTestAuth(t *testing.T) *AuthManager {
	t.Helper()
	return NewAuthManager(testSecret, time.Hour, memory.New())
}

func register(t *testing.T, auth *AuthManager, email string) domain.Actor {
	t.Helper()
	resp, err := auth.Register(context.Background(), domain.RegisterRequest{
		Name:         "Owner",
		Email:        email,
		Password:     "secret123",
		BusinessName: "Duka " + email,
	})
	require.NoError(t, err)
	actor, err := auth.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	return actor
}

func TestRegisterIssuesOwnerToken(t *testing.T) {
	auth := newTestAuth(t)
	resp, err := auth.Register(context.Background(), domain.RegisterRequest{
		Name:         "Wanjiru",
		Email:        "  Wanjiru@Duka.KE ",
		Password:     "secret123",
		BusinessName: "Duka La Mama",
	})
	require.NoError(t, err)
	require.Equal(t, "bearer", resp.TokenType)
	require.Equal(t, domain.RoleOwner, resp.Role)

	actor, err := auth.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, domain.RoleOwner, actor.Role)
	require.Equal(t, "wanjiru@duka.ke", actor.Email)
	require.NotEmpty(t, actor.BusinessID)
	require.NotEmpty(t, actor.UserID)
}

func TestRegisterValidatesInput(t *testing.T) {
	auth := newTestAuth(t)
	cases := []domain.RegisterRequest{
		{Name: "A", Email: "a@b.ke", Password: "12345", BusinessName: "Shop"},
		{Name: "A", Email: "not-an-email", Password: "secret123", BusinessName: "Shop"},
		{Name: "", Email: "a@b.ke", Password: "secret123", BusinessName: "Shop"},
		{Name: "A", Email: "a@b.ke", Password: "secret123", BusinessName: " "},
	}
	for _, req := range cases {
		_, err := auth.Register(context.Background(), req)
		require.ErrorIs(t, err, store.ErrInvalidInput)
	}

	register(t, auth, "dup@b.ke")
	_, err := auth.Register(context.Background(), domain.RegisterRequest{Name: "B", Email: "DUP@b.ke", Password: "secret123", BusinessName: "Other"})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := newTestAuth(t)
	register(t, auth, "login@b.ke")

	_, err := auth.Login(context.Background(), domain.LoginRequest{Email: "login@b.ke", Password: "wrong-pass"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Login(context.Background(), domain.LoginRequest{Email: "nobody@b.ke", Password: "secret123"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Email: "LOGIN@b.ke", Password: "secret123"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
}

func TestParseTokenRejectsForgedAndExpired(t *testing.T) {
	auth := newTestAuth(t)
	actor := register(t, auth, "tok@b.ke")

	other := NewAuthManager("another-secret-key-with-32-chars!!", time.Hour, memory.New())
	forged, err := other.issue(domain.User{ID: actor.UserID, BusinessID: actor.BusinessID, Role: domain.RoleOwner})
	require.NoError(t, err)
	_, err = auth.ParseToken(forged.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	unsigned, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.MapClaims{
		"sub": actor.UserID, "business_id": actor.BusinessID, "role": "owner", "iss": tokenIssuer,
	}).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.ParseToken(unsigned)
	require.ErrorIs(t, err, ErrInvalidToken)

	issued, err := auth.issue(domain.User{ID: actor.UserID, BusinessID: actor.BusinessID, Role: domain.RoleStaff})
	require.NoError(t, err)
	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = auth.ParseToken(issued.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestStaffManagementIsOwnerOnly(t *testing.T) {
	auth := newTestAuth(t)
	owner := register(t, auth, "boss@b.ke")
	ctx := context.Background()

	staff, err := auth.CreateStaff(ctx, owner, domain.StaffCreateRequest{Name: "Kiosk", Email: "kiosk@b.ke", Password: "secret123"})
	require.NoError(t, err)
	require.Equal(t, domain.RoleStaff, staff.Role)
	require.Equal(t, owner.BusinessID, staff.BusinessID)

	staffActor := actorOf(staff)
	_, err = auth.CreateStaff(ctx, staffActor, domain.StaffCreateRequest{Name: "X", Email: "x@b.ke", Password: "secret123"})
	require.ErrorIs(t, err, service.ErrForbidden)
	_, err = auth.ListStaff(ctx, staffActor)
	require.ErrorIs(t, err, service.ErrForbidden)

	list, err := auth.ListStaff(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "kiosk@b.ke", list[0].Email)

	me, err := auth.Me(ctx, staffActor)
	require.NoError(t, err)
	require.Equal(t, "Kiosk", me.Name)
}

func TestEnsureOwnerIsIdempotent(t *testing.T) {
	auth := newTestAuth(t)
	req := domain.RegisterRequest{Name: "Demo", Email: "demo@biztrack.ke", Password: "secret123", BusinessName: "Demo Shop"}

	first, err := auth.EnsureOwner(context.Background(), req)
	require.NoError(t, err)
	second, err := auth.EnsureOwner(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, domain.RoleOwner, first.Role)
}
