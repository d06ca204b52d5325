package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"biztrack/backend/internal/domain"
	"biztrack/backend/internal/service"
	"biztrack/backend/internal/store"
)

const (
	tokenIssuer       = "biztrack"
	minPasswordLength = 6
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// UserStore is the slice of the repository the auth manager needs.
type UserStore interface {
	RegisterBusiness(ctx context.Context, business domain.Business, owner domain.User) (*domain.Business, *domain.User, error)
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context, businessID string, role string) ([]domain.User, error)
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore
	now      func() time.Time
}

type accessClaims struct {
	jwtlib.RegisteredClaims
	BusinessID string `json:"business_id"`
	Role       string `json:"role"`
	Email      string `json:"email,omitempty"`
}

// NewAuthManager expects a secret that start-up validation already checked
// for length.
func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		now:      time.Now,
	}
}

// Register creates a business together with its owner account and signs the
// owner in.
func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest) (domain.TokenResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.TokenResponse{}, err
	}
	name := strings.TrimSpace(req.Name)
	businessName := strings.TrimSpace(req.BusinessName)
	if name == "" || businessName == "" {
		return domain.TokenResponse{}, fmt.Errorf("%w: name and business_name are required", store.ErrInvalidInput)
	}
	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.TokenResponse{}, err
	}

	_, owner, err := a.users.RegisterBusiness(ctx,
		domain.Business{Name: businessName},
		domain.User{Name: name, Email: email, PasswordHash: passwordHash, Role: domain.RoleOwner},
	)
	if err != nil {
		return domain.TokenResponse{}, err
	}
	return a.issue(*owner)
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.TokenResponse, error) {
	user, err := a.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenResponse{}, ErrInvalidCredentials
		}
		return domain.TokenResponse{}, err
	}
	if !verifyPassword(user.PasswordHash, req.Password) {
		return domain.TokenResponse{}, ErrInvalidCredentials
	}
	return a.issue(*user)
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &accessClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" || claims.BusinessID == "" {
		return domain.Actor{}, ErrInvalidToken
	}
	if claims.Role != domain.RoleOwner && claims.Role != domain.RoleStaff {
		return domain.Actor{}, ErrInvalidToken
	}
	return domain.Actor{
		UserID:     sub,
		BusinessID: claims.BusinessID,
		Email:      claims.Email,
		Role:       claims.Role,
	}, nil
}

func (a *AuthManager) Me(ctx context.Context, actor domain.Actor) (domain.User, error) {
	user, err := a.users.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return domain.User{}, err
	}
	if user.BusinessID != actor.BusinessID {
		return domain.User{}, store.ErrNotFound
	}
	return *user, nil
}

func (a *AuthManager) CreateStaff(ctx context.Context, actor domain.Actor, req domain.StaffCreateRequest) (domain.User, error) {
	if actor.Role != domain.RoleOwner {
		return domain.User{}, service.ErrForbidden
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.User{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.User{}, fmt.Errorf("%w: name is required", store.ErrInvalidInput)
	}
	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.User{}, err
	}

	created, err := a.users.CreateUser(ctx, domain.User{
		BusinessID:   actor.BusinessID,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         domain.RoleStaff,
	})
	if err != nil {
		return domain.User{}, err
	}
	return *created, nil
}

func (a *AuthManager) ListStaff(ctx context.Context, actor domain.Actor) ([]domain.User, error) {
	if actor.Role != domain.RoleOwner {
		return nil, service.ErrForbidden
	}
	return a.users.ListUsers(ctx, actor.BusinessID, domain.RoleStaff)
}

// EnsureOwner returns the owner registered under email, creating the
// business and account on first use.
func (a *AuthManager) EnsureOwner(ctx context.Context, req domain.RegisterRequest) (domain.Actor, error) {
	existing, err := a.users.GetUserByEmail(ctx, req.Email)
	switch {
	case err == nil:
		if existing.Role != domain.RoleOwner {
			return domain.Actor{}, fmt.Errorf("%w: %s is not an owner account", store.ErrConflict, existing.Email)
		}
		return actorOf(*existing), nil
	case !errors.Is(err, store.ErrNotFound):
		return domain.Actor{}, err
	}

	if _, err := a.Register(ctx, req); err != nil {
		return domain.Actor{}, err
	}
	owner, err := a.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return domain.Actor{}, err
	}
	return actorOf(*owner), nil
}

func (a *AuthManager) issue(user domain.User) (domain.TokenResponse, error) {
	now := a.now().UTC()
	expiresAt := now.Add(a.tokenTTL)
	claims := accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		BusinessID: user.BusinessID,
		Role:       user.Role,
		Email:      user.Email,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return domain.TokenResponse{}, err
	}

	return domain.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Role:        user.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func actorOf(user domain.User) domain.Actor {
	return domain.Actor{UserID: user.ID, BusinessID: user.BusinessID, Email: user.Email, Role: user.Role}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return "", fmt.Errorf("%w: a valid email is required", store.ErrInvalidInput)
	}
	return email, nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || input == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", store.ErrInvalidInput, minPasswordLength)
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password is too long", store.ErrInvalidInput)
		}
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
