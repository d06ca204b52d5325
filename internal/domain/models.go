package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleOwner = "owner"
	RoleStaff = "staff"
)

// UnknownPaymentMethod labels sales recorded without a payment method.
const UnknownPaymentMethod = "Unknown/Other"

type Business struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID           string    `json:"id"`
	BusinessID   string    `json:"business_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

type Customer struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"-"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone,omitempty"`
	Email      string    `json:"email,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Sale is insert-only. An empty PaymentMethod or CustomerID means the value
// was not recorded; stores persist both as NULL.
type Sale struct {
	ID            string
	BusinessID    string
	Amount        decimal.Decimal
	PaymentMethod string
	CustomerID    string
	CreatedBy     string
	CreatedAt     time.Time
}

// SaleRecord is a sale left-joined with the name of its customer, the row
// shape produced by the store scan.
type SaleRecord struct {
	Sale
	CustomerName string
}

// Actor is the authenticated caller. BusinessID scopes every read and write.
type Actor struct {
	UserID     string
	BusinessID string
	Email      string
	Role       string
}

type RegisterRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	BusinessName string `json:"business_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type StaffCreateRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type SaleCreateRequest struct {
	Amount        *decimal.Decimal `json:"amount"`
	PaymentMethod *string          `json:"payment_method"`
	CustomerID    *string          `json:"customer_id"`
}

type PaymentBreakdown struct {
	Method string
	Count  int64
	Total  decimal.Decimal
}

type TopCustomer struct {
	CustomerID string
	Name       string
	TotalSpent decimal.Decimal
	Orders     int64
}

type BestDay struct {
	Day   string
	Total decimal.Decimal
}

// SalesSummary is the reporting bundle for one resolved window. Only the
// total slot matching Range carries PeriodTotal; the other two stay zero.
type SalesSummary struct {
	Range        string
	StartDay     string
	EndDay       string
	PeriodTotal  decimal.Decimal
	TodayTotal   decimal.Decimal
	WeekTotal    decimal.Decimal
	MonthTotal   decimal.Decimal
	SalesCount   int64
	Payments     []PaymentBreakdown
	TopCustomers []TopCustomer
	BestDay      *BestDay
}
