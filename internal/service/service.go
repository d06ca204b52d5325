package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"biztrack/backend/internal/analytics"
	"biztrack/backend/internal/domain"
	"biztrack/backend/internal/store"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("insufficient role")
)

const (
	defaultSalesLimit = 100
	maxSalesLimit     = 500

	// Exponent bounds keep every rescale below on small numbers.
	minAmountExponent = -18
	maxAmountExponent = 10
	maxAmountBits     = 128
)

// maxSaleAmount is the largest value a NUMERIC(12,2) column holds.
var maxSaleAmount = decimal.New(999999999999, -2)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	resolver   analytics.Resolver
	aggregator *analytics.Aggregator
	exporter   *analytics.Exporter
	now        func() time.Time
	logger     *zap.Logger
}

// New wires the analytics engine to repo. Day boundaries for every report
// fall on midnight in loc.
func New(repo store.Repository, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		resolver:   analytics.NewResolver(loc),
		aggregator: analytics.NewAggregator(repo, logger.Named("aggregator")),
		exporter:   analytics.NewExporter(repo, logger.Named("exporter")),
		now:        time.Now,
		logger:     logger,
	}
}

func (s *Service) actor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.BusinessID == "" || actor.UserID == "" {
		return domain.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.Customer{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, fmt.Errorf("%w: customer name is required", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		BusinessID: actor.BusinessID,
		Name:       req.Name,
		Phone:      strings.TrimSpace(req.Phone),
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCustomers(ctx, actor.BusinessID)
}

// CreateSale records a sale for the caller's business. Tenant and author
// always come from the caller, never from the request body.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	if req.Amount == nil {
		return domain.Sale{}, fmt.Errorf("%w: amount is required", store.ErrInvalidInput)
	}
	amount, err := validateAmount(*req.Amount)
	if err != nil {
		return domain.Sale{}, err
	}

	sale := domain.Sale{
		BusinessID: actor.BusinessID,
		Amount:     amount,
		CreatedBy:  actor.UserID,
	}
	if req.PaymentMethod != nil {
		sale.PaymentMethod = normalizePaymentMethod(*req.PaymentMethod)
	}
	if req.CustomerID != nil {
		sale.CustomerID = strings.TrimSpace(*req.CustomerID)
	}
	if sale.CustomerID != "" {
		if _, err := s.repo.GetCustomer(ctx, actor.BusinessID, sale.CustomerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Sale{}, fmt.Errorf("%w: unknown customer", store.ErrInvalidInput)
			}
			return domain.Sale{}, err
		}
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logger.Info("sale recorded",
		zap.String("business_id", created.BusinessID),
		zap.String("sale_id", created.ID),
		zap.String("amount", created.Amount.StringFixed(2)),
		zap.String("payment_method", created.PaymentMethod))
	return *created, nil
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = defaultSalesLimit
	}
	if limit > maxSalesLimit {
		limit = maxSalesLimit
	}
	return s.repo.ListSales(ctx, actor.BusinessID, limit)
}

// Summary resolves period against the service clock and aggregates the
// caller's sales inside it.
func (s *Service) Summary(ctx context.Context, period string) (domain.SalesSummary, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	w, err := s.resolver.Resolve(period, s.now())
	if err != nil {
		return domain.SalesSummary{}, err
	}
	return s.aggregator.Summarize(ctx, actor.BusinessID, w)
}

// ExportWindow validates period before anything is written to the client.
func (s *Service) ExportWindow(period string) (analytics.Window, error) {
	return s.resolver.ResolveExport(period, s.now())
}

func (s *Service) ExportSales(ctx context.Context, w analytics.Window, out io.Writer) (int, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return 0, err
	}
	return s.exporter.WriteCSV(ctx, out, actor.BusinessID, w)
}

// validateAmount checks the magnitude and scale of a sale amount using only
// the exponent and coefficient size before doing any decimal arithmetic.
// Values like 1e50000000 would otherwise expand into enormous integers.
func validateAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: amount must not be negative", store.ErrInvalidInput)
	}
	if amount.IsZero() {
		return decimal.Zero, nil
	}

	exp := amount.Exponent()
	if exp > maxAmountExponent || amount.Coefficient().BitLen() > maxAmountBits {
		return decimal.Decimal{}, fmt.Errorf("%w: amount must not exceed %s", store.ErrInvalidInput, maxSaleAmount.StringFixed(2))
	}
	if exp < minAmountExponent {
		return decimal.Decimal{}, fmt.Errorf("%w: amount allows at most 2 decimal places", store.ErrInvalidInput)
	}

	if amount.GreaterThan(maxSaleAmount) {
		return decimal.Decimal{}, fmt.Errorf("%w: amount must not exceed %s", store.ErrInvalidInput, maxSaleAmount.StringFixed(2))
	}
	rounded := amount.Round(2)
	if !amount.Equal(rounded) {
		return decimal.Decimal{}, fmt.Errorf("%w: amount allows at most 2 decimal places", store.ErrInvalidInput)
	}
	return rounded, nil
}

func normalizePaymentMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}

func amountOf(value int64) *decimal.Decimal {
	d := decimal.NewFromInt(value)
	return &d
}
