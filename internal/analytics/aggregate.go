package analytics

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"biztrack/backend/internal/domain"
	"biztrack/backend/internal/store"
)

const topCustomerLimit = 5

// Aggregator computes a SalesSummary from a single store scan so that every
// figure in the bundle shares one tenant filter, one window and one snapshot.
type Aggregator struct {
	sales  store.SaleScanner
	logger *zap.Logger
}

func NewAggregator(sales store.SaleScanner, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{sales: sales, logger: logger}
}

type customerTally struct {
	id     string
	name   string
	total  decimal.Decimal
	orders int64
}

type dayTally struct {
	day   string
	total decimal.Decimal
}

// Summarize folds every sale of businessID inside w into the summary bundle.
// An empty window is not an error. A failed scan returns no bundle at all.
func (a *Aggregator) Summarize(ctx context.Context, businessID string, w Window) (domain.SalesSummary, error) {
	if strings.TrimSpace(businessID) == "" {
		return domain.SalesSummary{}, store.ErrInvalidInput
	}

	var (
		total     decimal.Decimal
		count     int64
		payments  = map[string]*domain.PaymentBreakdown{}
		customers = map[string]*customerTally{}
		days      = map[string]*dayTally{}
	)

	err := a.sales.ScanSales(ctx, businessID, w.Start, w.End, func(rec domain.SaleRecord) error {
		// Rows outside the tenant or window never count, whatever the store yields.
		if rec.BusinessID != businessID || !w.Contains(rec.CreatedAt) {
			return nil
		}

		total = total.Add(rec.Amount)
		count++

		method := paymentLabel(rec.PaymentMethod)
		bucket := payments[method]
		if bucket == nil {
			bucket = &domain.PaymentBreakdown{Method: method}
			payments[method] = bucket
		}
		bucket.Count++
		bucket.Total = bucket.Total.Add(rec.Amount)

		if rec.CustomerID != "" {
			tally := customers[rec.CustomerID]
			if tally == nil {
				tally = &customerTally{id: rec.CustomerID, name: rec.CustomerName}
				customers[rec.CustomerID] = tally
			}
			tally.total = tally.total.Add(rec.Amount)
			tally.orders++
		}

		day := w.Day(rec.CreatedAt)
		dt := days[day]
		if dt == nil {
			dt = &dayTally{day: day}
			days[day] = dt
		}
		dt.total = dt.total.Add(rec.Amount)
		return nil
	})
	if err != nil {
		if !errors.Is(err, store.ErrUnavailable) && ctx.Err() == nil {
			err = store.Unavailable("summarize sales", err)
		}
		a.logger.Error("sales summary scan failed",
			zap.String("business_id", businessID),
			zap.String("range", w.Period),
			zap.Error(err))
		return domain.SalesSummary{}, err
	}

	summary := domain.SalesSummary{
		Range:        w.Period,
		StartDay:     w.StartDay(),
		EndDay:       w.EndDay(),
		PeriodTotal:  total,
		SalesCount:   count,
		Payments:     sortedPayments(payments),
		TopCustomers: topCustomers(customers, topCustomerLimit),
		BestDay:      bestDay(days),
	}
	switch w.Period {
	case PeriodToday:
		summary.TodayTotal = total
	case Period7d:
		summary.WeekTotal = total
	case Period30d:
		summary.MonthTotal = total
	}

	a.logger.Debug("sales summary computed",
		zap.String("business_id", businessID),
		zap.String("range", w.Period),
		zap.Int64("sales", count),
		zap.String("total", total.StringFixed(2)))

	return summary, nil
}

func paymentLabel(method string) string {
	method = strings.TrimSpace(method)
	if method == "" {
		return domain.UnknownPaymentMethod
	}
	return method
}

func sortedPayments(buckets map[string]*domain.PaymentBreakdown) []domain.PaymentBreakdown {
	out := make([]domain.PaymentBreakdown, 0, len(buckets))
	for _, bucket := range buckets {
		out = append(out, *bucket)
	}
	slices.SortFunc(out, func(a, b domain.PaymentBreakdown) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Method, b.Method)
	})
	return out
}

// topCustomers orders by spend descending and breaks ties on customer id so
// identical data always yields the same list.
func topCustomers(tallies map[string]*customerTally, limit int) []domain.TopCustomer {
	ranked := make([]*customerTally, 0, len(tallies))
	for _, tally := range tallies {
		ranked = append(ranked, tally)
	}
	slices.SortFunc(ranked, func(a, b *customerTally) int {
		if c := b.total.Cmp(a.total); c != 0 {
			return c
		}
		return strings.Compare(a.id, b.id)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]domain.TopCustomer, 0, len(ranked))
	for _, tally := range ranked {
		out = append(out, domain.TopCustomer{
			CustomerID: tally.id,
			Name:       tally.name,
			TotalSpent: tally.total,
			Orders:     tally.orders,
		})
	}
	return out
}

// bestDay picks the highest-grossing day; the earliest day wins a tie.
func bestDay(days map[string]*dayTally) *domain.BestDay {
	var best *dayTally
	for _, dt := range days {
		if best == nil {
			best = dt
			continue
		}
		c := dt.total.Cmp(best.total)
		if c > 0 || (c == 0 && dt.day < best.day) {
			best = dt
		}
	}
	if best == nil {
		return nil
	}
	return &domain.BestDay{Day: best.day, Total: best.total}
}
