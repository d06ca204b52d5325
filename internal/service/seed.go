package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"biztrack/backend/internal/analytics"
	"biztrack/backend/internal/domain"
	"biztrack/backend/internal/store"
)

type demoSale struct {
	amount   int64
	method   string
	customer string
}

var demoCustomers = []domain.CustomerCreateRequest{
	{Name: "John Doe", Phone: "+254700000001"},
	{Name: "Mary Wanjiku", Phone: "+254700000002"},
	{Name: "Brian Otieno", Phone: "+254700000003"},
}

var demoSales = []demoSale{
	{amount: 1500, method: "mpesa", customer: "John Doe"},
	{amount: 800, method: "cash", customer: "Mary Wanjiku"},
	{amount: 2200, method: "mpesa", customer: "John Doe"},
}

var errSalesPresent = errors.New("sales present")

// SeedDemo fills actor's business with demo customers and, when nothing was
// sold today yet, three sales for today. Running it again adds nothing.
func (s *Service) SeedDemo(ctx context.Context, actor domain.Actor) error {
	ctx = WithActor(ctx, actor)
	if _, err := s.actor(ctx); err != nil {
		return err
	}

	existing, err := s.repo.ListCustomers(ctx, actor.BusinessID)
	if err != nil {
		return err
	}
	idByName := make(map[string]string, len(existing))
	for _, customer := range existing {
		idByName[customer.Name] = customer.ID
	}

	for _, req := range demoCustomers {
		if _, ok := idByName[req.Name]; ok {
			continue
		}
		created, err := s.CreateCustomer(ctx, req)
		if err != nil {
			return err
		}
		idByName[created.Name] = created.ID
	}

	today, err := s.resolver.Resolve(analytics.PeriodToday, s.now())
	if err != nil {
		return err
	}
	err = s.repo.ScanSales(ctx, actor.BusinessID, today.Start, today.End, func(domain.SaleRecord) error {
		return errSalesPresent
	})
	if errors.Is(err, errSalesPresent) {
		s.logger.Info("demo sales already present", zap.String("business_id", actor.BusinessID))
		return nil
	}
	if err != nil {
		return err
	}

	for _, demo := range demoSales {
		method := demo.method
		customerID := idByName[demo.customer]
		if _, err := s.CreateSale(ctx, domain.SaleCreateRequest{
			Amount:        amountOf(demo.amount),
			PaymentMethod: &method,
			CustomerID:    &customerID,
		}); err != nil {
			if errors.Is(err, store.ErrInvalidInput) {
				s.logger.Warn("demo sale rejected", zap.String("customer", demo.customer), zap.Error(err))
				continue
			}
			return err
		}
	}

	s.logger.Info("demo data seeded",
		zap.String("business_id", actor.BusinessID),
		zap.Int("customers", len(demoCustomers)),
		zap.Int("sales", len(demoSales)))
	return nil
}
