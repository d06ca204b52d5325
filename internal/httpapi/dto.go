package httpapi

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"biztrack/backend/internal/domain"
)

type saleResponse struct {
	ID            string      `json:"id"`
	Amount        json.Number `json:"amount"`
	PaymentMethod *string     `json:"payment_method"`
	CustomerID    *string     `json:"customer_id"`
	CreatedBy     string      `json:"created_by"`
	CreatedAt     time.Time   `json:"created_at"`
}

type paymentResponse struct {
	Method string      `json:"method"`
	Count  int64       `json:"count"`
	Total  json.Number `json:"total"`
}

type topCustomerResponse struct {
	CustomerID string      `json:"customer_id"`
	Name       string      `json:"name"`
	TotalSpent json.Number `json:"total_spent"`
	Orders     int64       `json:"orders"`
}

type bestDayResponse struct {
	Day   string      `json:"day"`
	Total json.Number `json:"total"`
}

type summaryResponse struct {
	Range        string                `json:"range"`
	StartDay     string                `json:"start_day"`
	EndDay       string                `json:"end_day"`
	PeriodTotal  json.Number           `json:"period_total"`
	TodayTotal   json.Number           `json:"today_total"`
	WeekTotal    json.Number           `json:"week_total"`
	MonthTotal   json.Number           `json:"month_total"`
	SalesCount   int64                 `json:"sales_count"`
	Payments     []paymentResponse     `json:"payments"`
	TopCustomers []topCustomerResponse `json:"top_customers"`
	BestDay      *bestDayResponse      `json:"best_day"`
}

func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func optional(val string) *string {
	if val == "" {
		return nil
	}
	return &val
}

func toSaleResponse(sale domain.Sale) saleResponse {
	return saleResponse{
		ID:            sale.ID,
		Amount:        money(sale.Amount),
		PaymentMethod: optional(sale.PaymentMethod),
		CustomerID:    optional(sale.CustomerID),
		CreatedBy:     sale.CreatedBy,
		CreatedAt:     sale.CreatedAt.UTC(),
	}
}

func toSummaryResponse(summary domain.SalesSummary) summaryResponse {
	out := summaryResponse{
		Range:        summary.Range,
		StartDay:     summary.StartDay,
		EndDay:       summary.EndDay,
		PeriodTotal:  money(summary.PeriodTotal),
		TodayTotal:   money(summary.TodayTotal),
		WeekTotal:    money(summary.WeekTotal),
		MonthTotal:   money(summary.MonthTotal),
		SalesCount:   summary.SalesCount,
		Payments:     make([]paymentResponse, 0, len(summary.Payments)),
		TopCustomers: make([]topCustomerResponse, 0, len(summary.TopCustomers)),
	}
	for _, p := range summary.Payments {
		out.Payments = append(out.Payments, paymentResponse{Method: p.Method, Count: p.Count, Total: money(p.Total)})
	}
	for _, tc := range summary.TopCustomers {
		out.TopCustomers = append(out.TopCustomers, topCustomerResponse{
			CustomerID: tc.CustomerID,
			Name:       tc.Name,
			TotalSpent: money(tc.TotalSpent),
			Orders:     tc.Orders,
		})
	}
	if summary.BestDay != nil {
		out.BestDay = &bestDayResponse{Day: summary.BestDay.Day, Total: money(summary.BestDay.Total)}
	}
	return out
}
