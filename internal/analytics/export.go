package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"biztrack/backend/internal/domain"
	"biztrack/backend/internal/store"
)

// CSVHeader is part of the export contract; clients parse by position.
var CSVHeader = []string{"id", "amount", "payment_method", "customer_id", "customer_name", "created_at"}

const defaultFlushEvery = 256

var errStopScan = errors.New("export consumer stopped")

type Exporter struct {
	sales      store.SaleScanner
	flushEvery int
	logger     *zap.Logger
}

func NewExporter(sales store.SaleScanner, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{sales: sales, flushEvery: defaultFlushEvery, logger: logger}
}

// Rows lazily yields the tenant's sales in w, newest first. Breaking out of
// the loop ends the underlying scan. A scan failure is yielded once as the
// final element.
func (e *Exporter) Rows(ctx context.Context, businessID string, w Window) iter.Seq2[domain.SaleRecord, error] {
	return func(yield func(domain.SaleRecord, error) bool) {
		if strings.TrimSpace(businessID) == "" {
			yield(domain.SaleRecord{}, store.ErrInvalidInput)
			return
		}

		err := e.sales.ScanSales(ctx, businessID, w.Start, w.End, func(rec domain.SaleRecord) error {
			if rec.BusinessID != businessID || !w.Contains(rec.CreatedAt) {
				return nil
			}
			if !yield(rec, nil) {
				return errStopScan
			}
			return nil
		})
		if err == nil || errors.Is(err, errStopScan) {
			return
		}
		if !errors.Is(err, store.ErrUnavailable) && ctx.Err() == nil {
			err = store.Unavailable("export sales", err)
		}
		yield(domain.SaleRecord{}, err)
	}
}

// WriteCSV streams the header and one line per sale to out. Rows collect in
// memory and are copied to out every flushEvery rows and at the end of the
// scan, so a failure before the first flush leaves out untouched however
// large the rows are.
func (e *Exporter) WriteCSV(ctx context.Context, out io.Writer, businessID string, w Window) (int, error) {
	var pending bytes.Buffer
	writer := csv.NewWriter(&pending)
	flush := func() error {
		writer.Flush()
		if err := writer.Error(); err != nil {
			return err
		}
		_, err := pending.WriteTo(out)
		return err
	}

	if err := writer.Write(CSVHeader); err != nil {
		return 0, err
	}

	written := 0
	for rec, err := range e.Rows(ctx, businessID, w) {
		if err != nil {
			e.logger.Error("sales export aborted",
				zap.String("business_id", businessID),
				zap.String("range", w.Period),
				zap.Int("rows_written", written),
				zap.Error(err))
			return written, err
		}
		if err := writer.Write(csvRecord(rec)); err != nil {
			return written, err
		}
		written++
		if written%e.flushEvery == 0 {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}

	if err := flush(); err != nil {
		return written, err
	}
	e.logger.Info("sales export completed",
		zap.String("business_id", businessID),
		zap.String("range", w.Period),
		zap.Int("rows", written))
	return written, nil
}

func csvRecord(rec domain.SaleRecord) []string {
	name := rec.CustomerName
	if rec.CustomerID == "" {
		name = ""
	}
	return []string{
		rec.ID,
		rec.Amount.StringFixed(2),
		spreadsheetSafe(rec.PaymentMethod),
		rec.CustomerID,
		spreadsheetSafe(name),
		rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// spreadsheetSafe prefixes free-text cells that a spreadsheet would evaluate
// as a formula.
func spreadsheetSafe(cell string) string {
	if cell == "" {
		return cell
	}
	switch cell[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + cell
	}
	return cell
}
