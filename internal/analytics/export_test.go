package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"biztrack/backend/internal/domain"
	"biztrack/backend/internal/store"
)

func readCSV(t *testing.T, raw []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteCSVHeaderAndRows(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	scanner := &sliceScanner{records: []domain.SaleRecord{
		sale("s2", "800", "cash", "", "", time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)),
		sale("s1", "1500.5", "mpesa", "c-john", "John Doe", time.Date(2026, 10, 16, 8, 30, 0, 0, time.UTC)),
	}}

	var out bytes.Buffer
	n, err := NewExporter(scanner, zaptest.NewLogger(t)).WriteCSV(context.Background(), &out, shopID, resolve(t, PeriodToday, now))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rows := readCSV(t, out.Bytes())
	require.Equal(t, [][]string{
		CSVHeader,
		{"s2", "800.00", "cash", "", "", "2026-10-16T09:00:00Z"},
		{"s1", "1500.50", "mpesa", "c-john", "John Doe", "2026-10-16T08:30:00Z"},
	}, rows)
}

func TestWriteCSVEmptyWindowWritesHeaderOnly(t *testing.T) {
	var out bytes.Buffer
	n, err := NewExporter(&sliceScanner{}, nil).WriteCSV(context.Background(), &out, shopID, resolve(t, Period30d, time.Now()))
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, [][]string{CSVHeader}, readCSV(t, out.Bytes()))
}

func TestWriteCSVBlanksNameForWalkIn(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	orphan := sale("s1", "10", "cash", "", "Stale Name", now.Add(-time.Minute))
	scanner := &sliceScanner{records: []domain.SaleRecord{orphan}}

	var out bytes.Buffer
	_, err := NewExporter(scanner, nil).WriteCSV(context.Background(), &out, shopID, resolve(t, PeriodToday, now))
	require.NoError(t, err)
	rows := readCSV(t, out.Bytes())
	require.Equal(t, "", rows[1][4])
}

func TestWriteCSVErrorBeforeFirstFlushWritesNothing(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	scanner := &sliceScanner{
		records:   []domain.SaleRecord{sale("s1", "10", "cash", "", "", now.Add(-time.Minute))},
		failAfter: 1,
		failErr:   errors.New("read timeout"),
	}

	var out bytes.Buffer
	n, err := NewExporter(scanner, zaptest.NewLogger(t)).WriteCSV(context.Background(), &out, shopID, resolve(t, PeriodToday, now))
	require.ErrorIs(t, err, store.ErrUnavailable)
	require.Equal(t, 1, n)
	require.Zero(t, out.Len())
}

func TestWriteCSVLargeRowsStayBufferedUntilFlush(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	longName := strings.Repeat("n", 20<<10)
	records := make([]domain.SaleRecord, 0, 5)
	for i := 0; i < 5; i++ {
		records = append(records, sale(fmt.Sprintf("s%d", i), "1", "cash", fmt.Sprintf("c%d", i), longName, now.Add(-time.Duration(i+1)*time.Minute)))
	}
	scanner := &sliceScanner{records: records, failAfter: 4, failErr: errors.New("read timeout")}

	var out bytes.Buffer
	n, err := NewExporter(scanner, zaptest.NewLogger(t)).WriteCSV(context.Background(), &out, shopID, resolve(t, PeriodToday, now))
	require.ErrorIs(t, err, store.ErrUnavailable)
	require.Equal(t, 4, n)
	require.Zero(t, out.Len())
}

func TestWriteCSVEscapesFormulaCells(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	scanner := &sliceScanner{records: []domain.SaleRecord{
		sale("s4", "1", "@sum(a1)", "c4", "Plain Name", now.Add(-1*time.Minute)),
		sale("s3", "1", "cash", "c3", "+254700000001", now.Add(-2*time.Minute)),
		sale("s2", "1", "-mpesa", "c2", "-2+3", now.Add(-3*time.Minute)),
		sale("s1", "1", "mpesa", "c1", `=HYPERLINK("http://x")`, now.Add(-4*time.Minute)),
	}}

	var out bytes.Buffer
	_, err := NewExporter(scanner, nil).WriteCSV(context.Background(), &out, shopID, resolve(t, PeriodToday, now))
	require.NoError(t, err)

	rows := readCSV(t, out.Bytes())
	require.Len(t, rows, 5)
	require.Equal(t, []string{"'@sum(a1)", "Plain Name"}, []string{rows[1][2], rows[1][4]})
	require.Equal(t, []string{"cash", "'+254700000001"}, []string{rows[2][2], rows[2][4]})
	require.Equal(t, []string{"'-mpesa", "'-2+3"}, []string{rows[3][2], rows[3][4]})
	require.Equal(t, []string{"mpesa", `'=HYPERLINK("http://x")`}, []string{rows[4][2], rows[4][4]})
}

func TestWriteCSVErrorMidStreamKeepsFlushedRows(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	records := make([]domain.SaleRecord, 0, 5)
	for i := 0; i < 5; i++ {
		records = append(records, sale(fmt.Sprintf("s%d", i), "1", "cash", "", "", now.Add(-time.Duration(i+1)*time.Minute)))
	}
	scanner := &sliceScanner{records: records, failAfter: 3, failErr: errors.New("broken pipe")}

	exporter := NewExporter(scanner, nil)
	exporter.flushEvery = 2

	var out bytes.Buffer
	n, err := exporter.WriteCSV(context.Background(), &out, shopID, resolve(t, PeriodToday, now))
	require.ErrorIs(t, err, store.ErrUnavailable)
	require.Equal(t, 3, n)

	rows := readCSV(t, out.Bytes())
	require.Len(t, rows, 3)
	require.Equal(t, "s1", rows[2][0])
}

func TestRowsStopsScanOnBreak(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	scanner := &sliceScanner{records: []domain.SaleRecord{
		sale("s1", "1", "cash", "", "", now.Add(-time.Minute)),
		sale("s2", "1", "cash", "", "", now.Add(-2*time.Minute)),
		sale("s3", "1", "cash", "", "", now.Add(-3*time.Minute)),
	}}

	seen := 0
	for rec, err := range NewExporter(scanner, nil).Rows(context.Background(), shopID, resolve(t, PeriodToday, now)) {
		require.NoError(t, err)
		require.Equal(t, "s1", rec.ID)
		seen++
		break
	}
	require.Equal(t, 1, seen)
}

func TestRowsSkipsForeignTenant(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	foreign := sale("x1", "5", "cash", "", "", now.Add(-time.Minute))
	foreign.BusinessID = "biz-2"
	scanner := &sliceScanner{records: []domain.SaleRecord{foreign, sale("s1", "1", "cash", "", "", now.Add(-2*time.Minute))}}

	var ids []string
	for rec, err := range NewExporter(scanner, nil).Rows(context.Background(), shopID, resolve(t, PeriodToday, now)) {
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	require.Equal(t, []string{"s1"}, ids)
}

func TestRowsUnboundedExportIncludesOldSales(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	scanner := &sliceScanner{records: []domain.SaleRecord{
		sale("s1", "1", "cash", "", "", now.Add(-time.Minute)),
		sale("s0", "1", "cash", "", "", now.AddDate(-3, 0, 0)),
	}}
	w, err := NewResolver(eat).ResolveExport(PeriodAll, now)
	require.NoError(t, err)

	var out bytes.Buffer
	n, err := NewExporter(scanner, nil).WriteCSV(context.Background(), &out, shopID, w)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
