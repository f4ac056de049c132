package httpadapter

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
)

const (
	idempotencyKeyHeader  = "Idempotency-Key"
	maxIdempotencyKeySize = 200
	defaultMaxIngestBody  = 8 << 20
	xlsxContentType       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (rt *Router) ingestRecords(w http.ResponseWriter, r *http.Request) {
	limit := rt.cfg.IngestMaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxIngestBody
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read request body"})
		return
	}

	batch, err := rt.schema.decodeBatch(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if len(key) > maxIdempotencyKeySize {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("%s must be at most %d bytes", idempotencyKeyHeader, maxIdempotencyKeySize),
		})
		return
	}

	result, err := rt.ingestor.Ingest(r.Context(), batch, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) sentimentSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := rt.reporter.CurrentSummary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) exportSentimentSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := rt.reporter.CurrentSummary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	book, err := summaryWorkbook(summary)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer func() {
		if err := book.Close(); err != nil {
			slog.Warn("close summary workbook", "error", err)
		}
	}()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="sentiment-summary.xlsx"`)
	w.WriteHeader(http.StatusOK)
	if err := book.Write(w); err != nil {
		slog.Warn("write summary workbook", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
}

func summaryWorkbook(summary domain.SentimentSummary) (*excelize.File, error) {
	book := excelize.NewFile()
	const sheet = "Sentiment"
	if err := book.SetSheetName("Sheet1", sheet); err != nil {
		_ = book.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	rows := [][]any{
		{"class", "count"},
		{"n", summary.N},
		{string(domain.LabelPositive), summary.Pos},
		{string(domain.LabelNegative), summary.Neg},
		{string(domain.LabelNeutral), summary.Neu},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			_ = book.Close()
			return nil, fmt.Errorf("cell name: %w", err)
		}
		if err := book.SetSheetRow(sheet, cell, &row); err != nil {
			_ = book.Close()
			return nil, fmt.Errorf("write summary row: %w", err)
		}
	}
	return book, nil
}
