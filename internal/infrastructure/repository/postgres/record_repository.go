package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
)

// rowsPerStatement keeps a single INSERT well below the Postgres limit of
// 65535 bind parameters.
const rowsPerStatement = 1000

type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// InsertBatch writes every record inside one transaction. Nothing is visible
// to readers unless the whole batch commits.
func (r *RecordRepository) InsertBatch(ctx context.Context, batch []domain.Record) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, domain.WrapError(domain.ErrPersistence, "begin ingest tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	inserted := 0
	for start := 0; start < len(batch); start += rowsPerStatement {
		end := start + rowsPerStatement
		if end > len(batch) {
			end = len(batch)
		}
		query, args := buildInsert(batch[start:end])
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, domain.WrapError(domain.ErrPersistence, "insert records", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, domain.WrapError(domain.ErrPersistence, "insert records", err)
		}
		if affected != int64(end-start) {
			return 0, domain.WrapError(domain.ErrPersistence, "insert records",
				fmt.Errorf("inserted %d of %d rows", affected, end-start))
		}
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, domain.WrapError(domain.ErrPersistence, "commit ingest tx", err)
	}
	return inserted, nil
}

func buildInsert(rows []domain.Record) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO transcripts (source, text, label) VALUES ")
	args := make([]any, 0, len(rows)*3)
	for i, rec := range rows {
		if i > 0 {
			sb.WriteString(",")
		}
		n := i * 3
		fmt.Fprintf(&sb, "($%d,$%d,$%d)", n+1, n+2, n+3)

		var label any
		if rec.Label != nil {
			label = *rec.Label
		}
		args = append(args, rec.Source, rec.Text, label)
	}
	return sb.String(), args
}

func (r *RecordRepository) ListLabeled(ctx context.Context) ([]domain.LabeledText, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT text, label FROM transcripts ORDER BY id`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "query transcripts", err)
	}
	defer rows.Close()

	out := make([]domain.LabeledText, 0)
	for rows.Next() {
		var (
			text  string
			label sql.NullString
		)
		if err := rows.Scan(&text, &label); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan transcript", err)
		}
		row := domain.LabeledText{Text: text}
		if label.Valid {
			value := label.String
			row.Label = &value
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate transcripts", err)
	}
	return out, nil
}
