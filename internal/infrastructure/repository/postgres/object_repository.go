package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
)

type ObjectRepository struct {
	db *sql.DB
}

func NewObjectRepository(db *sql.DB) *ObjectRepository {
	return &ObjectRepository{db: db}
}

func (r *ObjectRepository) Create(ctx context.Context, obj *domain.StoredObject) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO stored_objects (bucket, key, content_type, size, etag, source, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		obj.Bucket, obj.Key, obj.ContentType, obj.Size, obj.ETag, nullIfEmpty(obj.Source), obj.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrConflict, "insert stored object", err)
		}
		return domain.WrapError(domain.ErrPersistence, "insert stored object", err)
	}
	return nil
}

func (r *ObjectRepository) GetByKey(ctx context.Context, bucket, key string) (*domain.StoredObject, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT bucket, key, content_type, size, etag, source, created_at
FROM stored_objects
WHERE bucket = $1 AND key = $2
`, bucket, key)

	var (
		obj    domain.StoredObject
		source sql.NullString
	)
	err := row.Scan(&obj.Bucket, &obj.Key, &obj.ContentType, &obj.Size, &obj.ETag, &source, &obj.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrObjectNotFound, "get stored object", fmt.Errorf("key=%s", key))
		}
		return nil, domain.WrapError(domain.ErrPersistence, "scan stored object", err)
	}
	obj.Source = source.String
	return &obj, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
