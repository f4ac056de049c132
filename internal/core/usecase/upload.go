package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
	"github.com/kirillkom/doc-analytics/internal/core/ports"
	"github.com/kirillkom/doc-analytics/internal/health"
)

const (
	uploadKeyPrefix   = "uploads/"
	defaultPresignTTL = 30 * time.Minute
)

type UploadObjectUseCase struct {
	blobs      ports.BlobStore
	objects    ports.ObjectRepository
	readiness  ports.ReadinessChecker
	metrics    ports.IngestMetrics
	presignTTL time.Duration
	now        func() time.Time
}

func NewUploadObjectUseCase(
	blobs ports.BlobStore,
	objects ports.ObjectRepository,
	readiness ports.ReadinessChecker,
	metrics ports.IngestMetrics,
	presignTTL time.Duration,
) *UploadObjectUseCase {
	if presignTTL <= 0 {
		presignTTL = defaultPresignTTL
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &UploadObjectUseCase{
		blobs:      blobs,
		objects:    objects,
		readiness:  readiness,
		metrics:    metrics,
		presignTTL: presignTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (uc *UploadObjectUseCase) Upload(ctx context.Context, req domain.UploadRequest) (*domain.ObjectView, error) {
	if req.Body == nil {
		return nil, domain.WrapError(domain.ErrValidation, "upload object", errors.New("file body is required"))
	}
	if err := uc.ensureReady(); err != nil {
		uc.metrics.RecordUpload("unavailable", 0)
		return nil, err
	}

	key := uploadKeyPrefix + uuid.NewString() + "_" + sanitizeFilename(req.Filename)
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := uc.blobs.Put(ctx, key, contentType, req.Body, req.Size); err != nil {
		uc.metrics.RecordUpload("error", 0)
		return nil, storageError("put object", err)
	}

	info, err := uc.blobs.Head(ctx, key)
	if err != nil {
		uc.metrics.RecordUpload("error", 0)
		return nil, storageError("head object", err)
	}
	if info.ContentType != "" {
		contentType = info.ContentType
	}

	obj := &domain.StoredObject{
		Bucket:      uc.blobs.Bucket(),
		Key:         key,
		ContentType: contentType,
		Size:        info.Size,
		ETag:        info.ETag,
		Source:      strings.TrimSpace(req.Source),
		CreatedAt:   uc.now(),
	}
	if err := uc.objects.Create(ctx, obj); err != nil {
		uc.metrics.RecordUpload("error", 0)
		if domain.IsKind(err, domain.ErrPersistence) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrPersistence, "create object metadata", err)
	}
	uc.metrics.RecordUpload("success", obj.Size)

	// The object is stored; a missing link can be fetched again via GetObject.
	url, err := uc.blobs.PresignGet(ctx, key, uc.presignTTL)
	if err != nil {
		slog.Warn("upload_presign_failed", "key", key, "error", err)
		url = ""
	}
	return &domain.ObjectView{StoredObject: *obj, URL: url}, nil
}

func (uc *UploadObjectUseCase) ensureReady() error {
	if uc.readiness == nil || uc.readiness.IsReady(health.ComponentBlob) {
		return nil
	}
	return domain.WrapError(domain.ErrStorageUnavailable, "upload object", fmt.Errorf("blob store %q is not ready", uc.blobs.Bucket()))
}

func storageError(operation string, err error) error {
	if domain.IsKind(err, domain.ErrStorageUnavailable) {
		return err
	}
	return domain.WrapError(domain.ErrStorageUnavailable, operation, err)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "file.bin"
	}
	return base
}
