package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
	"github.com/kirillkom/doc-analytics/internal/core/ports"
)

type ObjectQueryUseCase struct {
	blobs      ports.BlobStore
	objects    ports.ObjectRepository
	presignTTL time.Duration
}

func NewObjectQueryUseCase(blobs ports.BlobStore, objects ports.ObjectRepository, presignTTL time.Duration) *ObjectQueryUseCase {
	if presignTTL <= 0 {
		presignTTL = defaultPresignTTL
	}
	return &ObjectQueryUseCase{blobs: blobs, objects: objects, presignTTL: presignTTL}
}

func (uc *ObjectQueryUseCase) GetObject(ctx context.Context, key string) (*domain.ObjectView, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.WrapError(domain.ErrValidation, "get object", errors.New("object key is required"))
	}

	obj, err := uc.objects.GetByKey(ctx, uc.blobs.Bucket(), key)
	if err != nil {
		return nil, err
	}

	url, err := uc.blobs.PresignGet(ctx, key, uc.presignTTL)
	if err != nil {
		return nil, storageError("presign object url", err)
	}
	return &domain.ObjectView{StoredObject: *obj, URL: url}, nil
}
