package valkey

import (
	"testing"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
)

func TestDecodeValue(t *testing.T) {
	res, err := decodeValue("3")
	if err != nil {
		t.Fatalf("decodeValue() error = %v", err)
	}
	if res == nil || res.Ingested != 3 {
		t.Fatalf("expected ingested=3, got %+v", res)
	}

	_, err = decodeValue(pendingValue)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for pending key, got %v", err)
	}

	if _, err := decodeValue("garbage"); err == nil || domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestStorageKeyIsNamespaced(t *testing.T) {
	if got := storageKey("abc"); got != "ingest:idem:abc" {
		t.Fatalf("unexpected key %q", got)
	}
}
