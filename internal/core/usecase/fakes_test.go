package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
)

// recordRepoFake keeps committed rows in memory and applies batches
// atomically, like a transaction would.
type recordRepoFake struct {
	mu      sync.Mutex
	rows    []domain.Record
	calls   int
	failErr error
	listErr error
	// afterInsert runs once the batch is applied, e.g. to cancel the caller.
	afterInsert func()
}

func (f *recordRepoFake) InsertBatch(_ context.Context, batch []domain.Record) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failErr != nil {
		return 0, f.failErr
	}
	f.rows = append(f.rows, batch...)
	if f.afterInsert != nil {
		f.afterInsert()
	}
	return len(batch), nil
}

func (f *recordRepoFake) ListLabeled(context.Context) ([]domain.LabeledText, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.LabeledText, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, domain.LabeledText{Text: r.Text, Label: r.Label})
	}
	return out, nil
}

type publisherFake struct {
	events []domain.RecordsIngested
	err    error
}

func (f *publisherFake) PublishRecordsIngested(ctx context.Context, event domain.RecordsIngested) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type idempotencyFake struct {
	pending  map[string]bool
	done     map[string]domain.IngestResult
	released []string
	err      error
}

func newIdempotencyFake() *idempotencyFake {
	return &idempotencyFake{pending: map[string]bool{}, done: map[string]domain.IngestResult{}}
}

func (f *idempotencyFake) Reserve(_ context.Context, key string) (*domain.IngestResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if res, ok := f.done[key]; ok {
		return &res, nil
	}
	if f.pending[key] {
		return nil, domain.WrapError(domain.ErrConflict, "reserve", errors.New(key))
	}
	f.pending[key] = true
	return nil, nil
}

func (f *idempotencyFake) Complete(ctx context.Context, key string, result domain.IngestResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(f.pending, key)
	f.done[key] = result
	return nil
}

func (f *idempotencyFake) Release(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(f.pending, key)
	f.released = append(f.released, key)
	return nil
}

type metricsFake struct {
	batches        map[string]int
	uploads        map[string]int
	publishFailure int
}

func newMetricsFake() *metricsFake {
	return &metricsFake{batches: map[string]int{}, uploads: map[string]int{}}
}

func (m *metricsFake) RecordIngestBatch(status string, _ int) { m.batches[status]++ }
func (m *metricsFake) RecordUpload(status string, _ int64)    { m.uploads[status]++ }
func (m *metricsFake) RecordEventPublishFailure()             { m.publishFailure++ }

type blobStoreFake struct {
	objects    map[string][]byte
	types      map[string]string
	putErr     error
	presignErr error
	presignURL string
}

func newBlobStoreFake() *blobStoreFake {
	return &blobStoreFake{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *blobStoreFake) Bucket() string                   { return "documents" }
func (f *blobStoreFake) EnsureBucket(context.Context) error { return nil }

func (f *blobStoreFake) Put(_ context.Context, key, contentType string, body io.Reader, _ int64) error {
	if f.putErr != nil {
		return f.putErr
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = raw
	f.types[key] = contentType
	return nil
}

func (f *blobStoreFake) Head(_ context.Context, key string) (domain.ObjectInfo, error) {
	raw, ok := f.objects[key]
	if !ok {
		return domain.ObjectInfo{}, errors.New("no such key")
	}
	return domain.ObjectInfo{Size: int64(len(raw)), ETag: "etag-1", ContentType: f.types[key]}, nil
}

func (f *blobStoreFake) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	if f.presignURL == "" {
		return "", nil
	}
	return f.presignURL + key, nil
}

type objectRepoFake struct {
	created map[string]domain.StoredObject
	err     error
}

func newObjectRepoFake() *objectRepoFake {
	return &objectRepoFake{created: map[string]domain.StoredObject{}}
}

func (f *objectRepoFake) Create(_ context.Context, obj *domain.StoredObject) error {
	if f.err != nil {
		return f.err
	}
	f.created[obj.Bucket+"/"+obj.Key] = *obj
	return nil
}

func (f *objectRepoFake) GetByKey(_ context.Context, bucket, key string) (*domain.StoredObject, error) {
	obj, ok := f.created[bucket+"/"+key]
	if !ok {
		return nil, domain.WrapError(domain.ErrObjectNotFound, "get object", errors.New(key))
	}
	return &obj, nil
}

type readinessFake map[string]bool

func (f readinessFake) IsReady(component string) bool { return f[component] }

func body(s string) io.Reader { return bytes.NewBufferString(s) }

func label(s string) *string { return &s }
