package httpadapter

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
)

//go:embed openapi.yaml
var openAPIDocument []byte

const recordBatchSchema = "RecordBatch"

// ingestSchema validates ingestion payloads against the RecordBatch schema
// of the embedded OpenAPI document before they are decoded into records.
type ingestSchema struct {
	batch *openapi3.Schema
}

func loadIngestSchema() (*ingestSchema, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPIDocument)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	ref, ok := doc.Components.Schemas[recordBatchSchema]
	if !ok || ref == nil || ref.Value == nil {
		return nil, fmt.Errorf("openapi document has no %s schema", recordBatchSchema)
	}
	return &ingestSchema{batch: ref.Value}, nil
}

func mustLoadIngestSchema() *ingestSchema {
	schema, err := loadIngestSchema()
	if err != nil {
		panic(err)
	}
	return schema
}

type recordPayload struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Label  *string `json:"label"`
}

func (s *ingestSchema) decodeBatch(raw []byte) ([]domain.Record, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "decode records", fmt.Errorf("invalid json: %w", err))
	}
	if err := s.batch.VisitJSON(generic); err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "validate records", schemaError(err))
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var payload []recordPayload
	if err := dec.Decode(&payload); err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "decode records", err)
	}

	batch := make([]domain.Record, 0, len(payload))
	for _, item := range payload {
		batch = append(batch, domain.Record{
			Source: item.Source,
			Text:   item.Text,
			Label:  item.Label,
		})
	}
	return batch, nil
}

func schemaError(err error) error {
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		path := schemaErr.JSONPointer()
		if len(path) > 0 {
			return fmt.Errorf("/%s: %s", strings.Join(path, "/"), schemaErr.Reason)
		}
		return errors.New(schemaErr.Reason)
	}
	return err
}
