package handlers

import (
	"context"

	"github.com/invopop/jsonschema"

	"github.com/datadesk/datadesk/internal/models"
)

type GetSchemaRequest struct{}

func (r *GetSchemaRequest) Validate() error { return nil }

// SchemaResponse carries JSON Schemas of the API's core types, reflected
// from the Go structs so clients can generate bindings.
type SchemaResponse struct {
	Dataset        *jsonschema.Schema `json:"dataset"`
	Field          *jsonschema.Schema `json:"field"`
	DuplicateMatch *jsonschema.Schema `json:"duplicateMatch"`
}

// GetSchema reflects the core model types into JSON Schema.
func (s *Services) GetSchema(ctx context.Context, req *GetSchemaRequest) (*SchemaResponse, error) {
	r := &jsonschema.Reflector{DoNotReference: true}
	return &SchemaResponse{
		Dataset:        r.Reflect(&models.Dataset{}),
		Field:          r.Reflect(&models.FieldDefinition{}),
		DuplicateMatch: r.Reflect(&models.DuplicateMatch{}),
	}, nil
}
