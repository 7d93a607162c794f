package backend

import (
	"fmt"

	"github.com/kaptinlin/jsonschema"

	"inquest/internal/domain"
	"inquest/internal/infra/config"
)

// SchemaIndex holds the compiled per-operation response schemas. Schemas
// are optional; operations without one accept any JSON object.
type SchemaIndex struct {
	schemas map[string]*jsonschema.Schema
}

// NewSchemaIndex compiles every declared response schema. A schema that
// does not compile is a registration-time error, not a call-time one.
func NewSchemaIndex(endpoints []config.EndpointConfig) (*SchemaIndex, error) {
	idx := &SchemaIndex{schemas: make(map[string]*jsonschema.Schema)}
	compiler := jsonschema.NewCompiler()

	for _, ep := range endpoints {
		for operation, doc := range ep.ResponseSchemas {
			schema, err := compiler.Compile([]byte(doc))
			if err != nil {
				return nil, domain.NewSubSystemError("backend", "SchemaIndex.New",
					domain.ErrInvalidEndpoint,
					fmt.Sprintf("%s/%s: invalid response schema: %v", ep.Name, operation, err))
			}
			idx.schemas[ep.Name+"|"+operation] = schema
		}
	}
	return idx, nil
}

// Validate checks a decoded response against the operation's schema and
// reports violations as protocol errors. No schema means no check.
func (i *SchemaIndex) Validate(endpoint, operation string, data map[string]any) error {
	if i == nil {
		return nil
	}
	schema, ok := i.schemas[endpoint+"|"+operation]
	if !ok {
		return nil
	}
	result := schema.Validate(data)
	if !result.IsValid() {
		return fmt.Errorf("%w: %s/%s: %s", domain.ErrProtocol, endpoint, operation, result.Error())
	}
	return nil
}
