package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/soundforge/soundforge/pkg/models"
)

// catalogFileSchema validates catalog JSON files before decoding so loader
// errors point at the offending field instead of a half-decoded struct.
const catalogFileSchema = `{
	"type": "object",
	"required": ["types"],
	"properties": {
		"types": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "signature"],
				"properties": {
					"id": {
						"type": "object",
						"required": ["namespace", "name"],
						"properties": {
							"namespace": {"type": "string", "minLength": 1},
							"name": {"type": "string", "minLength": 1},
							"variant": {"type": "string"},
							"major_version": {"type": "integer", "minimum": 1}
						}
					},
					"display_name": {"type": "string"},
					"category": {"type": "string"},
					"description": {"type": "string"},
					"signature": {
						"type": "object",
						"properties": {
							"inputs": {"type": "array", "items": {"$ref": "#/definitions/pin"}},
							"outputs": {"type": "array", "items": {"$ref": "#/definitions/pin"}}
						}
					},
					"tags": {"type": "array", "items": {"type": "string"}}
				}
			}
		},
		"compatibility": {
			"type": "object",
			"additionalProperties": {
				"type": "array",
				"items": {"type": "string"}
			}
		}
	},
	"definitions": {
		"pin": {
			"type": "object",
			"required": ["name", "type"],
			"properties": {
				"name": {"type": "string", "minLength": 1},
				"type": {"type": "string", "minLength": 1},
				"required": {"type": "boolean"}
			}
		}
	}
}`

type catalogFile struct {
	Types         []*models.NodeType                     `json:"types"`
	Compatibility map[models.DataType][]models.DataType `json:"compatibility,omitempty"`
}

// LoadFile reads a catalog JSON file, validates it against the catalog
// schema and registers every node type (and extra compatibility rule) it
// contains. Entries with a zero major version default to 1.
func (c *StaticCatalog) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	if err := validateCatalogJSON(data); err != nil {
		return 0, fmt.Errorf("catalog file %s: %w", path, err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	for _, nt := range file.Types {
		if nt.ID.MajorVersion == 0 {
			nt.ID.MajorVersion = 1
		}

		if nt.DisplayName == "" {
			nt.DisplayName = nt.ID.Name
		}

		c.Register(nt)
	}

	for from, targets := range file.Compatibility {
		for _, to := range targets {
			c.Allow(from, to)
		}
	}

	return len(file.Types), nil
}

func validateCatalogJSON(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(catalogFileSchema)
	dataLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}

		return fmt.Errorf("schema validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}
