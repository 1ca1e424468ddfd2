package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrValidation can be used with errors.Is to detect schema validation
// failures.
var ErrValidation = errors.New("validation failed")

// Validator holds one compiled JSON schema per generation type. Each
// schemas/<type>.v1.json file constrains the wire request accepted by
// POST /v1/generations for that pipeline.
type Validator struct {
	requestSchemas map[string]*jsonschema.Schema
}

// NewValidator loads and compiles all *.json schema files from schemaDir.
// The file stem (minus a .v1 suffix) names the generation type.
func NewValidator(schemaDir string) (*Validator, error) {
	entries, err := os.ReadDir(schemaDir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir %q: %w", schemaDir, err)
	}
	schemas := make(map[string]*jsonschema.Schema)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		genType := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		genType = strings.TrimSuffix(genType, ".v1")
		path := filepath.Join(schemaDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
		id := "https://couturelab.dev/schemas/" + genType + ".request"
		schemas[genType], err = jsonschema.CompileString(id, string(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", genType, err)
		}
	}
	if len(schemas) == 0 {
		return nil, fmt.Errorf("no schemas found in %q", schemaDir)
	}
	return &Validator{requestSchemas: schemas}, nil
}

// ValidateRequest performs hard reject: returns an error wrapping
// ErrValidation if the raw request body does not match the generation
// type's schema.
func (v *Validator) ValidateRequest(genType string, raw json.RawMessage) error {
	schema, ok := v.requestSchemas[genType]
	if !ok {
		return fmt.Errorf("unknown generation type %q", genType)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
