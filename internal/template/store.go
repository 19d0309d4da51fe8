package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// mappingSchema is the bit-exact contract for the persisted mapping file.
// Loading validates against it before any Go-level checks so a foreign or
// hand-edited file fails with a schema error, not a confusing zero value.
const mappingSchema = `{
  "type": "object",
  "required": ["calibration_dpi", "page_count", "fields"],
  "properties": {
    "calibration_dpi": {"type": "integer", "minimum": 1},
    "page_count": {"type": "integer", "minimum": 1},
    "fields": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["field_id", "label", "page_index", "bbox", "field_type"],
        "properties": {
          "field_id": {"type": "string", "minLength": 1},
          "label": {"type": "string"},
          "page_index": {"type": "integer", "minimum": 0},
          "bbox": {
            "type": "array",
            "items": {"type": "integer"},
            "minItems": 4,
            "maxItems": 4
          },
          "field_type": {"type": "string"},
          "group_id": {"type": "string"}
        }
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("mapping.json", strings.NewReader(mappingSchema)); err != nil {
		panic(fmt.Sprintf("failed to load mapping schema: %v", err))
	}
	schema, err := compiler.Compile("mapping.json")
	if err != nil {
		panic(fmt.Sprintf("failed to compile mapping schema: %v", err))
	}
	return schema
}

// Save writes the mapping as indented JSON. The write goes through a temp
// file and rename so a crashed calibration never leaves a partial mapping
// behind.
func Save(path string, m *Mapping) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid mapping: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mapping-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp mapping file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write mapping: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close mapping file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace mapping file: %w", err)
	}
	return nil
}

// Load reads and validates a persisted mapping. Any schema violation,
// unknown field type, or broken geometric invariant makes the whole file
// unusable.
func Load(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes raw mapping JSON.
func Parse(data []byte) (*Mapping, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("mapping file is not valid JSON: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("mapping file does not match schema: %w", err)
	}

	var m Mapping
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode mapping: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mapping: %w", err)
	}
	return &m, nil
}
