// Package output validates extraction results and writes them to disk.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zombor/invoice-extract/internal/invoice"
)

const resultSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["Invoice Details", "Tables"],
  "additionalProperties": false,
  "properties": {
    "Invoice Details": {
      "type": "object",
      "required": ["Vendor Name", "Invoice Date", "Invoice Number", "Total Amount"],
      "additionalProperties": false,
      "properties": {
        "Vendor Name": {"type": "string", "minLength": 1},
        "Invoice Date": {"type": "string", "minLength": 1},
        "Invoice Number": {"type": "string", "minLength": 1},
        "Total Amount": {"type": "string", "minLength": 1}
      }
    },
    "Tables": {
      "type": "array",
      "items": {
        "type": "array",
        "items": {
          "type": "array",
          "items": {"type": "string"}
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("result.json", bytes.NewReader([]byte(resultSchema))); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("result.json")
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// Validate checks that result serializes to the boundary shape: exactly the
// four field keys with string values and tables of rows of string cells.
func Validate(result *invoice.Result) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}
	s, err := compiled()
	if err != nil {
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("result does not match schema: %w", err)
	}
	return nil
}
