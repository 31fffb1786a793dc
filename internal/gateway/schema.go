package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildInvoiceJSONSchema returns the JSON-Schema the extraction model
// is asked to honor. It is also used locally to validate responses
// before they reach the rest of the pipeline.
func BuildInvoiceJSONSchema() map[string]any {
	itemProps := map[string]any{
		"description": nullable("string"),
		"quantity":    nullable("number"),
		"unit_price":  nullable("number"),
		"total_price": nullable("number"),
		"unit":        nullable("string"),
	}

	props := map[string]any{
		"invoice_number": nullable("string"),
		"invoice_date":   nullable("string"),
		"supplier_name":  nullable("string"),
		"supplier_ruc":   nullable("string"),
		"customer_name":  nullable("string"),
		"items": map[string]any{
			"type": []string{"array", "null"},
			"items": map[string]any{
				"type":       "object",
				"properties": itemProps,
			},
		},
		"subtotal":         nullable("number"),
		"tax":              nullable("number"),
		"total":            nullable("number"),
		"currency":         nullable("string"),
		"confidence_score": map[string]any{"type": "number"},
	}

	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"confidence_score"},
	}
}

func nullable(typ string) map[string]any {
	return map[string]any{"type": []string{typ, "null"}}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
