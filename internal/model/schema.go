package model

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const cubesSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {"type": "object"}
}`

const indicatorsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["series_info", "data"],
  "properties": {
    "series_info": {"type": "array", "items": {"$ref": "#/$defs/item"}},
    "data": {"type": "array", "items": {"$ref": "#/$defs/item"}}
  },
  "$defs": {
    "item": {
      "type": "object",
      "required": ["status"],
      "properties": {"status": {"type": "string"}}
    }
  }
}`

var snapshotSchemas = map[string]*jsonschema.Schema{
	SlotCubes:      jsonschema.MustCompileString("https://statcan.schemas.local/raw/cubes.json", cubesSchema),
	SlotIndicators: jsonschema.MustCompileString("https://statcan.schemas.local/raw/economic_indicators.json", indicatorsSchema),
}

// CheckSnapshot validates the shape of a raw snapshot for slot. Slots
// without a registered schema only need to be valid JSON.
func CheckSnapshot(slot string, raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedSnapshot, slot, err)
	}
	schema, ok := snapshotSchemas[slot]
	if !ok {
		return nil
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedSnapshot, slot, err)
	}
	return nil
}
