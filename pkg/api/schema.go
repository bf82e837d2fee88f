package api

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// registerVaultSchema validates POST /register-vault bodies before they
// reach the handler. wallet_id is the boundary alias some clients post;
// exactly one of the two identity fields must be present.
const registerVaultSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "owner_id": {
      "type": "string",
      "minLength": 1,
      "maxLength": 256
    },
    "wallet_id": {
      "type": "string",
      "minLength": 1,
      "maxLength": 256
    }
  },
  "oneOf": [
    {"required": ["owner_id"]},
    {"required": ["wallet_id"]}
  ],
  "additionalProperties": false
}`

func compileSchema(name, schema string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://sentinel.schemas.local/%s.schema.json", name)
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("schema load failed: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema compile failed: %w", err)
	}
	return compiled, nil
}
