package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of the config document, served by the admin
// surface so UIs can validate edits before applying them.
func Schema() (json.RawMessage, error) {
	reflector := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: false,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&Config{})
	schema.Title = "Courier configuration"
	return json.Marshal(schema)
}
