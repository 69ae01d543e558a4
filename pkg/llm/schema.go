package llm

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/llm1_v1_1.json schemas/llm2_v1_1.json
var schemaFS embed.FS

// SchemaVersion is the response contract version both stages must declare.
const SchemaVersion = "1.1"

var (
	llm1Schema     *jsonschema.Schema
	llm2Schema     *jsonschema.Schema
	llm1SchemaJSON []byte
	llm2SchemaJSON []byte
)

func init() {
	llm1Schema, llm1SchemaJSON = mustCompileStrict("schemas/llm1_v1_1.json")
	llm2Schema, llm2SchemaJSON = mustCompileStrict("schemas/llm2_v1_1.json")
}

func mustCompileStrict(path string) (*jsonschema.Schema, []byte) {
	raw, err := schemaFS.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("read embedded schema %s: %v", path, err))
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		panic(fmt.Sprintf("decode embedded schema %s: %v", path, err))
	}
	strictify(doc)
	strict, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("encode strict schema %s: %v", path, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(path, bytes.NewReader(strict)); err != nil {
		panic(fmt.Sprintf("add schema resource %s: %v", path, err))
	}
	schema, err := compiler.Compile(path)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", path, err))
	}
	return schema, strict
}

// strictify closes every object schema: all declared properties become
// required and unknown keys are rejected, recursively. The same transform
// produces the strict response_format document handed to the provider.
func strictify(node any) {
	switch n := node.(type) {
	case map[string]any:
		if props, ok := n["properties"].(map[string]any); ok {
			keys := make([]string, 0, len(props))
			for k := range props {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			required := make([]any, len(keys))
			for i, k := range keys {
				required[i] = k
			}
			n["required"] = required
			n["additionalProperties"] = false
		}
		for _, v := range n {
			strictify(v)
		}
	case []any:
		for _, v := range n {
			strictify(v)
		}
	}
}

// ValidatePayload validates a decoded response object against the stage's
// strict schema.
func ValidatePayload(stage Stage, payload map[string]any) error {
	schema := llm1Schema
	if stage == StageLlm2 {
		schema = llm2Schema
	}
	if err := schema.Validate(map[string]any(payload)); err != nil {
		return fmt.Errorf("%s payload: %w", stage, err)
	}
	return nil
}

// ResponseSchemaJSON returns the strict schema document for the stage, for
// use as the provider's json_schema response format.
func ResponseSchemaJSON(stage Stage) json.RawMessage {
	if stage == StageLlm2 {
		return json.RawMessage(llm2SchemaJSON)
	}
	return json.RawMessage(llm1SchemaJSON)
}
