package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSONObject reports that no decodable JSON object was found in the
// model output.
var ErrNoJSONObject = errors.New("no valid JSON object in model output")

var fencedJSONPattern = regexp.MustCompile("(?i)```(?:json)?\\s*(\\{[\\s\\S]*\\})\\s*```")

// DecodeObject decodes the first JSON object from raw model text. It tries
// a direct decode, then the content of a fenced code block, then the first
// decodable object embedded in surrounding prose.
func DecodeObject(raw string) (map[string]any, error) {
	if obj := decodeWholeObject(strings.TrimSpace(raw)); obj != nil {
		return obj, nil
	}
	if m := fencedJSONPattern.FindStringSubmatch(raw); m != nil {
		if obj := decodeWholeObject(strings.TrimSpace(m[1])); obj != nil {
			return obj, nil
		}
	}
	if obj := decodeEmbeddedObject(raw); obj != nil {
		return obj, nil
	}
	return nil, ErrNoJSONObject
}

// decodeWholeObject decodes text as a single JSON object with nothing
// trailing. Numbers stay json.Number so round-tripping keeps the literal.
func decodeWholeObject(text string) map[string]any {
	if text == "" {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	if dec.More() {
		return nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return obj
}

// decodeEmbeddedObject scans for "{" and returns the first position where a
// complete object decodes, ignoring whatever follows it.
func decodeEmbeddedObject(raw string) map[string]any {
	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(raw[i:]))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			continue
		}
		if obj, ok := v.(map[string]any); ok {
			return obj
		}
	}
	return nil
}
