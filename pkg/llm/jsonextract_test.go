package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeObject_Direct(t *testing.T) {
	obj, err := DecodeObject(`  {"a": 1, "b": "x"}  `)

	require.NoError(t, err)
	assert.Equal(t, "x", obj["b"])
}

func TestDecodeObject_Fenced(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"a\": {\"b\": 2}}\n```\nDone."
	obj, err := DecodeObject(raw)

	require.NoError(t, err)
	nested, ok := obj["a"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, nested, "b")
}

func TestDecodeObject_FencedWithoutLanguageTag(t *testing.T) {
	obj, err := DecodeObject("```\n{\"ok\": true}\n```")

	require.NoError(t, err)
	assert.Equal(t, true, obj["ok"])
}

func TestDecodeObject_EmbeddedInProse(t *testing.T) {
	raw := `The model decided {not json} but then {"suggestion": "accept"} trailing text`
	obj, err := DecodeObject(raw)

	require.NoError(t, err)
	assert.Equal(t, "accept", obj["suggestion"])
}

func TestDecodeObject_RejectsNonObjects(t *testing.T) {
	for _, raw := range []string{"", "   ", "[1,2,3]", `"just a string"`, "plain prose without braces"} {
		_, err := DecodeObject(raw)
		assert.ErrorIs(t, err, ErrNoJSONObject, "input %q", raw)
	}
}

func TestDecodeObject_DirectRejectsTrailingGarbage(t *testing.T) {
	// Direct decode is strict, so the embedded scan picks the object up.
	obj, err := DecodeObject(`{"a": 1} garbage`)

	require.NoError(t, err)
	assert.Contains(t, obj, "a")
}
