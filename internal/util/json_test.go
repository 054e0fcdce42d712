package util

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringifyValue(t *testing.T) {
	assert.Equal(t, `"ok"`, StringifyValue("ok"))
	assert.Equal(t, "3", StringifyValue(3))
	assert.Equal(t, "3.5", StringifyValue(3.5))
	assert.Equal(t, "true", StringifyValue(true))
	assert.Equal(t, "null", StringifyValue(nil))
	assert.Equal(t, `{"a":1}`, StringifyValue(map[string]any{"a": 1}))
	assert.Equal(t, `[1,2]`, StringifyValue(json.RawMessage(`[1,2]`)))
}

func TestMergeExtraBody(t *testing.T) {
	body := []byte(`{"model":"m","temperature":0.2}`)

	merged, err := MergeExtraBody(body, json.RawMessage(`{"temperature":0.9,"seed":42}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"model":"m","temperature":0.9,"seed":42}`, string(merged))
}

func TestMergeExtraBodyEmpty(t *testing.T) {
	body := []byte(`{"model":"m"}`)

	merged, err := MergeExtraBody(body, nil)
	require.NoError(t, err)
	assert.Equal(t, body, merged)

	// A non-object extra is ignored rather than corrupting the body.
	merged, err = MergeExtraBody(body, json.RawMessage(`"nope"`))
	require.NoError(t, err)
	assert.Equal(t, body, merged)
}
