package util

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// StringifyValue renders a JSON value in the form used for ${name} parameter
// binding: bare strings for JSON strings would lose their quoting, so the
// canonical JSON encoding is used for every type (numbers render as 3,
// strings as "ok", objects and arrays as compact JSON).
func StringifyValue(v any) string {
	switch val := v.(type) {
	case json.RawMessage:
		return string(val)
	case nil:
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// MergeExtraBody shallow-merges the keys of extra into the serialized request
// body. Keys in extra override keys already present in body. A nil or
// non-object extra leaves body untouched.
func MergeExtraBody(body []byte, extra json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return body, nil
	}
	parsed := gjson.ParseBytes(extra)
	if !parsed.IsObject() {
		return body, nil
	}

	merged := body
	var err error
	parsed.ForEach(func(key, value gjson.Result) bool {
		merged, err = sjson.SetRawBytes(merged, key.String(), []byte(value.Raw))
		return err == nil
	})
	if err != nil {
		return nil, fmt.Errorf("merge extra body: %w", err)
	}
	return merged, nil
}
