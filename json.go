// JSON codec used throughout the engine. goccy/go-json is a drop-in
// replacement for encoding/json with a faster decoder, which matters
// on the rebuild-from-log and scan hot paths.
package zds

import (
	json "github.com/goccy/go-json"
)

func jsonMarshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
