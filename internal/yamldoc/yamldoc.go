// Package yamldoc decodes YAML (and therefore JSON) documents into values
// that encoding/json and CUE can encode.
package yamldoc

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Decode parses raw and converts mappings with non-string keys, which
// yaml.v3 yields as map[interface{}]interface{}, into string-keyed maps
func Decode(raw []byte) (interface{}, error) {
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return normalize(doc), nil
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, item := range t {
			t[k] = normalize(item)
		}
		return t
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []interface{}:
		for i, item := range t {
			t[i] = normalize(item)
		}
		return t
	default:
		return v
	}
}
