package options

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeError reports a malformed encoded payload or option value
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodePayload decodes a CLI payload of the form <marker><base64(json object)>.
// The first character is a marker and is dropped; quotes left around the
// base64 body (e.g. b'...') are tolerated. An empty value decodes to an
// empty mapping.
func DecodePayload(field, value string) (map[string]interface{}, error) {
	if value == "" {
		return map[string]interface{}{}, nil
	}

	body := strings.Trim(value[1:], "'\" \n\t")
	if body == "" {
		return map[string]interface{}{}, nil
	}

	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, &DecodeError{Field: field, Err: fmt.Errorf("base64: %w", err)}
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &DecodeError{Field: field, Err: fmt.Errorf("json: %w", err)}
	}

	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, &DecodeError{Field: field, Err: fmt.Errorf("expected a JSON object, got %T", decoded)}
	}
	return obj, nil
}

// EncodePayload is the inverse of DecodePayload, using "b" as the marker
func EncodePayload(v map[string]interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return "b" + base64.StdEncoding.EncodeToString(data), nil
}
