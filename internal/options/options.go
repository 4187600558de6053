package options

import (
	"fmt"
	"sort"
)

// Recognised operational option keys
const (
	KeyToplevel      = "toplevel"
	KeyInitDir       = "initdir"
	KeyInitFiles     = "initfiles"
	KeyAcceptMetadir = "accept_metadir"
)

// OperationalOptions is the typed form of the operational options bag.
// Keys the runner does not recognise are kept in Passthrough for the engine.
type OperationalOptions struct {
	Toplevel      string
	InitDir       string
	InitFiles     []string
	AcceptMetadir bool
	Passthrough   map[string]interface{}
}

// ParseOperationalOptions validates the recognised keys of raw once, at the boundary
func ParseOperationalOptions(raw map[string]interface{}) (*OperationalOptions, error) {
	opts := &OperationalOptions{Passthrough: make(map[string]interface{})}

	for key, value := range raw {
		switch key {
		case KeyToplevel:
			s, err := stringOption(key, value)
			if err != nil {
				return nil, err
			}
			opts.Toplevel = s
		case KeyInitDir:
			s, err := stringOption(key, value)
			if err != nil {
				return nil, err
			}
			opts.InitDir = s
		case KeyInitFiles:
			files, err := stringListOption(key, value)
			if err != nil {
				return nil, err
			}
			opts.InitFiles = files
		case KeyAcceptMetadir:
			// Presence enables the flag; an explicit boolean is honoured.
			if b, ok := value.(bool); ok {
				opts.AcceptMetadir = b
			} else {
				opts.AcceptMetadir = true
			}
		default:
			opts.Passthrough[key] = value
		}
	}

	return opts, nil
}

// PassthroughKeys returns the passthrough keys in sorted order
func (o *OperationalOptions) PassthroughKeys() []string {
	keys := make([]string, 0, len(o.Passthrough))
	for k := range o.Passthrough {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringOption(key string, value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", &DecodeError{Field: "operational option " + key, Err: fmt.Errorf("expected string, got %T", value)}
	}
}

func stringListOption(key string, value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), v...), nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &DecodeError{
					Field: "operational option " + key,
					Err:   fmt.Errorf("entry %d: expected string, got %T", i, item),
				}
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, &DecodeError{Field: "operational option " + key, Err: fmt.Errorf("expected list of strings, got %T", value)}
	}
}
