package models

import (
	"bytes"
	"encoding/json"
)

// Document is a generic, order-preserving projection of one XML subtree.
// Repeated sibling tags aggregate into lists; everything else becomes a
// scalar string or a nested Document. Attributes and mixed text outside
// child elements are dropped.
type Document struct {
	keys   []string
	values map[string]any // string | *Document | []any
}

func NewDocument() *Document {
	return &Document{values: make(map[string]any)}
}

// Set stores a value under key. A second Set for the same key converts the
// entry into a list, matching how repeated XML siblings aggregate.
func (d *Document) Set(key string, value any) {
	existing, ok := d.values[key]
	if !ok {
		d.keys = append(d.keys, key)
		d.values[key] = value
		return
	}
	if list, isList := existing.([]any); isList {
		d.values[key] = append(list, value)
		return
	}
	d.values[key] = []any{existing, value}
}

// Get returns the raw value for key, or nil.
func (d *Document) Get(key string) any {
	if d == nil {
		return nil
	}
	return d.values[key]
}

// GetString returns the scalar value for key, or "" when the key is absent
// or not a scalar.
func (d *Document) GetString(key string) string {
	s, _ := d.Get(key).(string)
	return s
}

// Keys returns the distinct keys in insertion order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	return d.keys
}

// Len returns the number of distinct keys.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// MarshalJSON emits keys in insertion order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := json.Marshal(d.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON rebuilds a Document from its JSON form. Key order follows
// the JSON text, which round-trips with MarshalJSON.
func (d *Document) UnmarshalJSON(data []byte) error {
	d.keys = nil
	d.values = make(map[string]any)

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return &json.UnmarshalTypeError{Value: "non-object", Type: nil}
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)
		val, err := decodeJSONValue(dec)
		if err != nil {
			return err
		}
		d.Set(key, val)
	}
	_, err = dec.Token() // closing brace
	return err
}

func decodeJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			child := NewDocument()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				child.Set(keyTok.(string), val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return child, nil
		case '[':
			var list []any
			for dec.More() {
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		}
		return nil, &json.SyntaxError{}
	case string:
		return t, nil
	case nil:
		return "", nil
	default:
		// Numbers and booleans do not occur in extracted documents, but
		// tolerate them as their text form.
		return tok, nil
	}
}
