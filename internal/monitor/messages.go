package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Message types on the wire.
const (
	TypeValues = "values"
	TypeWrite  = "write"
	TypeAck    = "ack"
	TypeError  = "error"
)

// ValuesS2C carries every named variable. Seq increases by one per frame.
type ValuesS2C struct {
	Type   string         `json:"type"`
	Seq    int64          `json:"seq"`
	Values map[string]any `json:"values"`
}

// WriteC2S asks the server to write one variable.
type WriteC2S struct {
	Type  string          `json:"type"`
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// ReplyS2C acknowledges or rejects a WriteC2S.
type ReplyS2C struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Message string `json:"message,omitempty"`
}

// decodeValue turns a JSON literal into a bool or an int64.
func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return nil, fmt.Errorf("value %s is not an integer", x)
		}
		return n, nil
	}
	return nil, fmt.Errorf("value must be a bool or an integer, got %s", string(raw))
}
