package gamepbconnect

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

const (
	codecNameJSON            = "json"
	codecNameJSONCharsetUTF8 = codecNameJSON + "; charset=utf-8"
)

// jsonCodec replaces Connect's protojson codec, which only accepts generated
// protobuf messages, with plain encoding/json over the gamepb structs.
type jsonCodec struct {
	name string
}

var _ connect.Codec = (*jsonCodec)(nil)

// NewJSONCodec returns the codec the game API is served and called with.
func NewJSONCodec() connect.Codec {
	return newJSONCodec(codecNameJSON)
}

func newJSONCodec(name string) *jsonCodec {
	return &jsonCodec{name: name}
}

func (c *jsonCodec) Name() string { return c.name }

func (c *jsonCodec) Marshal(message any) ([]byte, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", message, err)
	}
	return data, nil
}

func (c *jsonCodec) Unmarshal(data []byte, message any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, message); err != nil {
		return fmt.Errorf("unmarshal into %T: %w", message, err)
	}
	return nil
}
