package rpc

import (
	"encoding/json"
	"fmt"
)

// jsonCodec lets connect handlers carry the plain structs of portal/models.
// It replaces connect's protobuf JSON codec under the same name.
type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}
