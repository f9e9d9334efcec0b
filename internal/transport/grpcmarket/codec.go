package grpcmarket

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the content subtype every marketplace call is sent with
const codecName = "json"

// jsonCodec carries the plain Go message structs as JSON
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
