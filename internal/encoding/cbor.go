// Package encoding holds the wire codec for queued job payloads.
package encoding

import (
	"github.com/fxamacker/cbor/v2"
)

// MarshalCBOR encodes a job payload to CBOR format
func MarshalCBOR(v interface{}) ([]byte, error) {
	return cbor.Marshal(v)
}

// UnmarshalCBOR decodes CBOR data
func UnmarshalCBOR(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}
