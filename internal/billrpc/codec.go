package billrpc

import "encoding/json"

// Codec marshals plain Go structs as JSON. It is registered under the name
// "json", replacing Connect's protobuf JSON codec, so requests and responses
// travel as application/json without generated message types.
type Codec struct{}

// Name implements connect.Codec.
func (Codec) Name() string { return "json" }

// Marshal implements connect.Codec.
func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal implements connect.Codec.
func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
