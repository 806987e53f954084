package transport

import "encoding/json"

// JSONCodec is a Codec backed by encoding/json. Collective payloads
// (particle batches, moment rows) do not go through it: internal/gravtree
// encodes them as fixed-stride binary.
type JSONCodec struct{}

func (JSONCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (JSONCodec) ContentType() string                        { return "application/json" }
