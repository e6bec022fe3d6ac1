// Package codec encodes and decodes property values for the wire.
//
// Two content formats are supported: a compact binary CBOR encoding for
// constrained peers and a JSON text encoding for debugging and web
// clients. The format travels as content-negotiation metadata on each
// request and response; both sides fall back to CBOR when unspecified.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Format identifies a wire content format.
type Format uint8

const (
	// FormatCBOR is the compact binary encoding, the default on the wire.
	FormatCBOR Format = iota

	// FormatJSON is the text encoding used by web clients and debugging
	// tools.
	FormatJSON
)

// ErrDecode is returned when a payload cannot be decoded in the declared
// format.
var ErrDecode = errors.New("codec: decode failed")

// String returns the MIME-style name of the format.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "application/json"
	default:
		return "application/cbor"
	}
}

// ParseFormat maps a MIME-style content type to a Format. Unknown types
// default to CBOR, the wire's native format.
func ParseFormat(contentType string) Format {
	if contentType == "application/json" || contentType == "text/json" {
		return FormatJSON
	}
	return FormatCBOR
}

// encMode is the deterministic CBOR encoder: core deterministic encoding
// so identical values always produce identical bytes.
var encMode cbor.EncMode

// decMode decodes maps with string keys into map[string]any so decoded
// values match the property model's composite types.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{DefaultMapType: nil}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode serializes a value in the given format.
func Encode(v any, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return json.Marshal(v)
	default:
		return encMode.Marshal(v)
	}
}

// Decode parses a payload in the given format. Composite results use
// map[string]any and []any; numbers decode as float64 (JSON) or their
// native CBOR width, which the trait coercion layer normalises.
func Decode(payload []byte, f Format) (any, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var v any
	switch f {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrDecode, f, err)
		}
		return normalizeJSON(v), nil
	default:
		if err := decMode.Unmarshal(payload, &v); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrDecode, f, err)
		}
		return normalizeCBOR(v), nil
	}
}

// normalizeJSON converts json.Number into float64/int64 and recurses into
// composites.
func normalizeJSON(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, _ := n.Float64()
		return f
	case map[string]any:
		for k, e := range n {
			n[k] = normalizeJSON(e)
		}
		return n
	case []any:
		for i, e := range n {
			n[i] = normalizeJSON(e)
		}
		return n
	default:
		return v
	}
}

// normalizeCBOR converts CBOR's interface-keyed maps into string-keyed
// maps and recurses into composites. Non-string map keys are not part of
// the property model and fail later coercion naturally.
func normalizeCBOR(v any) any {
	switch n := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			ks, ok := k.(string)
			if !ok {
				ks = fmt.Sprint(k)
			}
			out[ks] = normalizeCBOR(e)
		}
		return out
	case map[string]any:
		for k, e := range n {
			n[k] = normalizeCBOR(e)
		}
		return n
	case []any:
		for i, e := range n {
			n[i] = normalizeCBOR(e)
		}
		return n
	default:
		return v
	}
}
