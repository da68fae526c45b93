// Package json selects a JSON codec at init time: sonic on the
// architectures it supports (amd64/arm64), encoding/json everywhere
// else. Callers import this package instead of choosing per call site.
package json

import (
	stdjson "encoding/json"
	"io"
	"runtime"

	"github.com/bytedance/sonic"
)

// Encoder writes JSON values to a stream.
type Encoder interface {
	Encode(v interface{}) error
}

// Decoder reads JSON values from a stream.
type Decoder interface {
	Decode(v interface{}) error
}

var (
	// Marshal encodes v into JSON bytes.
	Marshal func(v interface{}) ([]byte, error)

	// Unmarshal decodes JSON bytes into v.
	Unmarshal func(data []byte, v interface{}) error

	// NewEncoder creates an encoder writing to w.
	NewEncoder func(w io.Writer) Encoder

	// NewDecoder creates a decoder reading from r.
	NewDecoder func(r io.Reader) Decoder
)

func init() {
	if runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64" {
		Marshal = sonic.Marshal
		Unmarshal = sonic.Unmarshal
		NewEncoder = func(w io.Writer) Encoder { return sonic.ConfigDefault.NewEncoder(w) }
		NewDecoder = func(r io.Reader) Decoder { return sonic.ConfigDefault.NewDecoder(r) }
		return
	}

	Marshal = stdjson.Marshal
	Unmarshal = stdjson.Unmarshal
	NewEncoder = func(w io.Writer) Encoder { return stdjson.NewEncoder(w) }
	NewDecoder = func(r io.Reader) Decoder { return stdjson.NewDecoder(r) }
}
