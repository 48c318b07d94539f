// Package codec turns test documents and result entries into bytes.
package codec

import (
	"errors"
	"fmt"
)

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// ErrTooLarge is returned by Limit for payloads above its bound.
var ErrTooLarge = errors.New("codec: payload too large")

// Limit bounds payload size in both directions, so a document that could not
// be read back is never written. Max <= 0 disables the bound.
type Limit[V any] struct {
	Inner Codec[V]
	Max   int
}

func (c Limit[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.Max > 0 && len(b) > c.Max {
		return nil, fmt.Errorf("%w: encoded %d > %d bytes", ErrTooLarge, len(b), c.Max)
	}
	return b, nil
}

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.Max > 0 && len(b) > c.Max {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(b), c.Max)
	}
	return c.Inner.Decode(b)
}
