package report

import (
	"fmt"

	c "github.com/unkn0wn-root/cascheck/codec"
)

// CodecFor returns the entry codec registered under name ("" => msgpack).
func CodecFor(name string) (c.Codec[Entry], error) {
	switch name {
	case "", "msgpack":
		return c.Msgpack[Entry]{}, nil
	case "cbor":
		return c.NewCBOR[Entry](false)
	case "json":
		return c.JSON[Entry]{}, nil
	}
	return nil, fmt.Errorf("report: unknown codec %q", name)
}
