package codec

import (
	"fmt"
	"sort"
)

// Document is the shape of the large-payload test document.
type Document = map[string]string

var documentCodecs = map[string]func() (Codec[Document], error){
	"json":     func() (Codec[Document], error) { return JSON[Document]{}, nil },
	"msgpack":  func() (Codec[Document], error) { return Msgpack[Document]{}, nil },
	"cbor":     func() (Codec[Document], error) { return NewCBOR[Document](true) },
	"protobuf": func() (Codec[Document], error) { return Struct{}, nil },
}

// ForDocument returns the document codec registered under name
// ("" => json). maxBytes > 0 wraps it in a Limit.
func ForDocument(name string, maxBytes int) (Codec[Document], error) {
	if name == "" {
		name = "json"
	}
	ctor, ok := documentCodecs[name]
	if !ok {
		return nil, fmt.Errorf("codec: unknown document codec %q (have %v)", name, DocumentCodecs())
	}
	cd, err := ctor()
	if err != nil {
		return nil, fmt.Errorf("codec %s: %w", name, err)
	}
	if maxBytes > 0 {
		return Limit[Document]{Inner: cd, Max: maxBytes}, nil
	}
	return cd, nil
}

// DocumentCodecs lists the registered names, sorted.
func DocumentCodecs() []string {
	out := make([]string, 0, len(documentCodecs))
	for n := range documentCodecs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
