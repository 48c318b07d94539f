package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type Protobuf[T proto.Message] struct {
	new func() T // constructor for a concrete message (e.g., func() *structpb.Struct { return &structpb.Struct{} })
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.Marshal(v)
}
func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}

// Struct carries a flat string document as a google.protobuf.Struct.
// The zero value is ready to use.
type Struct struct{}

var _ Codec[map[string]string] = Struct{}

var structMsg = NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })

func (Struct) Encode(doc map[string]string) ([]byte, error) {
	fields := make(map[string]*structpb.Value, len(doc))
	for k, v := range doc {
		fields[k] = structpb.NewStringValue(v)
	}
	return structMsg.Encode(&structpb.Struct{Fields: fields})
}

func (Struct) Decode(b []byte) (map[string]string, error) {
	s, err := structMsg.Decode(b)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(s.GetFields()))
	for k, v := range s.GetFields() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("field %q: want string, got %T", k, v.GetKind())
		}
		out[k] = sv.StringValue
	}
	return out, nil
}
