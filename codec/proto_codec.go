package codec

import (
	"fmt"
	"reflect"

	"corgi-rpc/protocol"

	"google.golang.org/protobuf/proto"
)

// ProtoCodec serializes protobuf messages. Scalar arguments can be passed
// with the well-known wrappers (wrapperspb.Int32, wrapperspb.String, ...).
type ProtoCodec struct{}

func (c *ProtoCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%w: proto: %T does not implement proto.Message", protocol.ErrEncode, v)
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: proto: %v", protocol.ErrEncode, err)
	}
	return data, nil
}

func (c *ProtoCodec) Decode(data []byte, v any) error {
	msg, ok := target(v)
	if !ok {
		return fmt.Errorf("%w: proto: %T does not implement proto.Message", protocol.ErrDecode, v)
	}
	if err := proto.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("%w: proto: %v", protocol.ErrDecode, err)
	}
	return nil
}

func (c *ProtoCodec) Type() CodecType {
	return CodecTypeProto
}

// target accepts both a message pointer and a pointer to a message pointer,
// allocating the message in the latter case so generic handlers can decode
// into a zero *T.
func target(v any) (proto.Message, bool) {
	if msg, ok := v.(proto.Message); ok {
		return msg, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Pointer {
		return nil, false
	}
	elem := rv.Elem()
	if !elem.Type().Implements(reflect.TypeOf((*proto.Message)(nil)).Elem()) {
		return nil, false
	}
	if elem.IsNil() {
		elem.Set(reflect.New(elem.Type().Elem()))
	}
	return elem.Interface().(proto.Message), true
}
