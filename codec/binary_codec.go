package codec

import (
	"encoding/binary"
	"fmt"

	"corgi-rpc/protocol"
)

// BinaryCodec writes fixed-size values (integers, floats, bools, arrays and
// structs of those) in little-endian order. Strings and byte slices are
// stored verbatim since each value already owns a length-delimited buffer.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return append([]byte(nil), val...), nil
	case *[]byte:
		return append([]byte(nil), (*val)...), nil
	case string:
		return []byte(val), nil
	case *string:
		return []byte(*val), nil
	}

	if binary.Size(v) < 0 {
		return nil, fmt.Errorf("%w: binary: %T is not a fixed-size value", protocol.ErrEncode, v)
	}
	data, err := binary.Append(nil, binary.LittleEndian, v)
	if err != nil {
		return nil, fmt.Errorf("%w: binary: %v", protocol.ErrEncode, err)
	}
	return data, nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	switch val := v.(type) {
	case *[]byte:
		*val = append([]byte(nil), data...)
		return nil
	case *string:
		*val = string(data)
		return nil
	}

	size := binary.Size(v)
	if size < 0 {
		return fmt.Errorf("%w: binary: %T is not a fixed-size value", protocol.ErrDecode, v)
	}
	if size != len(data) {
		return fmt.Errorf("%w: binary: %T needs %d bytes, got %d", protocol.ErrDecode, v, size, len(data))
	}
	if _, err := binary.Decode(data, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("%w: binary: %v", protocol.ErrDecode, err)
	}
	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}
