package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Envelope format (little-endian):
//
//	fn_name_len:u16 | fn_name | arg_count:u16 | { arg_len:u64 | arg } × arg_count
const (
	MaxFunctionNameSize = math.MaxUint16
	MaxArgumentsCount   = 16
	MaxArgumentSize     = 16 * 1024 * 1024
)

// EncodeEnvelope validates every size limit before writing anything.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	if len(e.FnName) > MaxFunctionNameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMaxFunctionName, len(e.FnName))
	}
	if len(e.Args) > MaxArgumentsCount {
		return nil, fmt.Errorf("%w: %d arguments", ErrMaxArguments, len(e.Args))
	}

	size := 2 + len(e.FnName) + 2
	for i, arg := range e.Args {
		if len(arg) > MaxArgumentSize {
			return nil, fmt.Errorf("%w: argument %d is %d bytes", ErrMaxArgumentSize, i, len(arg))
		}
		size += 8 + len(arg)
	}

	buf := make([]byte, size)
	offset := 0

	binary.LittleEndian.PutUint16(buf[offset:offset+2], uint16(len(e.FnName)))
	offset += 2
	offset += copy(buf[offset:], e.FnName)

	binary.LittleEndian.PutUint16(buf[offset:offset+2], uint16(len(e.Args)))
	offset += 2

	for _, arg := range e.Args {
		binary.LittleEndian.PutUint64(buf[offset:offset+8], uint64(len(arg)))
		offset += 8
		offset += copy(buf[offset:], arg)
	}
	return buf, nil
}

// DecodeEnvelope parses data and requires it to be consumed exactly.
// Truncation reports ErrDecode; leftover bytes report ErrTrailingGarbageBytes.
func DecodeEnvelope(data []byte) (Envelope, error) {
	offset := 0

	if len(data) < 2 {
		return Envelope{}, fmt.Errorf("%w: missing function name length", ErrDecode)
	}
	nameLen := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
	offset += 2

	if len(data)-offset < nameLen {
		return Envelope{}, fmt.Errorf("%w: function name truncated", ErrDecode)
	}
	fnName := make([]byte, nameLen)
	copy(fnName, data[offset:offset+nameLen])
	offset += nameLen

	if len(data)-offset < 2 {
		return Envelope{}, fmt.Errorf("%w: missing argument count", ErrDecode)
	}
	argCount := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
	offset += 2
	if argCount > MaxArgumentsCount {
		return Envelope{}, fmt.Errorf("%w: %d arguments", ErrMaxArguments, argCount)
	}

	args := make([][]byte, 0, argCount)
	for i := 0; i < argCount; i++ {
		if len(data)-offset < 8 {
			return Envelope{}, fmt.Errorf("%w: argument %d length truncated", ErrDecode, i)
		}
		argLen := binary.LittleEndian.Uint64(data[offset : offset+8])
		offset += 8

		if argLen > MaxArgumentSize {
			return Envelope{}, fmt.Errorf("%w: argument %d declares %d bytes", ErrMaxArgumentSize, i, argLen)
		}
		if uint64(len(data)-offset) < argLen {
			return Envelope{}, fmt.Errorf("%w: argument %d truncated", ErrDecode, i)
		}

		arg := make([]byte, argLen)
		copy(arg, data[offset:offset+int(argLen)])
		offset += int(argLen)
		args = append(args, arg)
	}

	if offset != len(data) {
		return Envelope{}, fmt.Errorf("%w: %d unconsumed bytes", ErrTrailingGarbageBytes, len(data)-offset)
	}
	return Envelope{FnName: fnName, Args: args}, nil
}
