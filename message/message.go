// Package message defines the response carried back to the caller of an RPC.
//
// A response travels the same way as a call: it is encoded, split into chunks
// that reuse the call's call_id and reassembled on the client side.
//
// Response format (little-endian):
//
//	┌────────┬──────────┬─────────────────┐
//	│ status │ body_len │ body ...        │
//	│ uint8  │ uint32   │ body_len bytes  │
//	└────────┴──────────┴─────────────────┘
//
// status 0 means success and body holds the encoded result; status 1 means
// failure and body holds the error text.
package message

import (
	"encoding/binary"
	"fmt"
	"math"

	"corgi-rpc/protocol"
)

const (
	StatusOK    byte = 0
	StatusError byte = 1

	headerSize = 5 // 1 (status) + 4 (body_len)
)

// Response is the outcome of one dispatched call.
//
//   - On success: Error is empty and Payload holds the encoded return value
//     (empty for functions without a return type).
//   - On failure: Error is non-empty and Payload is empty.
type Response struct {
	Error   string
	Payload []byte
}

// Failed reports whether the response carries an error.
func (r *Response) Failed() bool {
	return r.Error != ""
}

// Encode serializes r into one contiguous buffer.
func (r *Response) Encode() ([]byte, error) {
	status, body := StatusOK, r.Payload
	if r.Failed() {
		status, body = StatusError, []byte(r.Error)
	}
	if uint64(len(body)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: response body of %d bytes", protocol.ErrEncode, len(body))
	}

	buf := make([]byte, headerSize+len(body))
	buf[0] = status
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(body)))
	copy(buf[headerSize:], body)
	return buf, nil
}

// Decode parses data, which must hold exactly one response.
func Decode(data []byte) (*Response, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: response header truncated", protocol.ErrDecode)
	}
	status := data[0]
	bodyLen := binary.LittleEndian.Uint32(data[1:5])

	rest := uint64(len(data) - headerSize)
	if rest < uint64(bodyLen) {
		return nil, fmt.Errorf("%w: response body truncated", protocol.ErrDecode)
	}
	if rest > uint64(bodyLen) {
		return nil, fmt.Errorf("%w: %d bytes after response body", protocol.ErrTrailingGarbageBytes, rest-uint64(bodyLen))
	}

	body := make([]byte, bodyLen)
	copy(body, data[headerSize:])

	switch status {
	case StatusOK:
		return &Response{Payload: body}, nil
	case StatusError:
		if bodyLen == 0 {
			return nil, fmt.Errorf("%w: error response without message", protocol.ErrDecode)
		}
		return &Response{Error: string(body)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown response status %d", protocol.ErrDecode, status)
	}
}
