package protocol

import "fmt"

// CallID identifies one logical RPC call. It is chosen by the caller and
// shared by every chunk of that call.
type CallID = uint64

// ChunkHeader is the fixed 16-byte metadata carried by every datagram.
type ChunkHeader struct {
	CallID     CallID
	Index      uint16 // Zero-based position of this chunk within the call
	Total      uint16 // Number of chunks the call was split into
	PayloadLen uint32 // Bytes of payload following the header
}

func (h ChunkHeader) String() string {
	return fmt.Sprintf("ChunkHeader(call_id=%d, index=%d, total=%d, len=%d)",
		h.CallID, h.Index, h.Total, h.PayloadLen)
}

// PackageChunk is one fragment of a call: header plus opaque payload bytes.
type PackageChunk struct {
	Header  ChunkHeader
	Payload []byte
}

// NewPackageChunk builds a chunk whose PayloadLen matches payload.
func NewPackageChunk(callID CallID, index, total uint16, payload []byte) PackageChunk {
	return PackageChunk{
		Header: ChunkHeader{
			CallID:     callID,
			Index:      index,
			Total:      total,
			PayloadLen: uint32(len(payload)),
		},
		Payload: payload,
	}
}

func (c PackageChunk) String() string {
	return fmt.Sprintf("PackageChunk(header=%s, payload=[%d]byte)", c.Header, len(c.Payload))
}

// Envelope is the decoded body of a call: the function name and its
// argument buffers in call order.
type Envelope struct {
	FnName []byte
	Args   [][]byte
}

// NewEnvelope is a convenience constructor taking the function name as a string.
func NewEnvelope(fnName string, args ...[]byte) Envelope {
	return Envelope{FnName: []byte(fnName), Args: args}
}

// Name returns the function name as a string.
func (e Envelope) Name() string {
	return string(e.FnName)
}

func (e Envelope) String() string {
	return fmt.Sprintf("Envelope(fn_name=%q, args=%d)", e.FnName, len(e.Args))
}

// RpcCall is a fully reassembled and decoded call.
type RpcCall struct {
	CallID   CallID
	Envelope Envelope
}

func (c *RpcCall) String() string {
	return fmt.Sprintf("RpcCall(call_id=%d, envelope=%s)", c.CallID, c.Envelope)
}
