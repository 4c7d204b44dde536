// Package protocol implements the datagram wire format of corgi-rpc.
//
// One RPC call is serialized as an envelope (function name + argument buffers),
// then split into chunks small enough to fit in a single UDP datagram. Every
// chunk carries a fixed 16-byte little-endian header so the receiver can put
// the call back together regardless of arrival order.
//
// Chunk format:
//
//	0         8       10      12      16
//	┌─────────┬───────┬───────┬───────┬────────────────────┐
//	│ call_id │ index │ total │  len  │ payload ...        │
//	│ uint64  │uint16 │uint16 │uint32 │ len bytes          │
//	└─────────┴───────┴───────┴───────┴────────────────────┘
//
// Decoders run directly on untrusted network input: every length is checked
// before the slice it guards is touched, so malformed input yields an error
// and never a panic.
package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	ChunkHeaderSize = 16   // 8 (call_id) + 2 (index) + 2 (total) + 4 (len)
	DatagramSize    = 1200 // Stays below common path MTU
	MaxChunkPayload = DatagramSize - ChunkHeaderSize
	MaxChunks       = math.MaxUint16
)

// EncodeChunk writes the header followed by the payload verbatim.
func EncodeChunk(c PackageChunk) ([]byte, error) {
	if uint64(len(c.Payload)) > math.MaxUint32 || c.Header.PayloadLen != uint32(len(c.Payload)) {
		return nil, fmt.Errorf("%w: chunk payload length %d does not match header %d",
			ErrEncode, len(c.Payload), c.Header.PayloadLen)
	}

	buf := make([]byte, ChunkHeaderSize+len(c.Payload))
	binary.LittleEndian.PutUint64(buf[0:8], c.Header.CallID)
	binary.LittleEndian.PutUint16(buf[8:10], c.Header.Index)
	binary.LittleEndian.PutUint16(buf[10:12], c.Header.Total)
	binary.LittleEndian.PutUint32(buf[12:16], c.Header.PayloadLen)
	copy(buf[ChunkHeaderSize:], c.Payload)
	return buf, nil
}

// DecodeChunk parses one datagram. Bytes past the declared payload length are
// ignored. The returned payload is a copy, so data may be reused by the caller.
func DecodeChunk(data []byte) (PackageChunk, error) {
	if len(data) < ChunkHeaderSize {
		return PackageChunk{}, fmt.Errorf("%w: got %d bytes, header needs %d",
			ErrChunkHeaderSize, len(data), ChunkHeaderSize)
	}

	header := ChunkHeader{
		CallID:     binary.LittleEndian.Uint64(data[0:8]),
		Index:      binary.LittleEndian.Uint16(data[8:10]),
		Total:      binary.LittleEndian.Uint16(data[10:12]),
		PayloadLen: binary.LittleEndian.Uint32(data[12:16]),
	}

	// Compare in uint64 so a huge declared length cannot overflow int on 32-bit hosts.
	if uint64(len(data)-ChunkHeaderSize) < uint64(header.PayloadLen) {
		return PackageChunk{}, fmt.Errorf("%w: declared payload %d, available %d",
			ErrChunkHeaderSize, header.PayloadLen, len(data)-ChunkHeaderSize)
	}

	payload := make([]byte, header.PayloadLen)
	copy(payload, data[ChunkHeaderSize:ChunkHeaderSize+int(header.PayloadLen)])
	return PackageChunk{Header: header, Payload: payload}, nil
}

// Split cuts payload into chunks of at most maxPayload bytes, all sharing
// callID. An empty payload still produces one (empty) chunk so the receiver
// sees the call complete.
func Split(callID CallID, payload []byte, maxPayload int) ([]PackageChunk, error) {
	if maxPayload <= 0 {
		return nil, fmt.Errorf("%w: chunk payload size must be positive, got %d", ErrEncode, maxPayload)
	}

	n := (len(payload) + maxPayload - 1) / maxPayload
	if n == 0 {
		n = 1
	}
	if n > MaxChunks {
		return nil, fmt.Errorf("%w: %d bytes at %d per chunk", ErrTooManyChunks, len(payload), maxPayload)
	}

	chunks := make([]PackageChunk, 0, n)
	for i := 0; i < n; i++ {
		start := i * maxPayload
		end := min(start+maxPayload, len(payload))
		chunks = append(chunks, NewPackageChunk(callID, uint16(i), uint16(n), payload[start:end]))
	}
	return chunks, nil
}

// EncodeDatagrams splits payload and encodes every chunk, ready to be written
// to the socket one datagram at a time.
func EncodeDatagrams(callID CallID, payload []byte, maxPayload int) ([][]byte, error) {
	chunks, err := Split(callID, payload, maxPayload)
	if err != nil {
		return nil, err
	}
	datagrams := make([][]byte, 0, len(chunks))
	for _, c := range chunks {
		b, err := EncodeChunk(c)
		if err != nil {
			return nil, err
		}
		datagrams = append(datagrams, b)
	}
	return datagrams, nil
}
