package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkEncodeDecode(t *testing.T) {
	chunk := NewPackageChunk(12345, 3, 7, []byte("hello world"))

	data, err := EncodeChunk(chunk)
	require.NoError(t, err)
	require.Len(t, data, ChunkHeaderSize+11)

	decoded, err := DecodeChunk(data)
	require.NoError(t, err)
	assert.Equal(t, chunk.Header, decoded.Header)
	assert.Equal(t, chunk.Payload, decoded.Payload)
}

func TestChunkHeaderIsLittleEndian(t *testing.T) {
	data, err := EncodeChunk(NewPackageChunk(0x0102030405060708, 0x0a0b, 0x0c0d, []byte{0xff}))
	require.NoError(t, err)

	want := []byte{
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01, // call_id
		0x0b, 0x0a, // index
		0x0d, 0x0c, // total
		0x01, 0x00, 0x00, 0x00, // len
		0xff,
	}
	assert.Equal(t, want, data)
}

func TestChunkEmptyPayload(t *testing.T) {
	data, err := EncodeChunk(NewPackageChunk(1, 0, 1, nil))
	require.NoError(t, err)

	decoded, err := DecodeChunk(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), decoded.Header.PayloadLen)
	assert.Empty(t, decoded.Payload)
}

func TestDecodeChunkShorterThanHeader(t *testing.T) {
	for n := 0; n < ChunkHeaderSize; n++ {
		_, err := DecodeChunk(make([]byte, n))
		assert.ErrorIs(t, err, ErrChunkHeaderSize, "length %d", n)
	}
}

func TestDecodeChunkDeclaredPayloadTooLong(t *testing.T) {
	data, err := EncodeChunk(NewPackageChunk(9, 0, 1, []byte("abcd")))
	require.NoError(t, err)

	_, err = DecodeChunk(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrChunkHeaderSize)

	// A hostile length near the uint32 limit must not be indexed.
	binary.LittleEndian.PutUint32(data[12:16], 0xffffffff)
	_, err = DecodeChunk(data)
	assert.ErrorIs(t, err, ErrChunkHeaderSize)
}

func TestDecodeChunkIgnoresBytesPastPayload(t *testing.T) {
	data, err := EncodeChunk(NewPackageChunk(9, 0, 1, []byte("abcd")))
	require.NoError(t, err)

	decoded, err := DecodeChunk(append(data, 0xde, 0xad))
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), decoded.Payload)
}

func TestDecodeChunkCopiesPayload(t *testing.T) {
	data, err := EncodeChunk(NewPackageChunk(9, 0, 1, []byte("abcd")))
	require.NoError(t, err)

	decoded, err := DecodeChunk(data)
	require.NoError(t, err)
	data[ChunkHeaderSize] = 'z'
	assert.Equal(t, []byte("abcd"), decoded.Payload)
}

func TestEncodeChunkLengthMismatch(t *testing.T) {
	chunk := NewPackageChunk(1, 0, 1, []byte("abc"))
	chunk.Header.PayloadLen = 10

	_, err := EncodeChunk(chunk)
	assert.ErrorIs(t, err, ErrEncode)
}

func TestSplit(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 25)

	chunks, err := Split(4, payload, 10)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	var joined []byte
	for i, c := range chunks {
		assert.Equal(t, CallID(4), c.Header.CallID)
		assert.Equal(t, uint16(i), c.Header.Index)
		assert.Equal(t, uint16(3), c.Header.Total)
		assert.Equal(t, uint32(len(c.Payload)), c.Header.PayloadLen)
		joined = append(joined, c.Payload...)
	}
	assert.Len(t, chunks[2].Payload, 5)
	assert.Equal(t, payload, joined)
}

func TestSplitEmptyPayload(t *testing.T) {
	chunks, err := Split(4, nil, MaxChunkPayload)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, uint16(1), chunks[0].Header.Total)
}

func TestSplitTooManyChunks(t *testing.T) {
	_, err := Split(4, make([]byte, MaxChunks+1), 1)
	assert.ErrorIs(t, err, ErrTooManyChunks)

	_, err = Split(4, []byte("a"), 0)
	assert.ErrorIs(t, err, ErrEncode)
}

func TestEncodeDatagramsFitDatagramSize(t *testing.T) {
	datagrams, err := EncodeDatagrams(5, make([]byte, 5000), MaxChunkPayload)
	require.NoError(t, err)
	require.Len(t, datagrams, 5)
	for _, d := range datagrams {
		assert.LessOrEqual(t, len(d), DatagramSize)
	}
}
