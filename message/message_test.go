package message

import (
	"testing"

	"corgi-rpc/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseSuccess(t *testing.T) {
	resp := &Response{Payload: []byte{30, 0, 0, 0}}

	data, err := resp.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{StatusOK, 4, 0, 0, 0, 30, 0, 0, 0}, data)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.False(t, decoded.Failed())
	assert.Equal(t, resp.Payload, decoded.Payload)
}

func TestResponseEmptySuccess(t *testing.T) {
	data, err := (&Response{}).Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.False(t, decoded.Failed())
	assert.Empty(t, decoded.Payload)
}

func TestResponseError(t *testing.T) {
	data, err := (&Response{Error: "unknown function: sub"}).Encode()
	require.NoError(t, err)
	assert.Equal(t, StatusError, data[0])

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, decoded.Failed())
	assert.Equal(t, "unknown function: sub", decoded.Error)
	assert.Empty(t, decoded.Payload)
}

func TestDecodeMalformedResponse(t *testing.T) {
	valid, err := (&Response{Payload: []byte("abc")}).Encode()
	require.NoError(t, err)

	for n := 0; n < len(valid); n++ {
		_, err := Decode(valid[:n])
		assert.ErrorIs(t, err, protocol.ErrDecode, "prefix of %d bytes", n)
	}

	_, err = Decode(append(valid, 'x'))
	assert.ErrorIs(t, err, protocol.ErrTrailingGarbageBytes)

	_, err = Decode([]byte{7, 0, 0, 0, 0})
	assert.ErrorIs(t, err, protocol.ErrDecode)

	_, err = Decode([]byte{StatusError, 0, 0, 0, 0})
	assert.ErrorIs(t, err, protocol.ErrDecode)
}
