package protocol

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEncode(t *testing.T, c PackageChunk) []byte {
	t.Helper()
	data, err := EncodeChunk(c)
	require.NoError(t, err)
	return data
}

func TestParserReassemblesOutOfOrder(t *testing.T) {
	p := NewParser(0)
	first := mustEncode(t, NewPackageChunk(7, 0, 2, []byte("AB")))
	second := mustEncode(t, NewPackageChunk(7, 1, 2, []byte("CD")))

	id, complete, err := p.Feed(second)
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 1, p.Pending())

	id, complete, err = p.Feed(first)
	require.NoError(t, err)
	require.True(t, complete)
	assert.Equal(t, CallID(7), id)

	payload, err := p.Build(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("ABCD"), payload)
	assert.Equal(t, 0, p.Pending())

	_, err = p.Build(id)
	assert.ErrorIs(t, err, ErrNoPendingCall)
}

func TestParserPermutationInvariance(t *testing.T) {
	payload := make([]byte, 10*MaxChunkPayload+17)
	rand.New(rand.NewSource(1)).Read(payload)

	datagrams, err := EncodeDatagrams(42, payload, MaxChunkPayload)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(2))
	for round := 0; round < 20; round++ {
		p := NewParser(0)
		order := rng.Perm(len(datagrams))

		var got []byte
		for i, idx := range order {
			id, assembled, complete, err := p.Assemble(datagrams[idx])
			require.NoError(t, err)
			if i < len(order)-1 {
				require.False(t, complete, "round %d completed early", round)
				continue
			}
			require.True(t, complete)
			assert.Equal(t, CallID(42), id)
			got = assembled
		}
		assert.True(t, bytes.Equal(payload, got), "round %d", round)
	}
}

func TestParserDuplicateChunkDoesNotComplete(t *testing.T) {
	p := NewParser(0)
	c0 := mustEncode(t, NewPackageChunk(1, 0, 3, []byte("a")))
	c1 := mustEncode(t, NewPackageChunk(1, 1, 3, []byte("b")))
	c2 := mustEncode(t, NewPackageChunk(1, 2, 3, []byte("c")))

	for _, d := range [][]byte{c0, c0, c1} {
		_, complete, err := p.Feed(d)
		require.NoError(t, err)
		assert.False(t, complete)
	}

	_, payload, complete, err := p.Assemble(c2)
	require.NoError(t, err)
	require.True(t, complete)
	assert.Equal(t, []byte("abc"), payload)
}

func TestParserDropsLateDuplicates(t *testing.T) {
	p := NewParser(0, WithTTL(time.Minute))
	d := mustEncode(t, NewPackageChunk(3, 0, 1, []byte("x")))

	_, _, complete, err := p.Assemble(d)
	require.NoError(t, err)
	require.True(t, complete)

	_, _, complete, err = p.Assemble(d)
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 0, p.Pending())
}

func TestParserCallIDReuse(t *testing.T) {
	p := NewParser(0)

	_, payload, complete, err := p.Assemble(mustEncode(t, NewPackageChunk(7, 0, 1, []byte("AB"))))
	require.NoError(t, err)
	require.True(t, complete)
	assert.Equal(t, []byte("AB"), payload)

	_, payload, complete, err = p.Assemble(mustEncode(t, NewPackageChunk(7, 0, 1, []byte("CD"))))
	require.NoError(t, err)
	require.True(t, complete)
	assert.Equal(t, []byte("CD"), payload)
}

func TestParserCallIDReuseWithinTTL(t *testing.T) {
	p := NewParser(0, WithTTL(time.Minute))

	_, _, complete, err := p.Assemble(mustEncode(t, NewPackageChunk(7, 0, 1, []byte("AB"))))
	require.NoError(t, err)
	require.True(t, complete)

	// Different payload under the same id.
	_, payload, complete, err := p.Assemble(mustEncode(t, NewPackageChunk(7, 0, 1, []byte("CD"))))
	require.NoError(t, err)
	require.True(t, complete)
	assert.Equal(t, []byte("CD"), payload)

	// Different chunk count under the same id.
	_, _, complete, err = p.Assemble(mustEncode(t, NewPackageChunk(7, 1, 2, []byte("F"))))
	require.NoError(t, err)
	assert.False(t, complete)
	_, payload, complete, err = p.Assemble(mustEncode(t, NewPackageChunk(7, 0, 2, []byte("E"))))
	require.NoError(t, err)
	require.True(t, complete)
	assert.Equal(t, []byte("EF"), payload)
}

func TestParserRejectsInconsistentChunks(t *testing.T) {
	p := NewParser(0)

	_, _, err := p.Feed(mustEncode(t, NewPackageChunk(1, 0, 0, nil)))
	assert.ErrorIs(t, err, ErrEmptyCall)

	_, _, err = p.Feed(mustEncode(t, NewPackageChunk(1, 2, 2, nil)))
	assert.ErrorIs(t, err, ErrChunkIndexOutOfRange)

	_, _, err = p.Feed(mustEncode(t, NewPackageChunk(1, 0, 2, []byte("a"))))
	require.NoError(t, err)
	_, _, err = p.Feed(mustEncode(t, NewPackageChunk(1, 1, 3, []byte("b"))))
	assert.ErrorIs(t, err, ErrChunkTotalMismatch)

	// The call is still intact and completes with the right chunk.
	_, payload, complete, err := p.Assemble(mustEncode(t, NewPackageChunk(1, 1, 2, []byte("b"))))
	require.NoError(t, err)
	require.True(t, complete)
	assert.Equal(t, []byte("ab"), payload)
}

func TestParserMalformedDatagramLeavesOtherCalls(t *testing.T) {
	p := NewParser(0)
	_, _, err := p.Feed(mustEncode(t, NewPackageChunk(5, 0, 2, []byte("he"))))
	require.NoError(t, err)

	_, _, err = p.Feed([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrChunkHeaderSize)

	_, payload, complete, err := p.Assemble(mustEncode(t, NewPackageChunk(5, 1, 2, []byte("llo"))))
	require.NoError(t, err)
	require.True(t, complete)
	assert.Equal(t, []byte("hello"), payload)
}

func TestParserApply(t *testing.T) {
	body, err := EncodeEnvelope(NewEnvelope("add", []byte{1, 0, 0, 0}, []byte{2, 0, 0, 0}))
	require.NoError(t, err)
	datagrams, err := EncodeDatagrams(99, body, 8)
	require.NoError(t, err)

	p := NewParser(0)
	var call *RpcCall
	for i := len(datagrams) - 1; i >= 0; i-- {
		call, err = p.Apply(datagrams[i])
		require.NoError(t, err)
		if i > 0 {
			assert.Nil(t, call)
		}
	}
	require.NotNil(t, call)
	assert.Equal(t, CallID(99), call.CallID)
	assert.Equal(t, "add", call.Envelope.Name())
	assert.Len(t, call.Envelope.Args, 2)
}

func TestParserApplyBadEnvelope(t *testing.T) {
	p := NewParser(0)
	call, err := p.Apply(mustEncode(t, NewPackageChunk(1, 0, 1, []byte{0x05})))
	assert.Nil(t, call)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, 0, p.Pending())
}

func TestParserCapacityEviction(t *testing.T) {
	var evicted []CallID
	p := NewParser(2, WithEvictHook(func(id CallID, reason EvictReason) {
		assert.Equal(t, EvictCapacity, reason)
		evicted = append(evicted, id)
	}))

	for id := CallID(1); id <= 3; id++ {
		_, _, err := p.Feed(mustEncode(t, NewPackageChunk(id, 0, 2, []byte("a"))))
		require.NoError(t, err)
	}
	assert.Equal(t, []CallID{1}, evicted)
	assert.Equal(t, 2, p.Pending())
}

func TestParserExpire(t *testing.T) {
	mock := clock.NewMock()
	var evicted []CallID
	p := NewParser(0, WithTTL(10*time.Second), WithClock(mock), WithEvictHook(func(id CallID, reason EvictReason) {
		assert.Equal(t, EvictExpired, reason)
		evicted = append(evicted, id)
	}))

	_, _, err := p.Feed(mustEncode(t, NewPackageChunk(1, 0, 2, []byte("a"))))
	require.NoError(t, err)
	mock.Add(6 * time.Second)
	_, _, err = p.Feed(mustEncode(t, NewPackageChunk(2, 0, 2, []byte("a"))))
	require.NoError(t, err)

	assert.Equal(t, 0, p.Expire())
	mock.Add(5 * time.Second)
	assert.Equal(t, 1, p.Expire())
	assert.Equal(t, []CallID{1}, evicted)
	assert.Equal(t, 1, p.Pending())

	mock.Add(5 * time.Second)
	assert.Equal(t, 1, p.Expire())
	assert.Equal(t, 0, p.Pending())
}

func TestParserCompletionIsNotEviction(t *testing.T) {
	p := NewParser(0, WithEvictHook(func(id CallID, reason EvictReason) {
		t.Fatalf("unexpected eviction of %d (%s)", id, reason)
	}))
	_, _, complete, err := p.Assemble(mustEncode(t, NewPackageChunk(1, 0, 1, []byte("a"))))
	require.NoError(t, err)
	assert.True(t, complete)
}

func FuzzParserFeed(f *testing.F) {
	seed, _ := EncodeChunk(NewPackageChunk(1, 0, 1, []byte{0x03, 0x00, 'a', 'd', 'd', 0x00, 0x00}))
	f.Add(seed)
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, data []byte) {
		p := NewParser(8)
		_, _ = p.Apply(data)
	})
}
