package protocol

import (
	"fmt"
	"hash/crc32"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bits-and-blooms/bitset"
	"github.com/hashicorp/golang-lru/simplelru"
)

// DefaultMaxPending bounds how many incomplete calls a Parser tracks at once.
const DefaultMaxPending = 4096

// EvictReason tells why an incomplete call was dropped.
type EvictReason string

const (
	EvictCapacity EvictReason = "capacity" // Pushed out by newer calls
	EvictExpired  EvictReason = "expired"  // First chunk older than the TTL

	evictCompleted EvictReason = "completed"
)

// pendingCall accumulates the chunks of one call until every index arrived.
type pendingCall struct {
	total     uint16
	chunks    []PackageChunk
	seen      *bitset.BitSet // Indices received so far
	firstSeen time.Time
	complete  bool
}

// finishedCall remembers a built call so that retransmitted copies of its
// chunks are not taken for a new call.
type finishedCall struct {
	at    time.Time
	total uint16
	sums  []uint32 // crc32 of each chunk payload, by index
}

// duplicate reports whether c is a copy of one of the call's chunks.
func (f *finishedCall) duplicate(c PackageChunk) bool {
	if c.Header.Total != f.total {
		return false
	}
	return crc32.ChecksumIEEE(c.Payload) == f.sums[c.Header.Index]
}

// Parser reassembles calls from datagrams arriving in any order.
//
// Duplicate chunks (same call id and index) are dropped, so a call completes
// only when every distinct index in [0, total) is present. Calls that never
// complete are evicted by capacity (oldest first) or by Expire once their
// first chunk is older than the TTL.
//
// A Parser is safe for concurrent use; Feed and Build for the same call id are
// serialized by an internal lock.
type Parser struct {
	mu      sync.Mutex
	pending *simplelru.LRU // CallID → *pendingCall, oldest first arrival first
	done    *simplelru.LRU // CallID → *finishedCall, drops late duplicates
	clock   clock.Clock
	ttl     time.Duration
	onEvict func(CallID, EvictReason)
	reason  EvictReason // Reason for the removal in progress, empty means capacity
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithTTL sets how long an incomplete call may wait for its missing chunks.
// Zero disables expiry.
func WithTTL(ttl time.Duration) ParserOption {
	return func(p *Parser) { p.ttl = ttl }
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) ParserOption {
	return func(p *Parser) { p.clock = c }
}

// WithEvictHook registers fn to observe dropped incomplete calls. fn runs with
// the parser lock held and must not call back into the Parser.
func WithEvictHook(fn func(CallID, EvictReason)) ParserOption {
	return func(p *Parser) { p.onEvict = fn }
}

// NewParser creates a parser tracking at most maxPending incomplete calls.
// A non-positive maxPending selects DefaultMaxPending.
func NewParser(maxPending int, opts ...ParserOption) *Parser {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	p := &Parser{clock: clock.New()}
	for _, opt := range opts {
		opt(p)
	}
	// NewLRU only fails for a non-positive size, which is ruled out above.
	p.pending, _ = simplelru.NewLRU(maxPending, p.evicted)
	p.done, _ = simplelru.NewLRU(maxPending, nil)
	return p
}

func (p *Parser) evicted(key, _ interface{}) {
	reason := p.reason
	if reason == "" {
		reason = EvictCapacity
	}
	if reason == evictCompleted || p.onEvict == nil {
		return
	}
	p.onEvict(key.(CallID), reason)
}

func (p *Parser) remove(id CallID, reason EvictReason) {
	p.reason = reason
	p.pending.Remove(id)
	p.reason = ""
}

// Feed decodes one datagram and stores its chunk. It reports the call id and
// true once the call has every chunk; Build must then be called exactly once.
// Errors concern only this datagram and leave all pending calls untouched.
func (p *Parser) Feed(data []byte) (CallID, bool, error) {
	chunk, err := DecodeChunk(data)
	if err != nil {
		return 0, false, err
	}

	h := chunk.Header
	if h.Total == 0 {
		return 0, false, fmt.Errorf("%w: call %d", ErrEmptyCall, h.CallID)
	}
	if h.Index >= h.Total {
		return 0, false, fmt.Errorf("%w: call %d index %d total %d", ErrChunkIndexOutOfRange, h.CallID, h.Index, h.Total)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if v, ok := p.done.Peek(h.CallID); ok {
		f := v.(*finishedCall)
		if p.clock.Now().Sub(f.at) < p.ttl && f.duplicate(chunk) {
			return 0, false, nil
		}
		// A different chunk under a finished id starts a new call.
		p.done.Remove(h.CallID)
	}

	var call *pendingCall
	if v, ok := p.pending.Peek(h.CallID); ok {
		call = v.(*pendingCall)
		if call.total != h.Total {
			return 0, false, fmt.Errorf("%w: call %d expects %d chunks, chunk says %d",
				ErrChunkTotalMismatch, h.CallID, call.total, h.Total)
		}
	} else {
		call = &pendingCall{
			total:     h.Total,
			chunks:    make([]PackageChunk, 0, h.Total),
			seen:      bitset.New(uint(h.Total)),
			firstSeen: p.clock.Now(),
		}
		p.pending.Add(h.CallID, call)
	}

	if call.complete || call.seen.Test(uint(h.Index)) {
		return 0, false, nil
	}
	call.seen.Set(uint(h.Index))
	call.chunks = append(call.chunks, chunk)

	if len(call.chunks) == int(call.total) {
		slices.SortFunc(call.chunks, func(a, b PackageChunk) int {
			return int(a.Header.Index) - int(b.Header.Index)
		})
		call.complete = true
		return h.CallID, true, nil
	}
	return 0, false, nil
}

// Build removes a completed call and returns its payloads concatenated in
// index order.
func (p *Parser) Build(id CallID) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.pending.Peek(id)
	if !ok || !v.(*pendingCall).complete {
		return nil, fmt.Errorf("%w: %d", ErrNoPendingCall, id)
	}
	call := v.(*pendingCall)
	p.remove(id, evictCompleted)

	size := 0
	for _, c := range call.chunks {
		size += len(c.Payload)
	}
	if p.ttl > 0 {
		f := &finishedCall{at: p.clock.Now(), total: call.total, sums: make([]uint32, len(call.chunks))}
		for i, c := range call.chunks {
			f.sums[i] = crc32.ChecksumIEEE(c.Payload)
		}
		p.done.Add(id, f)
	}
	payload := make([]byte, 0, size)
	for _, c := range call.chunks {
		payload = append(payload, c.Payload...)
	}
	return payload, nil
}

// Assemble feeds data and, if it completed a call, returns the call's full
// payload.
func (p *Parser) Assemble(data []byte) (CallID, []byte, bool, error) {
	id, complete, err := p.Feed(data)
	if err != nil || !complete {
		return 0, nil, false, err
	}
	payload, err := p.Build(id)
	if err != nil {
		return 0, nil, false, err
	}
	return id, payload, true, nil
}

// Apply feeds data and, if it completed a call, decodes the envelope.
// It returns nil without error while the call is still incomplete.
func (p *Parser) Apply(data []byte) (*RpcCall, error) {
	id, payload, complete, err := p.Assemble(data)
	if err != nil || !complete {
		return nil, err
	}
	envelope, err := DecodeEnvelope(payload)
	if err != nil {
		return nil, fmt.Errorf("call %d: %w", id, err)
	}
	return &RpcCall{CallID: id, Envelope: envelope}, nil
}

// Expire drops incomplete calls whose first chunk arrived at least TTL ago
// and returns how many were dropped.
func (p *Parser) Expire() int {
	if p.ttl == 0 {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	expired := 0
	for _, key := range p.pending.Keys() {
		v, ok := p.pending.Peek(key)
		if !ok {
			continue
		}
		if now.Sub(v.(*pendingCall).firstSeen) < p.ttl {
			break
		}
		p.remove(key.(CallID), EvictExpired)
		expired++
	}

	for _, key := range p.done.Keys() {
		v, ok := p.done.Peek(key)
		if !ok {
			continue
		}
		if now.Sub(v.(*finishedCall).at) < p.ttl {
			break
		}
		p.done.Remove(key)
	}
	return expired
}

// Pending returns the number of incomplete calls being tracked.
func (p *Parser) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.Len()
}
