// Package transport implements the caller side of the datagram protocol.
//
// ClientTransport multiplexes concurrent calls over one connected UDP socket.
// Every call gets a unique call id; the request envelope is split into chunks
// carrying that id and the server answers with chunks carrying the same id.
// A background recvLoop reassembles responses and routes each one to the
// caller waiting on it.
//
//	goroutine-1 ──Send(id=a)──┐
//	goroutine-2 ──Send(id=b)──┼──→ UDP socket ──→ Server
//	goroutine-3 ──Send(id=c)──┘
//
//	recvLoop:  ←── chunks(id=b) → Parser → pending[b] → goroutine-2 wakes up
package transport

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"corgi-rpc/message"
	"corgi-rpc/protocol"

	"github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("transport: closed")

// Result is what a caller receives for one call: a decoded response or the
// error that prevented one.
type Result struct {
	Response *message.Response
	Err      error
}

type options struct {
	datagramSize  int
	maxPending    int
	ttl           time.Duration
	sweepInterval time.Duration
	logger        logrus.FieldLogger
}

type Option func(*options)

// WithDatagramSize caps request datagrams, header included.
func WithDatagramSize(n int) Option {
	return func(o *options) { o.datagramSize = n }
}

// WithReassembly bounds response reassembly the same way the server bounds
// requests.
func WithReassembly(maxPending int, ttl, sweepInterval time.Duration) Option {
	return func(o *options) {
		o.maxPending = maxPending
		o.ttl = ttl
		o.sweepInterval = sweepInterval
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.logger = l }
}

// ClientTransport is safe for concurrent use.
type ClientTransport struct {
	conn       net.Conn
	maxPayload int
	parser     *protocol.Parser
	nextID     atomic.Uint64
	pending    sync.Map // map[protocol.CallID]chan Result
	closed     atomic.Bool
	done       chan struct{}
	loops      sync.WaitGroup
	log        logrus.FieldLogger
}

// Dial opens a UDP socket connected to addr.
func Dial(addr string, opts ...Option) (*ClientTransport, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return NewClientTransport(conn, opts...), nil
}

// NewClientTransport takes ownership of conn and starts the receive loop and,
// when a TTL is set, a sweep of stale partial responses.
func NewClientTransport(conn net.Conn, opts ...Option) *ClientTransport {
	o := options{
		datagramSize:  protocol.DatagramSize,
		maxPending:    protocol.DefaultMaxPending,
		ttl:           30 * time.Second,
		sweepInterval: 5 * time.Second,
		logger:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.datagramSize <= protocol.ChunkHeaderSize {
		o.datagramSize = protocol.DatagramSize
	}

	t := &ClientTransport{
		conn:       conn,
		maxPayload: o.datagramSize - protocol.ChunkHeaderSize,
		parser:     protocol.NewParser(o.maxPending, protocol.WithTTL(o.ttl)),
		done:       make(chan struct{}),
		log:        o.logger.WithFields(logrus.Fields{"component": "transport", "peer": conn.RemoteAddr().String()}),
	}
	// Random base so ids from different callers rarely collide at the server.
	t.nextID.Store(rand.Uint64())

	t.loops.Add(1)
	go t.recvLoop()
	if o.ttl > 0 && o.sweepInterval > 0 {
		t.loops.Add(1)
		go t.sweepLoop(o.sweepInterval)
	}
	return t
}

// Send encodes envelope, writes its chunks and returns the call id together
// with a channel that receives exactly one Result.
func (t *ClientTransport) Send(envelope protocol.Envelope) (protocol.CallID, <-chan Result, error) {
	if t.closed.Load() {
		return 0, nil, ErrClosed
	}

	body, err := protocol.EncodeEnvelope(envelope)
	if err != nil {
		return 0, nil, err
	}
	id := t.nextID.Add(1)
	datagrams, err := protocol.EncodeDatagrams(id, body, t.maxPayload)
	if err != nil {
		return 0, nil, err
	}

	// Register before writing so a fast reply cannot beat us.
	ch := make(chan Result, 1)
	t.pending.Store(id, ch)

	for _, d := range datagrams {
		if _, err := t.conn.Write(d); err != nil {
			t.pending.Delete(id)
			return 0, nil, fmt.Errorf("transport: write call %d: %w", id, err)
		}
	}
	return id, ch, nil
}

// Cancel forgets a call; a late response for it is discarded.
func (t *ClientTransport) Cancel(id protocol.CallID) {
	t.pending.Delete(id)
}

// recvLoop reassembles response chunks. Read errors such as ICMP port
// unreachable fail the calls in flight but do not stop the loop.
func (t *ClientTransport) recvLoop() {
	defer t.loops.Done()
	buf := make([]byte, 64*1024)
	for {
		n, err := t.conn.Read(buf)
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				t.closeAllPending(ErrClosed)
				return
			}
			t.log.WithError(err).Warn("receive failed")
			t.closeAllPending(err)
			continue
		}

		id, payload, complete, err := t.parser.Assemble(buf[:n])
		if err != nil {
			t.log.WithError(err).Debug("response datagram rejected")
			continue
		}
		if !complete {
			continue
		}

		v, ok := t.pending.LoadAndDelete(id)
		if !ok {
			continue // Cancelled or unknown call
		}
		resp, err := message.Decode(payload)
		v.(chan Result) <- Result{Response: resp, Err: err}
	}
}

func (t *ClientTransport) sweepLoop(interval time.Duration) {
	defer t.loops.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.parser.Expire()
		case <-t.done:
			return
		}
	}
}

// closeAllPending fails every waiting caller so none of them blocks forever.
func (t *ClientTransport) closeAllPending(err error) {
	t.pending.Range(func(key, value any) bool {
		if _, ok := t.pending.LoadAndDelete(key); ok {
			value.(chan Result) <- Result{Err: err}
		}
		return true
	})
}

// RemoteAddr returns the server address.
func (t *ClientTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// Close stops both loops and fails calls still in flight with ErrClosed.
func (t *ClientTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.done)
	err := t.conn.Close()
	t.loops.Wait()
	return err
}
