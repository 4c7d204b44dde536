// Package server receives chunked calls over UDP, reassembles them and runs
// the named functions.
//
// Request processing pipeline:
//
//	ReadFrom (single goroutine) → Parser.Apply
//	  → for each completed call: go handleCall
//	    → Middleware Chain → Container.Find → Handler → Response.Encode
//	    → EncodeDatagrams(call_id) → WriteTo
//
// A sweep goroutine expires calls whose missing chunks never arrive.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"corgi-rpc/container"
	"corgi-rpc/message"
	"corgi-rpc/middleware"
	"corgi-rpc/protocol"
	"corgi-rpc/registry"

	"github.com/sirupsen/logrus"
)

// maxDatagram is the largest UDP payload the receive buffer must hold.
const maxDatagram = 64 * 1024

type Server struct {
	opts        options
	container   *container.Container
	parser      *protocol.Parser
	dispatcher  *Dispatcher
	middlewares []middleware.Middleware
	log         logrus.FieldLogger

	conn     net.PacketConn
	wg       sync.WaitGroup // In-flight calls
	loops    sync.WaitGroup // Receive and sweep loops
	mu       sync.Mutex     // Orders Serve's startup against Shutdown
	shutdown atomic.Bool
	stop     chan struct{}
	ctx      context.Context // Parent of every handler context
	cancel   context.CancelFunc

	registry      registry.Registry
	advertiseAddr string
}

// NewServer creates a server dispatching to c. c must be fully populated
// before Serve is called.
func NewServer(c *container.Container, opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.datagramSize <= protocol.ChunkHeaderSize {
		o.datagramSize = protocol.DatagramSize
	}

	s := &Server{
		opts:      o,
		container: c,
		log:       o.logger.WithField("component", "server"),
		stop:      make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.parser = protocol.NewParser(o.maxPending,
		protocol.WithTTL(o.ttl),
		protocol.WithClock(o.clock),
		protocol.WithEvictHook(s.evicted),
	)
	return s
}

func (s *Server) evicted(id protocol.CallID, reason protocol.EvictReason) {
	s.log.WithFields(logrus.Fields{"call_id": id, "reason": reason}).Debug("incomplete call dropped")
	if s.opts.metrics != nil {
		s.opts.metrics.PendingEvicted.WithLabelValues(string(reason)).Inc()
	}
}

// Listen binds the UDP socket. A bind failure is fatal for the server.
func (s *Server) Listen(network, address string) error {
	conn, err := net.ListenPacket(network, address)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrSocketBinding, network, address, err)
	}
	s.conn = conn
	return nil
}

// LocalAddr returns the bound address, useful after listening on port 0.
func (s *Server) LocalAddr() (net.Addr, error) {
	if s.conn == nil {
		return nil, ErrLocalAddress
	}
	return s.conn.LocalAddr(), nil
}

// Use registers a middleware. Middlewares run in the order they are added
// and must all be added before Serve.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Serve announces every registered function in reg (nil skips discovery) and
// runs the receive loop until Shutdown. advertiseAddr is what clients dial;
// empty means the bound address.
func (s *Server) Serve(advertiseAddr string, reg registry.Registry) error {
	if s.conn == nil {
		return fmt.Errorf("%w: Serve called before Listen", ErrSocketBinding)
	}

	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		return nil
	}
	if err := s.start(advertiseAddr, reg); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	defer s.loops.Done()
	return s.receiveLoop()
}

// start announces the functions and reserves the loops. It runs with s.mu
// held so that Shutdown either sees none of it or waits for all of it.
func (s *Server) start(advertiseAddr string, reg registry.Registry) error {
	s.dispatcher = NewDispatcher(s.container, s.opts.codec, s.middlewares...)

	if advertiseAddr == "" {
		advertiseAddr = s.conn.LocalAddr().String()
	}
	s.advertiseAddr = advertiseAddr
	if reg != nil {
		s.registry = reg
		for _, name := range s.container.Names() {
			err := reg.Register(name, registry.Instance{
				Addr:   advertiseAddr,
				Weight: 1,
				Codec:  s.opts.codec.Type().String(),
			}, s.opts.leaseTTL)
			if err != nil {
				return fmt.Errorf("server: announce %s: %w", name, err)
			}
		}
	}

	s.loops.Add(1) // Receive loop, released by Serve
	if s.opts.ttl > 0 && s.opts.sweepInterval > 0 {
		s.loops.Add(1)
		go s.sweepLoop()
	}

	s.log.WithFields(logrus.Fields{
		"addr":      s.conn.LocalAddr().String(),
		"advertise": advertiseAddr,
		"functions": s.container.Len(),
		"codec":     s.opts.codec.Type().String(),
	}).Info("serving")
	return nil
}

// receiveLoop reads one datagram at a time. Read errors are logged and the
// loop continues until Shutdown expires the read deadline.
func (s *Server) receiveLoop() error {
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if s.shutdown.Load() {
			return nil
		}
		if err != nil {
			if s.shutdown.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.WithError(err).Error("receive failed")
			if s.opts.metrics != nil {
				s.opts.metrics.ReceiveErrors.Inc()
			}
			continue
		}
		if s.opts.metrics != nil {
			s.opts.metrics.DatagramsReceived.Inc()
		}

		call, err := s.parser.Apply(buf[:n])
		if err != nil {
			s.log.WithFields(logrus.Fields{"peer": addr.String(), "bytes": n}).WithError(err).Debug("datagram rejected")
			if s.opts.metrics != nil {
				s.opts.metrics.DatagramsRejected.WithLabelValues(errorKind(err)).Inc()
			}
			continue
		}
		if call == nil {
			continue
		}
		if s.opts.metrics != nil {
			s.opts.metrics.CallsCompleted.Inc()
		}

		s.wg.Add(1)
		go s.handleCall(call, addr)
	}
}

// handleCall dispatches one call and sends its response back to peer in
// chunks carrying the call's own id.
func (s *Server) handleCall(call *protocol.RpcCall, peer net.Addr) {
	defer s.wg.Done()

	resp := s.dispatcher.Respond(s.ctx, call)
	if s.opts.metrics != nil {
		status := "ok"
		if resp.Failed() {
			status = "error"
		}
		s.opts.metrics.CallsDispatched.WithLabelValues(call.Envelope.Name(), status).Inc()
	}

	datagrams, err := s.encodeReply(call.CallID, resp)
	if err != nil {
		s.log.WithFields(logrus.Fields{"call_id": call.CallID, "fn": call.Envelope.Name()}).WithError(err).Warn("reply too large, sending error instead")
		datagrams, err = s.encodeReply(call.CallID, &message.Response{Error: err.Error()})
	}
	if err != nil {
		s.replyFailed(call, err)
		return
	}

	for _, d := range datagrams {
		if _, err := s.conn.WriteTo(d, peer); err != nil {
			s.replyFailed(call, err)
			return
		}
	}
}

func (s *Server) encodeReply(id protocol.CallID, resp *message.Response) ([][]byte, error) {
	body, err := resp.Encode()
	if err != nil {
		return nil, err
	}
	return protocol.EncodeDatagrams(id, body, s.opts.datagramSize-protocol.ChunkHeaderSize)
}

func (s *Server) replyFailed(call *protocol.RpcCall, err error) {
	s.log.WithFields(logrus.Fields{"call_id": call.CallID, "fn": call.Envelope.Name()}).WithError(err).Error("reply failed")
	if s.opts.metrics != nil {
		s.opts.metrics.ReplyErrors.Inc()
	}
}

func (s *Server) sweepLoop() {
	defer s.loops.Done()
	ticker := s.opts.clock.Ticker(s.opts.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.parser.Expire(); n > 0 {
				s.log.WithField("expired", n).Debug("swept incomplete calls")
			}
		case <-s.stop:
			return
		}
	}
}

// Pending returns the number of calls still waiting for chunks.
func (s *Server) Pending() int {
	return s.parser.Pending()
}

// Shutdown performs graceful shutdown:
//  1. Deregister every function so clients stop picking this server
//  2. Stop the receive and sweep loops, leaving the socket open
//  3. Wait up to timeout for in-flight calls to send their replies
//  4. Close the socket and cancel the handler context
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	if s.shutdown.Swap(true) {
		s.mu.Unlock()
		return nil
	}
	reg := s.registry
	s.mu.Unlock()

	if reg != nil {
		for _, name := range s.container.Names() {
			if err := reg.Deregister(name, s.advertiseAddr); err != nil {
				s.log.WithField("fn", name).WithError(err).Warn("deregister failed")
			}
		}
	}

	close(s.stop)
	if s.conn != nil {
		// Wakes the blocked ReadFrom; replies still go out on the socket.
		if err := s.conn.SetReadDeadline(time.Now()); err != nil {
			s.conn.Close()
		}
	}
	s.loops.Wait()

	defer func() {
		if s.conn != nil {
			s.conn.Close()
		}
		s.cancel()
	}()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("server: timeout waiting for in-flight calls")
	}
}
