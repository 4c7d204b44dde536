// Package client is the caller API: it finds a server hosting a function,
// encodes the arguments, sends the call and decodes the reply.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"corgi-rpc/codec"
	"corgi-rpc/loadbalance"
	"corgi-rpc/protocol"
	"corgi-rpc/registry"
	"corgi-rpc/transport"
)

var ErrCodecMismatch = errors.New("client: server uses a different codec")

// RemoteError is a failure reported by the server for one call.
type RemoteError struct {
	Function string
	Message  string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Function, e.Message)
}

type Client struct {
	registry   registry.Registry
	balancer   loadbalance.Balancer
	codec      codec.Codec
	opts       []transport.Option
	mu         sync.Mutex
	transports map[string]*transport.ClientTransport // One socket per server address

	imu       sync.Mutex
	instances map[string][]registry.Instance // Kept current by a registry watch per function
	ctx       context.Context                // Scope of the watches, cancelled by Close
	cancel    context.CancelFunc
}

func NewClient(reg registry.Registry, bal loadbalance.Balancer, cdc codec.Codec, opts ...transport.Option) *Client {
	if bal == nil {
		bal = &loadbalance.RoundRobinBalancer{}
	}
	if cdc == nil {
		cdc = &codec.JSONCodec{}
	}
	c := &Client{
		registry:   reg,
		balancer:   bal,
		codec:      cdc,
		opts:       opts,
		transports: make(map[string]*transport.ClientTransport),
		instances:  make(map[string][]registry.Instance),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// discover returns the known instances of fn. The first lookup of a function
// reads the registry and starts watching it; later lookups use the cache.
func (c *Client) discover(fn string) ([]registry.Instance, error) {
	c.imu.Lock()
	defer c.imu.Unlock()

	if instances, ok := c.instances[fn]; ok {
		return instances, nil
	}

	// Watch before reading so no change between the two is missed. Updates
	// wait on imu and so land after the initial list.
	ctx, cancel := context.WithCancel(c.ctx)
	updates := c.registry.Watch(ctx, fn)
	instances, err := c.registry.Discover(fn)
	if err != nil {
		cancel()
		return nil, err
	}
	c.instances[fn] = instances
	go c.follow(fn, updates, cancel)
	return instances, nil
}

// follow applies registry updates for fn until the watch ends, then drops
// the cached list so the next call reads the registry again.
func (c *Client) follow(fn string, updates <-chan []registry.Instance, cancel context.CancelFunc) {
	defer cancel()
	for instances := range updates {
		c.imu.Lock()
		c.instances[fn] = instances
		c.imu.Unlock()
	}
	c.imu.Lock()
	delete(c.instances, fn)
	c.imu.Unlock()
}

func (c *Client) getTransport(addr string) (*transport.ClientTransport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.transports[addr]; ok {
		return t, nil
	}
	t, err := transport.Dial(addr, c.opts...)
	if err != nil {
		return nil, err
	}
	c.transports[addr] = t
	return t, nil
}

// Call invokes fn with args on one of its servers and decodes the result
// into reply. reply may be nil for functions without a return value.
// There is no retransmission: a lost datagram surfaces as ctx expiring.
func (c *Client) Call(ctx context.Context, fn string, reply any, args ...any) error {
	instances, err := c.discover(fn)
	if err != nil {
		return err
	}
	instance, err := c.balancer.Pick(fn, instances)
	if err != nil {
		return fmt.Errorf("client: %s: %w", fn, err)
	}
	if instance.Codec != "" && instance.Codec != c.codec.Type().String() {
		return fmt.Errorf("%w: %s at %s speaks %s", ErrCodecMismatch, fn, instance.Addr, instance.Codec)
	}

	bufs := make([][]byte, len(args))
	for i, arg := range args {
		if bufs[i], err = c.codec.Encode(arg); err != nil {
			return fmt.Errorf("client: %s argument %d: %w", fn, i, err)
		}
	}

	t, err := c.getTransport(instance.Addr)
	if err != nil {
		return err
	}
	id, ch, err := t.Send(protocol.NewEnvelope(fn, bufs...))
	if err != nil {
		return err
	}

	var res transport.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		t.Cancel(id)
		return fmt.Errorf("client: call %s (%d): %w", fn, id, ctx.Err())
	}
	if res.Err != nil {
		return res.Err
	}
	if res.Response.Failed() {
		return &RemoteError{Function: fn, Message: res.Response.Error}
	}
	if reply == nil {
		return nil
	}
	return c.codec.Decode(res.Response.Payload, reply)
}

// Close stops the registry watches and closes every socket the client opened.
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for addr, t := range c.transports {
		errs = append(errs, t.Close())
		delete(c.transports, addr)
	}
	return errors.Join(errs...)
}
