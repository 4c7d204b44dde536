package server

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"corgi-rpc/codec"
	"corgi-rpc/container"
	"corgi-rpc/message"
	"corgi-rpc/middleware"
	"corgi-rpc/protocol"

	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownFunction = errors.New("server: unknown function")
	ErrHandlerPanic    = errors.New("server: handler panicked")
	ErrSocketBinding   = errors.New("server: cannot bind socket")
	ErrLocalAddress    = errors.New("server: no local address")
)

// Dispatcher resolves a call against the container and runs its handler
// through the middleware chain. It is safe for concurrent use.
type Dispatcher struct {
	container *container.Container
	codec     codec.Codec
	handler   middleware.HandlerFunc
}

// NewDispatcher builds the middleware chain once; mws run in the given order
// around the function lookup and invocation.
func NewDispatcher(c *container.Container, cdc codec.Codec, mws ...middleware.Middleware) *Dispatcher {
	d := &Dispatcher{container: c, codec: cdc}
	d.handler = middleware.Chain(mws...)(d.invoke)
	return d
}

// Dispatch returns the encoded result of call. Functions without a return
// type produce an empty, non-nil buffer.
func (d *Dispatcher) Dispatch(ctx context.Context, call *protocol.RpcCall) ([]byte, error) {
	return d.handler(ctx, call)
}

// Respond dispatches call and folds any failure into the response.
func (d *Dispatcher) Respond(ctx context.Context, call *protocol.RpcCall) *message.Response {
	result, err := d.Dispatch(ctx, call)
	if err != nil {
		return &message.Response{Error: err.Error()}
	}
	return &message.Response{Payload: result}
}

func (d *Dispatcher) invoke(ctx context.Context, call *protocol.RpcCall) (result []byte, err error) {
	name := call.Envelope.Name()
	fn, ok := d.container.Find(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
	if err := fn.CheckArity(len(call.Envelope.Args)); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"call_id": call.CallID,
				"fn":      name,
				"stack":   string(debug.Stack()),
			}).Error("handler panicked")
			result, err = nil, fmt.Errorf("%w: %s: %v", ErrHandlerPanic, name, r)
		}
	}()

	result, err = fn.Handler(ctx, call.Envelope.Args, d.codec)
	if err != nil {
		return nil, err
	}
	if !fn.HasReturn() || result == nil {
		result = []byte{}
	}
	return result, nil
}
