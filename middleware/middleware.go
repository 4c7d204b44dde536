package middleware

import (
	"context"

	"corgi-rpc/protocol"
)

// HandlerFunc executes one reassembled call and returns the encoded result.
type HandlerFunc func(ctx context.Context, call *protocol.RpcCall) ([]byte, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so the first one listed runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
