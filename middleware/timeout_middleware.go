package middleware

import (
	"context"
	"errors"
	"time"

	"corgi-rpc/protocol"
)

var ErrTimeout = errors.New("middleware: request timed out")

type result struct {
	data []byte
	err  error
}

// TimeOutMiddleware bounds how long a call may run. The handler keeps running
// in the background after the deadline; its context is cancelled so it can
// stop early.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *protocol.RpcCall) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan result, 1)
			go func() {
				data, err := next(ctx, call)
				done <- result{data, err}
			}()

			select {
			case r := <-done:
				return r.data, r.err
			case <-ctx.Done():
				return nil, ErrTimeout
			}
		}
	}
}
