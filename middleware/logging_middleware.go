package middleware

import (
	"context"
	"time"

	"corgi-rpc/protocol"

	"github.com/sirupsen/logrus"
)

// LoggingMiddleware logs every call with its duration. Failed calls are
// logged at warn level with the error attached.
func LoggingMiddleware(logger logrus.FieldLogger) Middleware {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *protocol.RpcCall) ([]byte, error) {
			start := time.Now()
			result, err := next(ctx, call)
			entry := logger.WithFields(logrus.Fields{
				"call_id":  call.CallID,
				"fn":       call.Envelope.Name(),
				"args":     len(call.Envelope.Args),
				"duration": time.Since(start),
			})
			if err != nil {
				entry.WithError(err).Warn("call failed")
			} else {
				entry.WithField("result_bytes", len(result)).Debug("call served")
			}
			return result, err
		}
	}
}
