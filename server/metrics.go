package server

import (
	"errors"

	"corgi-rpc/container"
	"corgi-rpc/middleware"
	"corgi-rpc/protocol"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "corgi"

// Metrics counts what the server sees on the wire and what it dispatches.
type Metrics struct {
	DatagramsReceived prometheus.Counter
	DatagramsRejected *prometheus.CounterVec // kind
	ReceiveErrors     prometheus.Counter
	CallsCompleted    prometheus.Counter
	CallsDispatched   *prometheus.CounterVec // function, status
	PendingEvicted    *prometheus.CounterVec // reason
	ReplyErrors       prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DatagramsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server", Name: "datagrams_received_total",
			Help: "Datagrams read from the socket.",
		}),
		DatagramsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server", Name: "datagrams_rejected_total",
			Help: "Datagrams or reassembled calls rejected by the protocol layer.",
		}, []string{"kind"}),
		ReceiveErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server", Name: "receive_errors_total",
			Help: "Transient socket read errors.",
		}),
		CallsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server", Name: "calls_completed_total",
			Help: "Calls whose chunks were fully reassembled.",
		}),
		CallsDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server", Name: "calls_dispatched_total",
			Help: "Dispatched calls by function and outcome.",
		}, []string{"function", "status"}),
		PendingEvicted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server", Name: "pending_evicted_total",
			Help: "Incomplete calls dropped before all chunks arrived.",
		}, []string{"reason"}),
		ReplyErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server", Name: "reply_errors_total",
			Help: "Responses that could not be encoded or sent.",
		}),
	}
}

var errorKinds = []struct {
	err  error
	kind string
}{
	{protocol.ErrChunkHeaderSize, "chunk_header_size"},
	{protocol.ErrEmptyCall, "empty_call"},
	{protocol.ErrChunkIndexOutOfRange, "chunk_index_out_of_range"},
	{protocol.ErrChunkTotalMismatch, "chunk_total_mismatch"},
	{protocol.ErrMaxFunctionName, "max_function_name"},
	{protocol.ErrMaxArguments, "max_arguments"},
	{protocol.ErrMaxArgumentSize, "max_argument_size"},
	{protocol.ErrTrailingGarbageBytes, "trailing_garbage_bytes"},
	{protocol.ErrDecode, "decode"},
	{protocol.ErrEncode, "encode"},
	{ErrUnknownFunction, "unknown_function"},
	{container.ErrArgumentCount, "argument_count"},
	{ErrHandlerPanic, "handler_panic"},
	{middleware.ErrTimeout, "timeout"},
	{middleware.ErrRateLimited, "rate_limited"},
}

// errorKind maps err onto a short label from the error taxonomy.
func errorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "other"
}
