package server

import (
	"time"

	"corgi-rpc/codec"
	"corgi-rpc/protocol"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

type options struct {
	codec         codec.Codec
	datagramSize  int
	maxPending    int
	ttl           time.Duration
	sweepInterval time.Duration
	leaseTTL      int64
	metrics       *Metrics
	logger        logrus.FieldLogger
	clock         clock.Clock
}

func defaultOptions() options {
	return options{
		codec:         &codec.JSONCodec{},
		datagramSize:  protocol.DatagramSize,
		maxPending:    protocol.DefaultMaxPending,
		ttl:           30 * time.Second,
		sweepInterval: 5 * time.Second,
		leaseTTL:      10,
		logger:        logrus.StandardLogger(),
		clock:         clock.New(),
	}
}

type Option func(*options)

// WithCodec sets the value codec handlers decode arguments with.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithDatagramSize caps reply datagrams, header included.
func WithDatagramSize(n int) Option {
	return func(o *options) { o.datagramSize = n }
}

func WithMaxPending(n int) Option {
	return func(o *options) { o.maxPending = n }
}

// WithReassemblyTTL sets how long an incomplete call may wait for missing
// chunks. Zero disables expiry.
func WithReassemblyTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweepInterval = d }
}

// WithLeaseTTL sets the registry lease in seconds.
func WithLeaseTTL(seconds int64) Option {
	return func(o *options) { o.leaseTTL = seconds }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.logger = l }
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}
