package registry

import "context"

// Instance is one server announcing a function. Each function a server hosts
// is registered separately, so discovery is keyed by function name.
type Instance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"` // Weight for load balancing
	Version string `json:"version,omitempty"`
	Codec   string `json:"codec,omitempty"` // Value codec the server decodes arguments with
}

type Registry interface {
	Register(function string, instance Instance, ttl int64) error
	Deregister(function string, addr string) error
	Discover(function string) ([]Instance, error)
	// Watch emits the full instance list after every change until ctx is done.
	Watch(ctx context.Context, function string) <-chan []Instance
	Close() error
}
