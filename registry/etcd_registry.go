// Package registry announces which servers host which functions.
//
// The etcd implementation stores one key per function and server:
//
//	Key:   /corgi/functions/{function}/{addr}
//	Value: JSON-encoded Instance
//
// Keys are attached to a lease; if the server dies the lease expires and the
// entry disappears on its own.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const KeyPrefix = "/corgi/functions/"

func functionPrefix(function string) string {
	return KeyPrefix + function + "/"
}

func instanceKey(function, addr string) string {
	return functionPrefix(function) + addr
}

// EtcdRegistry implements Registry on top of etcd v3.
type EtcdRegistry struct {
	client  *clientv3.Client
	timeout time.Duration // Per-request deadline

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // Key → lease, revoked on Deregister
}

// NewEtcdRegistry connects to the given endpoints. dialTimeout also bounds
// every later request; zero means 3 seconds.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration) (*EtcdRegistry, error) {
	if dialTimeout <= 0 {
		dialTimeout = 3 * time.Second
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: connect etcd %v: %w", endpoints, err)
	}
	return &EtcdRegistry{
		client:  c,
		timeout: dialTimeout,
		leases:  make(map[string]clientv3.LeaseID),
	}, nil
}

// Register puts instance under the function's prefix with a lease of ttl
// seconds and keeps the lease alive in the background.
//
// The keep-alive runs on a context detached from the request deadline; it stops
// when the lease is revoked or the client is closed.
func (r *EtcdRegistry) Register(function string, instance Instance, ttl int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("registry: grant lease for %s: %w", function, err)
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	key := instanceKey(function, instance.Addr)
	if _, err = r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("registry: put %s: %w", key, err)
	}

	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return fmt.Errorf("registry: keepalive %s: %w", key, err)
	}
	go func() {
		for range ch {
		}
	}()

	r.mu.Lock()
	r.leases[key] = lease.ID
	r.mu.Unlock()
	return nil
}

// Deregister removes the instance. Revoking the lease also stops its
// keep-alive.
func (r *EtcdRegistry) Deregister(function string, addr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	key := instanceKey(function, addr)
	r.mu.Lock()
	id, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if ok {
		if _, err := r.client.Revoke(ctx, id); err == nil {
			return nil
		}
	}
	if _, err := r.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("registry: delete %s: %w", key, err)
	}
	return nil
}

// Watch re-reads the instance list on every change under the function's
// prefix. The channel is closed when ctx is done.
func (r *EtcdRegistry) Watch(ctx context.Context, function string) <-chan []Instance {
	ch := make(chan []Instance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, functionPrefix(function), clientv3.WithPrefix())
		for range watchChan {
			instances, err := r.Discover(function)
			if err != nil {
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns every live instance hosting function.
func (r *EtcdRegistry) Discover(function string) ([]Instance, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	resp, err := r.client.Get(ctx, functionPrefix(function), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("registry: discover %s: %w", function, err)
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance Instance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			continue // Skip malformed entries
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
