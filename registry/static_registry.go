package registry

import (
	"context"
	"slices"
	"sync"
)

// StaticRegistry keeps instances in memory. It serves single-process setups
// and tests that have no etcd at hand. ttl is ignored.
type StaticRegistry struct {
	mu        sync.Mutex
	instances map[string][]Instance
	watchers  map[string][]chan []Instance
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		instances: make(map[string][]Instance),
		watchers:  make(map[string][]chan []Instance),
	}
}

// Register adds instance, replacing an earlier one with the same address.
func (r *StaticRegistry) Register(function string, instance Instance, ttl int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	insts := slices.DeleteFunc(r.instances[function], func(i Instance) bool { return i.Addr == instance.Addr })
	r.instances[function] = append(insts, instance)
	r.notify(function)
	return nil
}

func (r *StaticRegistry) Deregister(function string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.instances[function] = slices.DeleteFunc(r.instances[function], func(i Instance) bool { return i.Addr == addr })
	r.notify(function)
	return nil
}

func (r *StaticRegistry) Discover(function string) ([]Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.instances[function]), nil
}

func (r *StaticRegistry) Watch(ctx context.Context, function string) <-chan []Instance {
	ch := make(chan []Instance, 1)

	r.mu.Lock()
	r.watchers[function] = append(r.watchers[function], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		r.watchers[function] = slices.DeleteFunc(r.watchers[function], func(c chan []Instance) bool { return c == ch })
		close(ch)
	}()
	return ch
}

// notify hands the latest list to each watcher, replacing an update the
// watcher has not consumed yet. Caller holds r.mu.
func (r *StaticRegistry) notify(function string) {
	for _, ch := range r.watchers[function] {
		select {
		case <-ch:
		default:
		}
		ch <- slices.Clone(r.instances[function])
	}
}

func (r *StaticRegistry) Close() error {
	return nil
}
