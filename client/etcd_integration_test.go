package client

import (
	"context"
	"net"
	"testing"
	"time"

	"corgi-rpc/codec"
	"corgi-rpc/loadbalance"
	"corgi-rpc/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const etcdEndpoint = "127.0.0.1:2379"

func etcdRegistry(t *testing.T) *registry.EtcdRegistry {
	t.Helper()
	conn, err := net.DialTimeout("tcp", etcdEndpoint, 200*time.Millisecond)
	if err != nil {
		t.Skipf("etcd not reachable at %s: %v", etcdEndpoint, err)
	}
	conn.Close()

	reg, err := registry.NewEtcdRegistry([]string{etcdEndpoint}, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg
}

// Client → etcd discovery → balancer → UDP transport → server → container.
func TestFullIntegrationWithEtcd(t *testing.T) {
	reg := etcdRegistry(t)
	startServer(t, reg, &codec.JSONCodec{})

	cli := NewClient(reg, &loadbalance.RoundRobinBalancer{}, &codec.JSONCodec{})
	defer cli.Close()

	var sum int32
	require.NoError(t, cli.Call(context.Background(), "add", &sum, 3, 5))
	assert.Equal(t, int32(8), sum)

	var product int32
	require.NoError(t, cli.Call(context.Background(), "multiply", &product, 4, 6))
	assert.Equal(t, int32(24), product)
}

func TestMultiServerWithEtcd(t *testing.T) {
	reg := etcdRegistry(t)
	startServer(t, reg, &codec.JSONCodec{})
	startServer(t, reg, &codec.JSONCodec{})

	require.Eventually(t, func() bool {
		insts, err := reg.Discover("add")
		return err == nil && len(insts) >= 2
	}, 2*time.Second, 20*time.Millisecond)

	cli := NewClient(reg, loadbalance.NewConsistentHashBalancer(), &codec.JSONCodec{})
	defer cli.Close()

	for i := int32(1); i <= 10; i++ {
		var sum int32
		require.NoError(t, cli.Call(context.Background(), "add", &sum, i, i*10))
		assert.Equal(t, i+i*10, sum)
	}
}
