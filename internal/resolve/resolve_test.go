package resolve

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveLiteralIPv4SkipsQuery(t *testing.T) {
	r, err := NewDNSResolver("127.0.0.1:1") // deliberately unreachable; must be unused
	require.NoError(t, err)

	ips, err := r.Resolve(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	require.Len(t, ips, 1)
	require.True(t, ips[0].Equal(net.ParseIP("203.0.113.7")))
}

func TestResolveLiteralIPv6SkipsQuery(t *testing.T) {
	r, err := NewDNSResolver("127.0.0.1:1")
	require.NoError(t, err)

	ips, err := r.Resolve(context.Background(), "::1")
	require.NoError(t, err)
	require.Len(t, ips, 1)
	require.True(t, ips[0].Equal(net.ParseIP("::1")))
}

func TestResolveUnreachableServerWrapsError(t *testing.T) {
	// Bind a UDP socket and close it immediately so the port is very likely
	// to refuse the subsequent query outright rather than hang.
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := conn.LocalAddr().String()
	require.NoError(t, conn.Close())

	r, err := NewDNSResolver(addr)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = r.Resolve(ctx, "example.invalid")
	require.Error(t, err)
	var resolveErr *Error
	require.ErrorAs(t, err, &resolveErr)
	require.Equal(t, "example.invalid", resolveErr.Host)
}

func TestNewDNSResolverRequiresServers(t *testing.T) {
	r, err := NewDNSResolver()
	// With no explicit servers the outcome depends on the host's
	// /etc/resolv.conf: either an error, or a resolver with at least one
	// upstream server. It never returns a resolver that has none.
	if err == nil {
		require.NotEmpty(t, r.servers)
	}
}
