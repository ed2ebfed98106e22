package core

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GreaterFire/trojan/internal/dialer"
	"github.com/GreaterFire/trojan/internal/digest"
	"github.com/GreaterFire/trojan/internal/protocol"
	"github.com/GreaterFire/trojan/internal/session"
)

type loopback struct{}

func (loopback) Resolve(context.Context, string) ([]net.IP, error) {
	return []net.IP{net.ParseIP("127.0.0.1")}, nil
}

func genCert(t *testing.T) tls.Certificate {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{Organization: []string{"test"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)
	return cert
}

func TestServeReturnsErrorAfterListenerClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cert := genCert(t)
	srv := &Server{
		Listener:  ln,
		TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
		Dialer:    dialer.New(loopback{}),
		Log:       zap.NewNop(),
		SessionConfig: session.Config{
			PasswordDigest: digest.Compute([]byte("x")),
			Fallback:       session.Target{Host: "127.0.0.1", Port: 1},
		},
	}

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	require.NoError(t, ln.Close())

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after listener was closed")
	}
}

func TestServeAcceptsAndRunsSession(t *testing.T) {
	target, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer target.Close()
	accepted := make(chan struct{}, 1)
	go func() {
		conn, err := target.Accept()
		if err != nil {
			return
		}
		accepted <- struct{}{}
		conn.Close()
	}()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cert := genCert(t)
	srv := &Server{
		Listener:  ln,
		TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
		Dialer:    dialer.New(loopback{}),
		Log:       zap.NewNop(),
		SessionConfig: session.Config{
			PasswordDigest: digest.Compute([]byte("hunter2")),
			Fallback:       session.Target{Host: "127.0.0.1", Port: 1},
		},
	}
	go srv.Serve()

	client, err := tls.Dial("tcp", ln.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	defer client.Close()

	pwDigest := digest.Compute([]byte("hunter2"))
	targetPort := uint16(target.Addr().(*net.TCPAddr).Port)
	req := protocol.Request{Command: protocol.CommandConnect, Type: protocol.AddressIPv4, Address: "127.0.0.1", Port: targetPort}
	header, err := protocol.Serialize(req)
	require.NoError(t, err)
	_, err = client.Write(append([]byte(pwDigest+"\r\n"), header...))
	require.NoError(t, err)

	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never dialed the target through the accepted session")
	}
}
