// Package certloader provides the server's TLS identity: a file-based
// provider (the primary path, certfile/keyfile/keyfile_password) and,
// optionally, a Kubernetes Secret-based provider (package k8scert).
package certloader

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/cloudflare/cfssl/helpers"
)

// Provider yields the server's current TLS certificate. Both providers
// re-read their source (files or Secret) on every call; cmd/trojan-server
// consults its provider once at startup, so a rotated certificate takes
// effect on the next restart.
type Provider interface {
	GetCertificate(ctx context.Context) (*tls.Certificate, error)
}

// FileProvider loads a certificate chain and private key from disk,
// supporting an optional passphrase on the private key.
type FileProvider struct {
	CertFile string
	KeyFile  string
	Password string
}

// NewFileProvider builds a FileProvider. password may be empty for an
// unencrypted key.
func NewFileProvider(certFile, keyFile, password string) *FileProvider {
	return &FileProvider{CertFile: certFile, KeyFile: keyFile, Password: password}
}

func (p *FileProvider) GetCertificate(_ context.Context) (*tls.Certificate, error) {
	certPEM, err := readFile(p.CertFile)
	if err != nil {
		return nil, fmt.Errorf("certloader: read certfile: %w", err)
	}
	keyPEM, err := readFile(p.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("certloader: read keyfile: %w", err)
	}

	certs, err := helpers.ParseCertificatesPEM(certPEM)
	if err != nil || len(certs) == 0 {
		return nil, fmt.Errorf("certloader: parse certfile %s: %w", p.CertFile, err)
	}

	var key any
	if p.Password != "" {
		key, err = helpers.ParsePrivateKeyPEMWithPassword(keyPEM, []byte(p.Password))
	} else {
		key, err = helpers.ParsePrivateKeyPEM(keyPEM)
	}
	if err != nil {
		return nil, fmt.Errorf("certloader: parse keyfile %s: %w", p.KeyFile, err)
	}

	cert := &tls.Certificate{
		PrivateKey: key,
	}
	for _, c := range certs {
		cert.Certificate = append(cert.Certificate, c.Raw)
	}
	cert.Leaf = certs[0]
	return cert, nil
}
