package certloader

import (
	"crypto/x509"
	"fmt"
	"os"

	"github.com/cloudflare/cfssl/helpers"
)

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// LoadClientCAPool parses a PEM bundle of trusted CA certificates for
// optional inbound mTLS. An empty path is not an error — it simply means no
// client certificate verification is configured.
func LoadClientCAPool(path string) (*x509.CertPool, error) {
	if path == "" {
		return nil, nil
	}
	pem, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("certloader: read ca_certs: %w", err)
	}
	certs, err := helpers.ParseCertificatesPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("certloader: parse ca_certs: %w", err)
	}
	pool := x509.NewCertPool()
	for _, c := range certs {
		pool.AddCert(c)
	}
	return pool, nil
}
