// Package k8scert provides the optional Kubernetes Secret-based
// certloader.Provider.
package k8scert

import (
	"context"
	"crypto/tls"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Provider fetches a TLS certificate from a Kubernetes Secret of type
// kubernetes.io/tls, re-reading it on every call; it keeps no cached copy.
type Provider struct {
	clientset  kubernetes.Interface
	namespace  string
	secretName string
}

// New builds a Provider for the named Secret.
func New(clientset kubernetes.Interface, namespace, secretName string) *Provider {
	return &Provider{clientset: clientset, namespace: namespace, secretName: secretName}
}

// GetCertificate implements certloader.Provider.
func (p *Provider) GetCertificate(ctx context.Context) (*tls.Certificate, error) {
	secret, err := p.clientset.CoreV1().Secrets(p.namespace).Get(ctx, p.secretName, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("k8scert: get secret %s/%s: %w", p.namespace, p.secretName, err)
	}

	certBytes, ok := secret.Data[corev1.TLSCertKey]
	if !ok {
		return nil, fmt.Errorf("k8scert: secret %s/%s missing %s", p.namespace, p.secretName, corev1.TLSCertKey)
	}
	keyBytes, ok := secret.Data[corev1.TLSPrivateKeyKey]
	if !ok {
		return nil, fmt.Errorf("k8scert: secret %s/%s missing %s", p.namespace, p.secretName, corev1.TLSPrivateKeyKey)
	}

	cert, err := tls.X509KeyPair(certBytes, keyBytes)
	if err != nil {
		return nil, fmt.Errorf("k8scert: parse x509 key pair from %s/%s: %w", p.namespace, p.secretName, err)
	}
	return &cert, nil
}
