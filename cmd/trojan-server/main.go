// Command trojan-server runs the server role of the TLS-tunneled relay:
// a cobra root command that loads a viper-backed JSON config file, builds
// the TLS/dial/metrics/ops stack, and serves until signaled to stop.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/GreaterFire/trojan/internal/certloader"
	"github.com/GreaterFire/trojan/internal/certloader/k8scert"
	"github.com/GreaterFire/trojan/internal/config"
	"github.com/GreaterFire/trojan/internal/core"
	"github.com/GreaterFire/trojan/internal/dialer"
	"github.com/GreaterFire/trojan/internal/logging"
	"github.com/GreaterFire/trojan/internal/metrics"
	"github.com/GreaterFire/trojan/internal/opsrv"
	"github.com/GreaterFire/trojan/internal/resolve"
	"github.com/GreaterFire/trojan/internal/session"
)

var (
	configPath     string
	logLevelFlag   int
	listenOverride string
)

func main() {
	root := &cobra.Command{
		Use:   "trojan-server",
		Short: "Run the server role of the trojan traffic relay.",
		RunE:  run,
	}
	root.Flags().StringVar(&configPath, "config", "config.json", "path to the JSON config file")
	root.Flags().IntVar(&logLevelFlag, "log-level", -1, "override the config file's log_level (0-4)")
	root.Flags().StringVar(&listenOverride, "listen", "", "override local_addr:local_port from the config file")

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.RunType != config.RunServer {
		return fmt.Errorf("trojan-server only implements run_type=server, got %q", cfg.RunType)
	}
	if logLevelFlag >= 0 {
		cfg.LogLevel = logLevelFlag
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	tlsConfig, err := buildTLSConfig(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("build TLS config: %w", err)
	}

	resolver, err := resolve.NewDNSResolver()
	if err != nil {
		return fmt.Errorf("build resolver: %w", err)
	}
	d := dialer.New(resolver)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	ops := opsrv.New(cfg.MetricsAddr, reg)
	opsErrs := ops.Start()

	listenAddr := fmt.Sprintf("%s:%d", cfg.LocalAddr, cfg.LocalPort)
	if listenOverride != "" {
		listenAddr = listenOverride
	}
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddr, err)
	}
	log.Info("listening", zap.String("addr", listenAddr))

	server := &core.Server{
		Listener:  ln,
		TLSConfig: tlsConfig,
		Dialer:    d,
		Metrics:   m,
		Log:       log,
		SessionConfig: session.Config{
			PasswordDigest: cfg.PasswordDigest,
			Fallback:       session.Target{Host: cfg.RemoteAddr, Port: cfg.RemotePort},
		},
	}
	ops.SetReady(true)

	serveErrs := make(chan error, 1)
	go func() { serveErrs <- server.Serve() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErrs:
		return fmt.Errorf("serve: %w", err)
	case err := <-opsErrs:
		return fmt.Errorf("ops server: %w", err)
	case s := <-sig:
		log.Info("shutting down", zap.String("signal", s.String()))
		_ = ln.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ops.Stop(shutdownCtx)
		return nil
	}
}

// buildTLSConfig selects a certloader.Provider: an explicit file pair
// first, then a Kubernetes Secret. There is no self-signed fallback — a
// stealth relay with a self-signed cert defeats the whole point of
// blending in with ordinary TLS traffic the moment a client's stack flags
// it, so this command requires real TLS material to be configured.
func buildTLSConfig(ctx context.Context, cfg *config.Config) (*tls.Config, error) {
	var provider certloader.Provider
	switch {
	case cfg.CertFile != "" && cfg.KeyFile != "":
		provider = certloader.NewFileProvider(cfg.CertFile, cfg.KeyFile, cfg.KeyFilePassword)
	case cfg.TLSSecretName != "":
		clientset, err := buildKubernetesClientset()
		if err != nil {
			return nil, fmt.Errorf("build kubernetes clientset: %w", err)
		}
		namespace := cfg.TLSSecretNamespace
		if namespace == "" {
			namespace = "default"
		}
		provider = k8scert.New(clientset, namespace, cfg.TLSSecretName)
	default:
		return nil, fmt.Errorf("no TLS material configured: set certfile/keyfile or tls_secret_name")
	}

	cert, err := provider.GetCertificate(ctx)
	if err != nil {
		return nil, err
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS12,
	}

	if cfg.CACerts != "" {
		pool, err := certloader.LoadClientCAPool(cfg.CACerts)
		if err != nil {
			return nil, err
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.VerifyClientCertIfGiven
	}

	return tlsCfg, nil
}

// buildKubernetesClientset tries an explicit kubeconfig first, then falls
// back to in-cluster config.
func buildKubernetesClientset() (*kubernetes.Clientset, error) {
	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		kubeconfig = os.Getenv("HOME") + "/.kube/config"
	}

	restCfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig},
		&clientcmd.ConfigOverrides{},
	).ClientConfig()
	if err != nil {
		restCfg, err = clientcmd.BuildConfigFromFlags("", "")
		if err != nil {
			return nil, fmt.Errorf("build kubeconfig: %w", err)
		}
	}
	return kubernetes.NewForConfig(restCfg)
}
