package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sealcoin/seal/pkg/api"
	"github.com/sealcoin/seal/pkg/artifacts"
	"github.com/sealcoin/seal/pkg/config"
	"github.com/sealcoin/seal/pkg/host"
	"github.com/sealcoin/seal/pkg/observability"
	"github.com/sealcoin/seal/pkg/statestore"
)

// closer is a backend that holds connections.
type closer interface {
	Close() error
}

// openBackend opens the state backend selected by cfg.
func openBackend(ctx context.Context, cfg *config.Config) (statestore.Backend, error) {
	switch b := cfg.Backend(); b {
	case config.BackendMemory:
		log.Printf("[seal] state: in-memory (not persisted)")
		return statestore.NewMemoryStore(), nil
	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		path := filepath.Join(cfg.DataDir, "seal.db")
		log.Printf("[seal] lite mode: using sqlite at %s", path)
		s, err := statestore.OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("postgres backend requires DATABASE_URL")
		}
		s, err := statestore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Println("[seal] postgres: connected")
		return s, nil
	case config.BackendRedis:
		s := statestore.NewRedisStore(statestore.RedisConfig{Addr: cfg.RedisAddr, Prefix: cfg.RedisPrefix})
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		log.Printf("[seal] redis: connected to %s", cfg.RedisAddr)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", b)
	}
}

func authorizer(cfg *config.Config) (host.Authorizer, error) {
	switch cfg.AuthMode {
	case config.AuthSigned, "":
		return host.SignedAuthorizer{}, nil
	case config.AuthAllowAll:
		if cfg.Production {
			return nil, errors.New("allow-all auth is refused in production")
		}
		log.Printf("[seal] auth: allow-all, every principal is treated as authorized")
		return host.AllowAll{}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}
}

// node is a running host with everything it owns.
type node struct {
	host    *host.Host
	backend statestore.Backend
	metrics *observability.Provider
}

func openNode(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*node, error) {
	auth, err := authorizer(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	n := &node{backend: backend}

	store, err := artifacts.NewStore(ctx, cfg.Artifacts)
	if err != nil {
		n.close(ctx)
		return nil, err
	}
	n.metrics, err = observability.New(ctx, &cfg.Telemetry)
	if err != nil {
		n.close(ctx)
		return nil, err
	}
	n.host, err = host.New(ctx, host.Options{
		Backend:      backend,
		Artifacts:    store,
		Authorizer:   auth,
		Metrics:      n.metrics,
		Logger:       logger.With("component", "host"),
		ContractName: cfg.ContractName,
	})
	if err != nil {
		n.close(ctx)
		return nil, err
	}
	return n, nil
}

func (n *node) close(ctx context.Context) {
	if n.metrics != nil {
		if err := n.metrics.Shutdown(ctx); err != nil {
			log.Printf("[seal] telemetry shutdown: %v", err)
		}
	}
	if c, ok := n.backend.(closer); ok {
		if err := c.Close(); err != nil {
			log.Printf("[seal] state backend close: %v", err)
		}
	}
}

func runServeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	port := cmd.String("port", "", "listen port (default $PORT or 8080)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if *port != "" {
		cfg.Port = *port
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := openNode(ctx, cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "startup: %v\n", err)
		return 1
	}
	defer n.close(context.Background())

	srv := api.NewServer(n.host, api.ServerOptions{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Logger:         logger.With("component", "api"),
	})
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		_, _ = fmt.Fprintf(stdout, "%sSeal host listening on :%s%s (contract %s)\n", ColorBold+ColorBlue, cfg.Port, ColorReset, n.host.Address())
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			_, _ = fmt.Fprintf(stderr, "server: %v\n", err)
			return 1
		}
	case <-ctx.Done():
		log.Println("[seal] shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			_, _ = fmt.Fprintf(stderr, "shutdown: %v\n", err)
			return 1
		}
	}
	return 0
}
