package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcpruntime/core/pkg/logger"
	"github.com/mcpruntime/core/pkg/runtime"
	"github.com/mcpruntime/core/pkg/session"
)

const defaultGracefulTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mcpruntime session server",
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("transport", runtime.TransportStdio, "transport: stdio or websocket")
	flags.String("listen-addr", ":7777", "listen address when transport is websocket")
	flags.String("codec", "json", "wire codec name: json or cbor (the transports frame messages as JSON)")
	flags.String("auth-mode", runtime.AuthModeAnonymous, "auth mode: anonymous, local, password, or bearer")
	flags.String("bearer-secret", "", "HMAC secret for auth-mode=bearer")
	flags.String("bearer-issuer", "", "expected issuer for auth-mode=bearer")
	flags.String("bearer-audience", "", "expected audience for auth-mode=bearer")
	flags.String("authz-backend", runtime.AuthzBackendRBAC, "tool authorization backend: rbac or cedar")
	flags.String("cedar-policy-path", "", "policy config path for authz-backend=cedar")
	flags.String("audit-log-path", "", "audit log file path (disabled if empty)")
	flags.String("redis-addr", "", "Redis address backing session context persistence (in-process only if empty)")
	flags.String("redis-password", "", "Redis password")
	flags.String("metrics-addr", "", "enables Prometheus metrics, served at /metrics on the websocket listener (no listener is opened on this address)")
	flags.String("resource-metadata-url", "", "this runtime's externally reachable identifier, for auth-mode=bearer discovery")

	for _, name := range []string{
		"transport", "listen-addr", "codec", "auth-mode", "bearer-secret", "bearer-issuer",
		"bearer-audience", "authz-backend", "cedar-policy-path", "audit-log-path",
		"redis-addr", "redis-password", "metrics-addr", "resource-metadata-url",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			logger.Errorf("error binding %s flag: %v", name, err)
		}
	}
}

func configFromFlags() runtime.Config {
	cfg := runtime.DefaultConfig()
	cfg.Transport = viper.GetString("transport")
	cfg.ListenAddr = viper.GetString("listen-addr")
	cfg.Codec = viper.GetString("codec")
	cfg.AuthMode = viper.GetString("auth-mode")
	if secret := viper.GetString("bearer-secret"); secret != "" {
		cfg.BearerSecret = []byte(secret)
	}
	cfg.BearerIssuer = viper.GetString("bearer-issuer")
	cfg.BearerAudience = viper.GetString("bearer-audience")
	cfg.AuthzBackend = viper.GetString("authz-backend")
	cfg.CedarPolicyPath = viper.GetString("cedar-policy-path")
	cfg.AuditLogPath = viper.GetString("audit-log-path")
	cfg.RedisAddr = viper.GetString("redis-addr")
	cfg.RedisPassword = viper.GetString("redis-password")
	cfg.MetricsAddr = viper.GetString("metrics-addr")
	cfg.ResourceMetadataURL = viper.GetString("resource-metadata-url")
	return cfg
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := configFromFlags()

	rt, err := runtime.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to construct runtime: %w", err)
	}
	defer rt.Close()

	if cfg.RedisAddr != "" {
		store, err := session.NewRedisSnapshotStore(context.Background(), session.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		rt.UseSnapshotStore(store)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go rt.Run(ctx)

	switch cfg.Transport {
	case runtime.TransportStdio:
		logger.Info("mcpruntime serving a single session over stdio")
		rt.ServeStdio(ctx, os.Stdin, os.Stdout)
		return nil
	case runtime.TransportWebSocket:
		return serveWebSocket(ctx, rt, cfg)
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func serveWebSocket(ctx context.Context, rt *runtime.Runtime, cfg runtime.Config) error {
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: rt.Handler(ctx),
	}

	go func() {
		logger.Infof("mcpruntime listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down mcpruntime...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server forced to shutdown: %v", err)
		return err
	}
	logger.Info("mcpruntime shutdown complete")
	return nil
}
