package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/supplier-sim/core"
	"github.com/signalsfoundry/supplier-sim/internal/config"
	"github.com/signalsfoundry/supplier-sim/internal/envserver"
	"github.com/signalsfoundry/supplier-sim/internal/logging"
	"github.com/signalsfoundry/supplier-sim/internal/observability"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

func main() {
	loadDotEnv()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func loadDotEnv() {
	for _, envFile := range []string{".env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath  string
		grpcAddr    string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:          "env-server",
		Short:        "Serve supplier-selection environments over gRPC",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("grpc-addr") {
				cfg.Server.GRPCAddr = grpcAddr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Server.MetricsAddr = metricsAddr
			}

			log := logging.NewFromEnv()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
			if err != nil {
				log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.GRPCAddr), logging.Err(err))
				return err
			}
			return run(ctx, cfg, log, lis)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/simulator.yaml", "Path to the YAML configuration")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "TCP address the gRPC server listens on (overrides server.grpc_addr)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics; empty disables it")
	return cmd
}

// run serves on lis until ctx is cancelled, then stops gracefully.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, lis net.Listener) error {
	sc, err := cfg.LoadScenario()
	if err != nil {
		return err
	}
	envCfg := cfg.EnvConfig(sc)
	if err := envCfg.Validate(); err != nil {
		return err
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingSettings(envCfg), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	rpcMetrics, err := observability.NewRPCCollector(reg)
	if err != nil {
		return fmt.Errorf("init rpc metrics: %w", err)
	}
	envMetrics, err := observability.NewEnvCollector(reg)
	if err != nil {
		return fmt.Errorf("init env metrics: %w", err)
	}

	opts := append(cfg.EnvOptions(), core.WithLogger(log), core.WithMetrics(envMetrics))
	factory := func() (*core.Env, error) {
		return core.NewEnv(envCfg, opts...)
	}
	srv := envserver.NewServer(factory,
		envserver.WithLogger(log),
		envserver.WithSessionRecorder(rpcMetrics),
		envserver.WithMaxSessions(cfg.Server.MaxSessions),
	)
	server := envserver.NewGRPCServer(srv, log, rpcMetrics)
	metricsSrv := serveMetrics(cfg.Server.MetricsAddr, rpcMetrics.Handler(), log)

	log.Info(ctx, "starting environment gRPC server",
		logging.String("addr", lis.Addr().String()),
		logging.Int("days", envCfg.Panel.Len()),
		logging.Int("suppliers", envCfg.SupplierNum),
	)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(lis)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down environment server")
		server.GracefulStop()
		<-errCh
	case serveErr = <-errCh:
		if errors.Is(serveErr, grpc.ErrServerStopped) {
			serveErr = nil
		}
		if serveErr != nil {
			log.Error(context.Background(), "gRPC server exited", logging.Err(serveErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return serveErr
}

func serveMetrics(addr string, handler http.Handler, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
