package main

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/GoSim-25-26J-441/habituation-core/internal/policy"
	"github.com/GoSim-25-26J-441/habituation-core/internal/simd"
	"github.com/GoSim-25-26J-441/habituation-core/internal/store"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/config"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the experiment daemon (gRPC and HTTP)",
		Long: `serve runs experiments submitted over gRPC or HTTP. Settings come from
HABSIM_* environment variables (see --env-file) and may be overridden by flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.ServerFromEnv()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("grpc-addr") {
				cfg.GRPCAddr, _ = flags.GetString("grpc-addr")
			}
			if flags.Changed("http-addr") {
				cfg.HTTPAddr, _ = flags.GetString("http-addr")
			}
			if flags.Changed("workers") {
				cfg.Workers, _ = flags.GetInt("workers")
			}
			if flags.Changed("db") {
				cfg.DBPath, _ = flags.GetString("db")
			}
			if flags.Changed("log-format") {
				cfg.LogFormat, _ = flags.GetString("log-format")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := flags.Set("log-format", cfg.LogFormat); err != nil {
				return err
			}
			log, err := setupLogger(cmd, cfg.LogLevel)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var opts []simd.ExecutorOption
			if cfg.DBPath != "" {
				archive, err := store.Open(ctx, cfg.DBPath)
				if err != nil {
					return err
				}
				defer archive.Close()
				opts = append(opts, simd.WithArchive(archive))
				log.Info("archiving runs", "db", cfg.DBPath)
			}
			retry, err := policy.NewRetryPolicy(cfg.CallbackRetries > 0, cfg.CallbackRetries, cfg.CallbackBackoff, time.Second)
			if err != nil {
				return err
			}
			opts = append(opts, simd.WithNotifier(simd.NewNotifier(retry)))

			runs := simd.NewRunStore()
			executor := simd.NewRunExecutor(runs, cfg.Workers, opts...)
			errs := make(chan error, 2)

			var grpcServer *grpc.Server
			if cfg.GRPCAddr != "" {
				lis, err := net.Listen("tcp", cfg.GRPCAddr)
				if err != nil {
					return fmt.Errorf("failed to listen for gRPC on %s: %w", cfg.GRPCAddr, err)
				}
				grpcServer = grpc.NewServer()
				simd.NewExperimentGRPCServer(runs, executor).Register(grpcServer)
				go func() {
					log.Info("gRPC server listening", "addr", cfg.GRPCAddr)
					if err := grpcServer.Serve(lis); err != nil {
						errs <- fmt.Errorf("gRPC server: %w", err)
					}
				}()
			}

			var httpSrv *http.Server
			if cfg.HTTPAddr != "" {
				httpSrv = &http.Server{
					Addr:              cfg.HTTPAddr,
					Handler:           simd.NewHTTPServer(runs, executor).WithSubmitLimit(policy.NewRateLimitingPolicy(cfg.SubmitRate)).Handler(),
					ReadHeaderTimeout: 5 * time.Second,
					WriteTimeout:      10 * time.Second,
					IdleTimeout:       120 * time.Second,
					MaxHeaderBytes:    1 << 20,
				}
				go func() {
					log.Info("HTTP server listening", "addr", cfg.HTTPAddr)
					if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						errs <- fmt.Errorf("HTTP server: %w", err)
					}
				}()
			}

			var serveErr error
			select {
			case <-ctx.Done():
				log.Info("shutdown requested")
			case serveErr = <-errs:
				log.Error("server failed", "error", serveErr)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if grpcServer != nil {
				grpcServer.GracefulStop()
			}
			if httpSrv != nil {
				if err := httpSrv.Shutdown(shutdownCtx); err != nil {
					log.Error("HTTP shutdown error", "error", err)
				}
			}
			for _, rec := range runs.List(math.MaxInt32, "") {
				if !rec.Run.Status.Terminal() {
					if _, err := executor.Stop(rec.Run.ID); err != nil {
						log.Debug("stop on shutdown", "run_id", rec.Run.ID, "error", err)
					}
				}
			}
			executor.Wait()
			return serveErr
		},
	}
	cmd.Flags().String("grpc-addr", "", "gRPC listen address (default from HABSIM_GRPC_ADDR or :50051)")
	cmd.Flags().String("http-addr", "", "HTTP listen address (default from HABSIM_HTTP_ADDR or :8080)")
	cmd.Flags().Int("workers", 0, "Concurrent runs, 0 for unlimited (default from HABSIM_WORKERS or 4)")
	return cmd
}
