package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lemonberrylabs/calcd/pkg/api"
	grpcapi "github.com/lemonberrylabs/calcd/pkg/api/grpc"
	"github.com/lemonberrylabs/calcd/pkg/runtime"
	"github.com/lemonberrylabs/calcd/pkg/store"
	"github.com/lemonberrylabs/calcd/web"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST, gRPC and web UI servers",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().Int("port", 0, "HTTP server port (default 8787, env PORT)")
	cmd.Flags().Int("grpc-port", 0, "gRPC server port (default 8788, env GRPC_PORT)")
	cmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env HOST)")
	cmd.Flags().String("project", "", "Project ID for API paths (default my-project, env PROJECT)")
	cmd.Flags().String("location", "", "Location for API paths (default us-central1, env LOCATION)")
	cmd.Flags().String("programs-dir", "", "Directory of program YAML/JSON files to load (env PROGRAMS_DIR)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := runtime.NewRunner(newEngine(cfg, log), store.New())
	server := api.New(runner, api.WithLogger(log))

	if cfg.ProgramsDir != "" {
		if _, err := server.WatchDir(ctx, cfg.ProgramsDir, cfg.Project, cfg.Location); err != nil {
			log.Warn("failed to load programs directory", zap.String("dir", cfg.ProgramsDir), zap.Error(err))
		}
	}

	web.New(runner, cfg.Project, cfg.Location).Register(server.App())
	grpcServer := grpcapi.New(runner, grpcapi.WithLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr()))
		return grpcServer.Serve(cfg.GRPCAddr())
	})
	g.Go(func() error {
		log.Info("calcd listening",
			zap.String("addr", cfg.Addr()),
			zap.String("project", cfg.Project),
			zap.String("location", cfg.Location),
			zap.Duration("timeout", cfg.Timeout))
		return server.Listen(cfg.Addr())
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		grpcServer.GracefulStop()
		err := server.Shutdown()
		runner.Shutdown()
		return err
	})

	return g.Wait()
}
