package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kfcempoyee/gofiledrop/internal/blob"
	"github.com/kfcempoyee/gofiledrop/internal/config"
	"github.com/kfcempoyee/gofiledrop/internal/gateway"
	"github.com/kfcempoyee/gofiledrop/internal/registry/regpb"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gateway:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	lg := config.SetupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.TmpDir, 0o750); err != nil {
		return fmt.Errorf("failed to create tmp dir: %w", err)
	}

	store, err := blob.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}

	conn, err := grpc.NewClient(cfg.RegistryAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("did not connect: %w", err)
	}
	defer conn.Close()

	handler := &gateway.FileHandler{
		TmpDir:        cfg.TmpDir,
		MaxUploadSize: cfg.MaxUploadSize,
		GRpcClient:    regpb.NewRegServiceClient(conn),
		Blobs:         store,
		Logger:        lg,
	}

	router := gateway.NewRouter(handler)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.Route(lg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lg.Info("gateway starting", "addr", cfg.HTTPAddr, "registry", cfg.RegistryAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down gateway")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	lg.Info("gateway stopped")
	return nil
}
