package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/kfcempoyee/gofiledrop/internal/blob"
	"github.com/kfcempoyee/gofiledrop/internal/config"
	"github.com/kfcempoyee/gofiledrop/internal/registry/handler"
	"github.com/kfcempoyee/gofiledrop/internal/registry/regpb"
	"github.com/kfcempoyee/gofiledrop/internal/registry/repository"
	"github.com/kfcempoyee/gofiledrop/internal/registry/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the gRPC registry and the background reaper",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

// общие для serve и sweep слои
type registry struct {
	cfg    *config.Config
	logger *slog.Logger
	repo   *repository.FileRepo
	store  blob.Store
	close  func() error
}

func setup(ctx context.Context) (*registry, error) {
	// настраиваем конфиг и логгер
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger := config.SetupLogger(cfg)

	// настраиваем бд, миграции накатываются при создании репо
	db, err := repository.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	repo, err := repository.NewFileRepo(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	store, err := blob.FromConfig(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &registry{
		cfg:    cfg,
		logger: logger,
		repo:   repo,
		store:  store,
		close:  db.Close,
	}, nil
}

func serve(ctx context.Context) error {
	reg, err := setup(ctx)
	if err != nil {
		return err
	}
	// обрываем соединение с бд последним, чтобы последние записи успели сделаться
	defer func() {
		if err := reg.close(); err != nil {
			reg.logger.Error("error closing db", "error", err)
		}
	}()

	cfg, logger := reg.cfg, reg.logger

	if err := os.MkdirAll(cfg.TmpDir, 0o750); err != nil {
		return fmt.Errorf("failed to create tmp dir: %w", err)
	}

	// теперь инициализируем все слои
	svc := service.NewFileService(reg.repo, reg.store, service.Options{
		CodeTTL:       cfg.CodeTTL,
		LinkTTL:       cfg.LinkTTL,
		MaxUploadSize: cfg.MaxUploadSize,
		TmpDir:        cfg.TmpDir,
	}, logger)
	reaper := service.NewReaper(reg.repo, reg.store, cfg.SweepInterval, logger)
	limiter := handler.NewConcurrencyLimiter(cfg.MaxConcurrentUploads)

	// настраиваем gRPC-сервер
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.LoggingInterceptor(logger),
		limiter.UnaryServerInterceptor(),
	))
	regpb.RegisterRegServiceServer(grpcServer, handler.NewGRPCHandler(svc))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// контекст всего приложения отменяется сигналом
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// запускаем очистку после миграций
	reaper.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC server starting", "addr", cfg.GRPCAddr)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Info("metrics server starting", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// фоновые задачи стопнуты до остановки сервера
		reaper.Stop()

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-time.After(cfg.ShutdownTimeout):
			logger.Warn("graceful stop timed out, forcing")
			grpcServer.Stop()
		}
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("registry stopped with error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}
