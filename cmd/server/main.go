package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"mator/internal/config"
	"mator/internal/download"
	"mator/internal/engine/anacrolix"
	apphttp "mator/internal/http"
	"mator/internal/metrics"
	"mator/internal/repository/sqlite"
	"mator/internal/service"
	"mator/internal/storage"
	"mator/internal/sweeper"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	downloadRepo := sqlite.NewDownloadRepository(db)
	fileRepo := sqlite.NewDownloadFileRepository(db)

	if err := downloadRepo.Init(ctx); err != nil {
		logger.Fatalf("init download repository: %v", err)
	}
	if err := fileRepo.Init(ctx); err != nil {
		logger.Fatalf("init download file repository: %v", err)
	}

	history := service.NewHistoryService(downloadRepo, fileRepo)
	if n, err := history.FailDangling(ctx); err != nil {
		logger.Warnf("fail dangling downloads: %v", err)
	} else if n > 0 {
		logger.Infof("failed %d download(s) left running by a previous process", n)
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	sw := sweeper.New(cfg.Downloads.Directory, cfg.RetentionMaxAge(), logrus.NewEntry(logger))
	if err := sw.Schedule(cfg.Downloads.SweepSchedule); err != nil {
		logger.Warnf("schedule sweeps: %v", err)
	}
	defer sw.Stop()

	storageSvc, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}
	if storageSvc == nil {
		logger.Info("artifact archival disabled (no storage bucket configured)")
	}

	auth := buildAuth(cfg, logger)

	svc := download.NewService(download.Config{
		SaveDir:         cfg.Downloads.Directory,
		MetadataTimeout: cfg.MetadataTimeout(),
		DownloadTimeout: cfg.DownloadTimeout(),
		MaxSize:         cfg.Downloads.MaxSizeBytes,
		ListenPort:      cfg.Downloads.ListenPort,
		UserAgent:       cfg.Downloads.UserAgent,
		ArchiveBucket:   cfg.Storage.Bucket,
		ArchivePrefix:   cfg.Storage.KeyPrefix,
	}, anacrolix.New(), sw, history, storageSvc, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(
		svc,
		history,
		storageSvc,
		cfg.Storage.Bucket,
		sw,
		auth,
		registry,
		logger,
		apphttp.Options{
			RateLimitRPS:   cfg.Server.RateLimitRPS,
			RateLimitBurst: cfg.Server.RateLimitBurst,
			MaxConcurrent:  int64(cfg.Downloads.MaxConcurrent),
		},
	)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	if cfg.Storage.Bucket == "" {
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client), nil
}

// buildAuth enables the admin API only when operator credentials are
// configured. A half-configured credential pair is a deployment mistake and
// stops startup.
func buildAuth(cfg config.Config, logger *logrus.Logger) service.AuthService {
	hasPassword := strings.TrimSpace(cfg.Auth.AdminPassword) != "" || strings.TrimSpace(cfg.Auth.AdminPasswordHash) != ""
	hasSecret := strings.TrimSpace(cfg.Auth.JWTSecret) != ""
	if !hasPassword && !hasSecret {
		logger.Info("admin API disabled (no operator credentials configured)")
		return nil
	}

	auth, err := service.NewAuthService(cfg.Auth.AdminPassword, cfg.Auth.AdminPasswordHash, cfg.Auth.JWTSecret, cfg.TokenTTL())
	if err != nil {
		logger.Fatalf("setup operator auth: %v", err)
	}
	return auth
}
