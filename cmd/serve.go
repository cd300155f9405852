package cmd

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

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blackmouse572/skin-doctor/internal/auth"
	"github.com/blackmouse572/skin-doctor/internal/config"
	"github.com/blackmouse572/skin-doctor/internal/detection"
	"github.com/blackmouse572/skin-doctor/internal/facequality"
	"github.com/blackmouse572/skin-doctor/internal/grpcclient"
	"github.com/blackmouse572/skin-doctor/internal/handlers"
	"github.com/blackmouse572/skin-doctor/internal/landmarker"
	"github.com/blackmouse572/skin-doctor/internal/logging"
	"github.com/blackmouse572/skin-doctor/internal/repository"
	"github.com/blackmouse572/skin-doctor/internal/stream"
	"github.com/blackmouse572/skin-doctor/internal/usecase"
)

const startupTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and live capture server",
	Long: `Start the skin-doctor server.
It exposes upload validation, stored results and metrics over HTTP and
streams live capture guidance to browsers over WebSocket.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Address to listen on (overrides HTTP_ADDR)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}

	logger, err := logging.NewLogger(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(cmd.Context(), startupTimeout)
	defer cancel()

	db, err := initDatabase(ctx, cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return err
	}
	repo := repository.NewValidationRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	redisClient, err := initRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	load, conn, err := grpcclient.DialLandmarker(ctx, cfg.Landmarker.Addr, logger)
	if err != nil {
		return fmt.Errorf("connect to face landmarker: %w", err)
	}
	defer conn.Close()

	topology, err := facequality.LoadTopology(cfg.Landmarker.TopologyFile)
	if err != nil {
		return err
	}

	images := landmarker.NewManager(load, landmarker.ImageOptions(), logger)
	defer images.Close()

	uc := usecase.NewValidationUseCase(
		repo,
		usecase.NewRedisCache(redisClient),
		facequality.NewValidator(images, logger),
		logger,
	)

	hub := stream.NewHub(stream.Config{
		Load:     load,
		Options:  landmarker.VideoOptions(),
		Analyzer: facequality.NewAnalyzer(topology, logger),
		NewScheduler: func() detection.Scheduler {
			return detection.NewIntervalScheduler(cfg.Detection.FPS)
		},
		StabilizationDelay: cfg.Detection.StabilizationDelay,
		MaxFPS:             cfg.Detection.StreamMaxFPS,
		Logger:             logger,
		CheckOrigin:        stream.AllowOrigins(cfg.HTTP.AllowedOrigins),
	})
	// Hijacked WebSocket connections outlive server.Shutdown.
	defer hub.Close()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.MaxMultipartMemory = cfg.HTTP.MaxUploadBytes

	handlers.RegisterRoutes(r, handlers.Routes{
		UseCase:        uc,
		Hub:            hub,
		Auth:           auth.JWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience),
		StreamAuth:     auth.JWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience, auth.Options{AllowQueryToken: true}),
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("skin-doctor listening", zap.String("addr", cfg.HTTP.Addr))
	return serveHTTPServer(server, cfg.HTTP.ShutdownTimeout, logger)
}

func initDatabase(ctx context.Context, cfg config.DatabaseConfig, level string, zapLogger *zap.Logger) (*gorm.DB, error) {
	logMode := gormlogger.Warn
	if level == "debug" {
		logMode = gormlogger.Info
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{Logger: gormlogger.Default.LogMode(logMode)})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping: %w", err)
	}

	zapLogger.Info("database connected")
	return db, nil
}

func initRedis(ctx context.Context, addr string) (*redis.Client, error) {
	redisCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(redisCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection: %w", err)
	}
	return client, nil
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
