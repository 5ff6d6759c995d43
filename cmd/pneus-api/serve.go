package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/pneus/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/config"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/database"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/export"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/photos"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/server"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/tires"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := openDatabase(appConfig, logger)
	if err != nil {
		return err
	}
	defer database.Close(db) //nolint:errcheck

	recorder := metrics.NewRecorder()

	tireService, err := tires.NewService(tires.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: tires.NewUUIDProvider(),
		Logger:     logger,
		Observer:   recorder,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	exporter, err := newExporter(appConfig, tireService, logger, recorder)
	if err != nil {
		return err
	}

	store, files, err := openPhotoStore(ctx, appConfig)
	if err != nil {
		return err
	}
	uploader, err := photos.NewUploader(photos.UploaderConfig{
		Store:  store,
		Clock:  time.Now,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	dependencies := server.Dependencies{
		Users:          userService,
		Tokens:         tokenIssuer,
		TiresService:   tireService,
		Exporter:       exporter,
		Photos:         uploader,
		Realtime:       realtime.NewDispatcher(0),
		Metrics:        recorder,
		Logger:         logger,
		AllowedOrigins: appConfig.AllowedOrigins,
	}
	if files != nil {
		dependencies.PhotoFiles = files
	}
	handler, err := server.NewHTTPHandler(dependencies)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("database_driver", appConfig.DatabaseDriver),
			zap.String("storage_backend", appConfig.StorageBackend))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func openDatabase(appConfig config.AppConfig, logger *zap.Logger) (*gorm.DB, error) {
	return database.Open(database.Config{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
}

func newExporter(appConfig config.AppConfig, source export.Source, logger *zap.Logger, observer export.Observer) (*export.Exporter, error) {
	location, err := time.LoadLocation(appConfig.ExportTimezone)
	if err != nil {
		return nil, fmt.Errorf("export.timezone: %w", err)
	}
	return export.NewExporter(export.Config{
		Source:   source,
		Location: location,
		Clock:    time.Now,
		Logger:   logger,
		Observer: observer,
	})
}

// openPhotoStore returns the configured store; files is nil when photos are not served locally.
func openPhotoStore(ctx context.Context, appConfig config.AppConfig) (photos.Store, *photos.LocalStore, error) {
	switch appConfig.StorageBackend {
	case "s3":
		s3Config := photos.S3Config{
			Bucket:    appConfig.S3Bucket,
			Region:    appConfig.S3Region,
			Endpoint:  appConfig.S3Endpoint,
			AccessKey: appConfig.S3AccessKey,
			SecretKey: appConfig.S3SecretKey,
		}
		client, err := photos.NewS3Client(ctx, s3Config)
		if err != nil {
			return nil, nil, err
		}
		store, err := photos.NewS3Store(client, s3Config)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		store, err := photos.NewLocalStore(appConfig.StorageLocalDir, appConfig.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}
}
