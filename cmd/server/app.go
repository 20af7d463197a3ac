package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"autolot/internal/config"
	"autolot/internal/repository/sqlite"
	"autolot/internal/service"
	"autolot/internal/storage"
)

// application is everything a request handler or CLI command needs,
// built once at startup.
type application struct {
	cfg      config.Config
	logger   *logrus.Logger
	db       *sqlx.DB
	users    service.UserService
	listings service.ListingService
	images   storage.ImageStore
}

func newApplication(ctx context.Context, flags *pflag.FlagSet, logger *logrus.Logger) (*application, error) {
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(level)

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	userRepo := sqlite.NewUserRepository(db)
	carRepo := sqlite.NewCarRepository(db)
	if err := userRepo.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init user repository: %w", err)
	}
	if err := carRepo.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init car repository: %w", err)
	}

	images, err := buildImageStore(ctx, cfg, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setup image storage: %w", err)
	}

	return &application{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		users:    service.NewUserService(userRepo, logger),
		listings: service.NewListingService(carRepo, images, logger),
		images:   images,
	}, nil
}

func (a *application) Close() error {
	return a.db.Close()
}

func (a *application) sessionTTL() time.Duration {
	return time.Duration(a.cfg.Auth.SessionTTLMinutes) * time.Minute
}

func buildImageStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.ImageStore, error) {
	if cfg.Storage.Driver != "s3" {
		logger.Infof("storing images in %s", cfg.Storage.LocalDir)
		return storage.NewLocalStore(cfg.Storage.LocalDir, "/images")
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
	return storage.NewS3Store(client, cfg.Storage.Bucket, cfg.Storage.KeyPrefix, logger)
}
