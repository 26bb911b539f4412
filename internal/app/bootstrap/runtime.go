package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/pro-marketplace/internal/config"
	"github.com/wolfman30/pro-marketplace/internal/directory"
	"github.com/wolfman30/pro-marketplace/internal/events"
	"github.com/wolfman30/pro-marketplace/internal/store"
	"github.com/wolfman30/pro-marketplace/internal/store/memory"
	"github.com/wolfman30/pro-marketplace/internal/store/postgres"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, pricing falls back to defaults", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// LoadAWSConfig builds the SDK config shared by the SQS, SES and S3 clients.
// AWS_ENDPOINT_OVERRIDE points every client at LocalStack.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(endpoint)
	}
	return awsCfg, nil
}

// Storage is the transactional store plus its outbox reader.
type Storage interface {
	store.Store
	events.OutboxSource
}

// BuildStorage connects to Postgres, or returns the in-memory store when
// USE_MEMORY_STORE is set or no DATABASE_URL is configured outside production.
// The returned close func is never nil.
func BuildStorage(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (Storage, directory.Directory, func(), error) {
	noop := func() {}
	if cfg.UseMemoryStore || strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsProduction() {
			return nil, nil, noop, fmt.Errorf("bootstrap: DATABASE_URL is required in production")
		}
		logger.Warn("using in-memory store; data is lost on restart")
		dir, err := buildStaticDirectory(cfg)
		if err != nil {
			return nil, nil, noop, err
		}
		return memory.New(), dir, noop, nil
	}

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, noop, err
	}
	var dir directory.Directory = directory.NewPostgres(pool)
	if cfg.DirectoryFile != "" {
		if dir, err = buildStaticDirectory(cfg); err != nil {
			pool.Close()
			return nil, nil, noop, err
		}
	}
	logger.Info("connected to postgres")
	return postgres.New(pool), dir, pool.Close, nil
}

func buildStaticDirectory(cfg *appconfig.Config) (directory.Directory, error) {
	if cfg.DirectoryFile == "" {
		return directory.NewStatic(), nil
	}
	return directory.LoadFile(cfg.DirectoryFile)
}
