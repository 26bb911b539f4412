package bootstrap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/pro-marketplace/internal/config"
	"github.com/wolfman30/pro-marketplace/internal/money"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

var quiet = logging.NewWithWriter(io.Discard, "error")

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Env:                       "development",
		UseMemoryStore:            true,
		JWTSecret:                 "secret",
		GatewayProvider:           "fake",
		MinBookingNotice:          24 * time.Hour,
		DefaultPlatformFeeBps:     1200,
		DefaultBankTransferFeeBps: 100,
		DefaultMinWithdrawalCents: 2500,
		DefaultMaxWithdrawalCents: 1_000_000,
		PricingRefreshInterval:    time.Minute,
		WebhookMaxRetries:         3,
		OutboxInterval:            time.Second,
		AWSRegion:                 "us-east-1",
	}
}

func TestBuildRedisClient(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, BuildRedisClient(ctx, &appconfig.Config{}, quiet, true))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(ctx, &appconfig.Config{RedisAddr: mr.Addr()}, quiet, true)
	require.NotNil(t, client)
	_ = client.Close()

	mr.Close()
	assert.Nil(t, BuildRedisClient(ctx, &appconfig.Config{RedisAddr: mr.Addr()}, quiet, true))
}

func TestLoadAWSConfigEndpointOverride(t *testing.T) {
	cfg := testConfig()
	cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey = "test", "test"
	cfg.AWSEndpointOverride = "http://localstack:4566"
	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", awsCfg.Region)
	assert.Equal(t, "http://localstack:4566", aws.ToString(awsCfg.BaseEndpoint))

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", creds.AccessKeyID)
}

func TestBuildStorageRefusesMemoryInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	_, _, closeFn, err := BuildStorage(context.Background(), cfg, quiet)
	assert.Error(t, err)
	assert.NotNil(t, closeFn)
}

func TestNewRejectsFakeGatewayInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	_, err := New(context.Background(), cfg, quiet)
	assert.ErrorContains(t, err, "GATEWAY_PROVIDER")
}

func TestNewWiresInMemoryApp(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()

	app, err := New(context.Background(), cfg, quiet)
	require.NoError(t, err)
	defer app.Close()

	snap := app.Pricing.Snapshot()
	assert.Equal(t, 1200, snap.PlatformFeeBps)
	assert.Equal(t, money.Cents(2500), snap.MinWithdrawal)

	r := app.Router()
	for _, path := range []string{"/health", "/metrics"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.RunWorkers(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop")
	}
}
