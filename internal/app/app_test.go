package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-core/internal/api"
	"github.com/ignite/audience-core/internal/config"
	"github.com/ignite/audience-core/internal/notify"
	"github.com/ignite/audience-core/internal/worker"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Database.URL = "postgres://localhost/audience"
	cfg.Storage.Type = "local"
	cfg.Storage.LocalPath = t.TempDir()
	cfg.Queue.Driver = "local"
	cfg.Queue.LocalWorkers = 1
	cfg.Queue.LocalDepth = 4
	cfg.Mail.Driver = "log"
	cfg.Mail.SupportTo = "support@example.com"
	cfg.Import.Ways = 2
	cfg.Dedup.LeaseTTLSeconds = 60
	return cfg
}

func testDeps(t *testing.T, withRedis bool) Deps {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	deps := Deps{DB: db}
	if withRedis {
		mr := miniredis.RunT(t)
		deps.Redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { deps.Redis.Close() })
	}
	return deps
}

func TestBuild_LocalDrivers(t *testing.T) {
	a, err := Build(testConfig(t), testDeps(t, false))
	require.NoError(t, err)

	assert.IsType(t, &notify.LogSink{}, a.Sink)
	assert.IsType(t, &worker.LocalQueue{}, a.Queue)
	assert.NotNil(t, a.Lifecycle)
	assert.NotNil(t, a.Audience)
	assert.NotNil(t, a.Requests)

	_, err = a.Consumer()
	assert.ErrorIs(t, err, ErrNoSQS)

	ctx, cancel := context.WithCancel(context.Background())
	a.StartLocal(ctx)
	cancel()
	a.local.Stop()
}

func TestBuild_RedisEnablesProgressStream(t *testing.T) {
	a, err := Build(testConfig(t), testDeps(t, true))
	require.NoError(t, err)
	assert.IsType(t, &notify.RedisSink{}, a.Sink)

	srv := httptest.NewServer(api.SetupRoutes(a.Handlers(), nil))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBuild_AWSDrivers(t *testing.T) {
	cfg := testConfig(t)
	cfg.Queue.Driver = "sqs"
	cfg.Queue.SQSQueueURL = "https://sqs.us-west-2.amazonaws.com/123/jobs"
	cfg.Mail.Driver = "ses"
	cfg.Mail.From = "noreply@example.com"

	_, err := Build(cfg, testDeps(t, false))
	require.Error(t, err, "aws config is required")

	deps := testDeps(t, false)
	deps.AWS = &aws.Config{Region: "us-west-2"}
	a, err := Build(cfg, deps)
	require.NoError(t, err)
	assert.IsType(t, &worker.SQSQueue{}, a.Queue)

	consumer, err := a.Consumer()
	require.NoError(t, err)
	assert.NotNil(t, consumer)
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(testConfig(t), Deps{})
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Stripe.SecretKey = "sk_test_123"
	cfg.Stripe.PricePerContact = "not-a-number"
	_, err = Build(cfg, testDeps(t, false))
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Stripe.SecretKey = "sk_test_123"
	cfg.Stripe.PricePerContact = "0.01"
	_, err = Build(cfg, testDeps(t, false))
	assert.NoError(t, err)

	cfg = testConfig(t)
	cfg.Campaigns.RunnerURL = "http://campaigns.internal"
	_, err = Build(cfg, testDeps(t, false))
	assert.NoError(t, err)
}
