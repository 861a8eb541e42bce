package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/pkg/logger"
)

func TestRedisSink_PublishesOnUserChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sink := NewRedisSink(client)
	sub := sink.Subscribe(ctx, "u1")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, sink.Emit(ctx, "u1", domain.Progress(domain.ChannelUploadProgress, 40)))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "progress:u1", msg.Channel)

	var got domain.ProgressMessage
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, domain.ChannelUploadProgress, got.Channel)
	require.NotNil(t, got.Progress)
	assert.Equal(t, 40.0, *got.Progress)
	assert.Empty(t, got.Error)
}

func TestRedisSink_ErrorMessage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()

	sink := NewRedisSink(client)
	sub := sink.Subscribe(ctx, "u2")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	msg := domain.ProgressError(domain.ChannelMarkDuplicateProgress, errors.New("boom"))
	require.NoError(t, sink.Emit(ctx, "u2", msg))

	got, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel":"CONTACTS_MARK_DUPLICATE_PROGRESS","error":"boom"}`, got.Payload)
}

func TestRedisSink_ClosedClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	err := NewRedisSink(client).Emit(context.Background(), "u1", domain.Progress(domain.ChannelUploadProgress, 1))
	assert.Error(t, err)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(os.Stderr)

	sink := NewLogSink()
	require.NoError(t, sink.Emit(context.Background(), "u1", domain.Progress(domain.ChannelUploadProgress, 50)))
	require.NoError(t, sink.Emit(context.Background(), "u1", domain.ProgressError(domain.ChannelUploadProgress, errors.New("bad csv"))))

	out := buf.String()
	assert.Contains(t, out, `"progress":"50"`)
	assert.Contains(t, out, `"error":"bad csv"`)
	assert.Contains(t, out, `"component":"notify"`)
}
