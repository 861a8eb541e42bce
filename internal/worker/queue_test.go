package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalQueue_RunsJobs(t *testing.T) {
	got := make(chan Job, 3)
	q := NewLocalQueue(HandlerFunc(func(_ context.Context, j Job) error {
		got <- j
		return nil
	}), 2, 4)
	q.Start(context.Background())

	for _, tenant := range []string{"t1", "t2", "t3"} {
		require.NoError(t, q.Submit(context.Background(), Job{Kind: JobDedup, TenantID: tenant}))
	}
	q.Stop()
	close(got)

	var tenants []string
	for j := range got {
		tenants = append(tenants, j.TenantID)
	}
	assert.ElementsMatch(t, []string{"t1", "t2", "t3"}, tenants)
	assert.ErrorIs(t, q.Submit(context.Background(), Job{}), ErrQueueClosed)
}

func TestLocalQueue_Full(t *testing.T) {
	q := NewLocalQueue(HandlerFunc(func(context.Context, Job) error { return nil }), 1, 1)
	require.NoError(t, q.Submit(context.Background(), Job{TenantID: "t1"}))
	assert.ErrorIs(t, q.Submit(context.Background(), Job{TenantID: "t2"}), ErrQueueFull)
	q.Stop()
}

type captureQueue struct{ jobs []Job }

func (c *captureQueue) Submit(_ context.Context, j Job) error {
	c.jobs = append(c.jobs, j)
	return nil
}

func TestSubmitter(t *testing.T) {
	q := &captureQueue{}
	s := NewSubmitter(q)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	require.NoError(t, s.SubmitDedup(context.Background(), tenantID, "u1", "email"))
	require.NoError(t, s.SubmitImport(context.Background(), tenantID, "u1", "uploads/a.csv"))
	assert.Error(t, s.SubmitImport(context.Background(), tenantID, "u1", ""))
	assert.Error(t, s.SubmitDedup(context.Background(), "", "u1", "email"))

	assert.Equal(t, []Job{
		{Kind: JobDedup, TenantID: tenantID, UserID: "u1", PrimaryKey: "email", SubmittedAt: fixed},
		{Kind: JobImport, TenantID: tenantID, UserID: "u1", ObjectKey: "uploads/a.csv", SubmittedAt: fixed},
	}, q.jobs)
}

// fakeSQS delivers sent messages once and then long-polls until cancelled.
type fakeSQS struct {
	mu      sync.Mutex
	pending []types.Message
	deleted []string
	seq     int
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	handle := aws.String(string(rune('a' + f.seq)))
	f.pending = append(f.pending, types.Message{Body: in.MessageBody, ReceiptHandle: handle})
	return &sqs.SendMessageOutput{MessageId: handle}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	msgs := f.pending
	f.pending = nil
	f.mu.Unlock()
	if len(msgs) > 0 {
		return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) deletedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

func TestSQS_RoundTrip(t *testing.T) {
	client := &fakeSQS{}
	queue := NewSQSQueue(client, "https://sqs.local/jobs")
	require.NoError(t, queue.Submit(context.Background(), Job{Kind: JobDedup, TenantID: tenantID, UserID: "u1", PrimaryKey: "email"}))
	client.pending = append(client.pending, types.Message{Body: aws.String("{"), ReceiptHandle: aws.String("bad")})

	var (
		mu  sync.Mutex
		got []Job
	)
	consumer := NewSQSConsumer(client, "https://sqs.local/jobs", HandlerFunc(func(_ context.Context, j Job) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, j)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool { return client.deletedCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, JobDedup, got[0].Kind)
	assert.Equal(t, "email", got[0].PrimaryKey)
}
