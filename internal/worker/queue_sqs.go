package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSAPI is the slice of the SQS client the queue uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue publishes jobs to an SQS queue.
type SQSQueue struct {
	client   SQSAPI
	queueURL string
}

func NewSQSQueue(client SQSAPI, queueURL string) *SQSQueue {
	return &SQSQueue{client: client, queueURL: queueURL}
}

func (q *SQSQueue) Submit(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}

// SQSConsumer long-polls the job queue and hands each job to a Handler.
// Messages are deleted once handled, including failed jobs; their errors have
// already gone to the user's progress channel.
type SQSConsumer struct {
	client   SQSAPI
	queueURL string
	handler  Handler

	waitSeconds  int32
	retryBackoff time.Duration
}

func NewSQSConsumer(client SQSAPI, queueURL string, handler Handler) *SQSConsumer {
	return &SQSConsumer{
		client:       client,
		queueURL:     queueURL,
		handler:      handler,
		waitSeconds:  20,
		retryBackoff: 5 * time.Second,
	}
}

// Run polls until ctx is done.
func (c *SQSConsumer) Run(ctx context.Context) error {
	log.Info("sqs consumer started", "queue", c.queueURL)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("sqs receive failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryBackoff):
			}
		}
	}
}

// poll receives one batch and processes it.
func (c *SQSConsumer) poll(ctx context.Context) error {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     c.waitSeconds,
	})
	if err != nil {
		return err
	}

	for _, msg := range out.Messages {
		var job Job
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &job); err != nil {
			log.Warn("sqs bad message", "error", err)
			c.delete(ctx, msg.ReceiptHandle)
			continue
		}
		if err := c.handler.Handle(ctx, job); err != nil {
			log.Error("job failed", "kind", job.Kind, "company_id", job.TenantID, "error", err)
		}
		c.delete(context.WithoutCancel(ctx), msg.ReceiptHandle)
	}
	return nil
}

func (c *SQSConsumer) delete(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		log.Warn("sqs delete failed", "error", err)
	}
}
