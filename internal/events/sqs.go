package events

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// sendMessageAPI is the subset of *sqs.Client the publisher uses.
type sendMessageAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSConfig configures the SQS publisher.
type SQSConfig struct {
	QueueURL        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SQSPublisher sends each event as one SQS message.
type SQSPublisher struct {
	client   sendMessageAPI
	queueURL string
}

// NewSQSPublisher creates a publisher with static credentials.
func NewSQSPublisher(cfg SQSConfig) *SQSPublisher {
	client := sqs.New(sqs.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	})
	return &SQSPublisher{client: client, queueURL: cfg.QueueURL}
}

func (p *SQSPublisher) Publish(ctx context.Context, event DiagnosisCreated) error {
	body, err := event.encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"type": {DataType: aws.String("String"), StringValue: aws.String(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}

// Close is a no-op; the SQS client holds no connections of its own.
func (p *SQSPublisher) Close() error {
	return nil
}
