// Package queue is the Message Queue Gateway: enqueues and dequeues
// ingestion job messages with visibility-timeout semantics and explicit
// acknowledgment. No broker-specific types leak past this gateway — callers
// only see Envelope.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
)

const (
	maxReceiveMessages = 10
	maxWaitSeconds      = 20
)

// ManifestEntry is one row of the index/delete list in the envelope.
type ManifestEntry struct {
	KBDocID   int64  `json:"kb_doc_id"`
	DocID     int64  `json:"doc_id"`
	FileName  string `json:"file_name"`
	ObjectKey string `json:"object_key"`
}

// Envelope is the fixed queue message body (spec §6). Exactly one of
// IndexKBDocID / DeleteKBDocID is non-nil in normal operation. Unknown
// fields are ignored on decode.
type Envelope struct {
	IngestionJobID int64           `json:"ingestion_job_id"`
	KBID           int64           `json:"kb_id"`
	CollectionName string          `json:"collection_name"`
	Category       string          `json:"category"`
	UserID         int64           `json:"user_id"`
	IndexKBDocID   []ManifestEntry `json:"index_kb_doc_id"`
	DeleteKBDocID  []ManifestEntry `json:"delete_kb_doc_id"`
}

// Message pairs a decoded Envelope with the receipt handle needed to ack it.
type Message struct {
	Envelope      Envelope
	ReceiptHandle string
}

// ErrSend wraps any error the SQS API returns from a send (a smithy.APIError),
// transient or not; callers decide retry. Send failures that carry no API
// error (marshaling, transport) are returned without it.
var ErrSend = errors.New("queue send error")

// Gateway wraps an SQS client bound to one queue URL.
type Gateway struct {
	client   *sqs.Client
	queueURL string
}

// Config configures a Gateway.
type Config struct {
	QueueURL string
	Endpoint string
	Region   string
}

// New constructs a Gateway, resolving AWS credentials/region the standard
// SDK way.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Gateway{client: client, queueURL: cfg.QueueURL}, nil
}

// Ping verifies the queue is reachable, for readiness checks.
func (g *Gateway) Ping(ctx context.Context) error {
	_, err := g.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(g.queueURL),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return fmt.Errorf("pinging queue: %w", err)
	}
	return nil
}

// Send serializes env to JSON and enqueues it.
func (g *Gateway) Send(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	_, err = g.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(g.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("sending message: %w: %w", ErrSend, err)
		}
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Receive long-polls up to maxN messages (capped at 10) with up to
// waitSeconds wait (capped at 20). Messages that fail to parse are skipped
// and logged by the caller; they remain in the queue.
func (g *Gateway) Receive(ctx context.Context, maxN, waitSeconds int32, onParseError func(body string, err error)) ([]Message, error) {
	if maxN > maxReceiveMessages {
		maxN = maxReceiveMessages
	}
	if waitSeconds > maxWaitSeconds {
		waitSeconds = maxWaitSeconds
	}

	out, err := g.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(g.queueURL),
		MaxNumberOfMessages: maxN,
		WaitTimeSeconds:     waitSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("receiving messages: %w", err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, raw := range out.Messages {
		var env Envelope
		body := aws.ToString(raw.Body)
		if err := json.Unmarshal([]byte(body), &env); err != nil {
			if onParseError != nil {
				onParseError(body, err)
			}
			continue
		}
		messages = append(messages, Message{Envelope: env, ReceiptHandle: aws.ToString(raw.ReceiptHandle)})
	}

	return messages, nil
}

// Ack deletes the message, idempotent from the caller's view.
func (g *Gateway) Ack(ctx context.Context, receiptHandle string) error {
	_, err := g.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(g.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("acking message: %w", err)
	}
	return nil
}
