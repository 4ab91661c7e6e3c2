// Package sqsqueue implements the ports.Queue contract over SQS: the
// receive/delete/send + visibility-timeout semantics spec §6 names are
// exactly SQS's native API.
package sqsqueue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ILLUVRSE/meeting-minutes/internal/ports"
)

// Queue implements ports.Queue over an SQS client.
type Queue struct {
	client *sqs.Client
}

func New(client *sqs.Client) *Queue {
	return &Queue{client: client}
}

func (q *Queue) Receive(ctx context.Context, queueURL string, maxMessages int32, waitSeconds int32) ([]ports.Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(queueURL),
		MaxNumberOfMessages:   maxMessages,
		WaitTimeSeconds:       waitSeconds,
		MessageAttributeNames: []string{string(types.QueueAttributeNameAll)},
	})
	if err != nil {
		return nil, fmt.Errorf("sqsqueue: receive: %w", err)
	}

	msgs := make([]ports.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		body := ""
		if m.Body != nil {
			body = *m.Body
		}
		handle := ""
		if m.ReceiptHandle != nil {
			handle = *m.ReceiptHandle
		}
		msgs = append(msgs, ports.Message{Body: body, ReceiptHandle: handle})
	}
	return msgs, nil
}

func (q *Queue) Delete(ctx context.Context, queueURL string, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqsqueue: delete: %w", err)
	}
	return nil
}

func (q *Queue) Send(ctx context.Context, queueURL string, body string) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("sqsqueue: send: %w", err)
	}
	return nil
}
