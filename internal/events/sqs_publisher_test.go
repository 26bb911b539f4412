package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type captureSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (c *captureSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	c.input = params
	if c.err != nil {
		return nil, c.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSPublisherSendsEnvelope(t *testing.T) {
	client := &captureSQS{}
	pub := NewSQSPublisher(client, "https://sqs.local/queue")
	env := mustEnvelope(t, BookingCancelledV1{Reason: "client request"})

	if err := pub.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if aws.ToString(client.input.QueueUrl) != "https://sqs.local/queue" {
		t.Fatalf("unexpected queue url: %s", aws.ToString(client.input.QueueUrl))
	}
	if got := aws.ToString(client.input.MessageAttributes["event_type"].StringValue); got != TypeBookingCancelled {
		t.Fatalf("unexpected event_type attribute: %s", got)
	}
	var sent Envelope
	if err := json.Unmarshal([]byte(aws.ToString(client.input.MessageBody)), &sent); err != nil {
		t.Fatalf("body is not an envelope: %v", err)
	}
	if sent.EventID != env.EventID {
		t.Fatalf("event id mismatch")
	}
}

func TestSQSPublisherWrapsError(t *testing.T) {
	pub := NewSQSPublisher(&captureSQS{err: errors.New("throttled")}, "q")
	if err := pub.Handle(context.Background(), Envelope{EventType: "x"}); err == nil {
		t.Fatal("expected error")
	}
}
