package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/wordpot/engine/pkg/common/logger"
)

const consumerName = "settler"

// NATSQueue is the durable JetStream-backed Queue. The task ID rides the
// Nats-Msg-Id header so duplicate enqueues of the same logical payload are
// dropped by the server.
type NATSQueue struct {
	js      jetstream.JetStream
	stream  string
	subject string
	cctx    jetstream.ConsumeContext
}

func NewNATSQueue(nc *nats.Conn, stream string) (*NATSQueue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	subject := stream + ".tasks"
	_, err = js.CreateOrUpdateStream(context.Background(), jetstream.StreamConfig{
		Name:        stream,
		Description: "Settlement tasks for " + stream,
		Subjects:    []string{subject},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("create settlement stream: %w", err)
	}

	return &NATSQueue{js: js, stream: stream, subject: subject}, nil
}

func (q *NATSQueue) Enqueue(ctx context.Context, task Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	header := nats.Header{}
	header.Add("Nats-Msg-Id", task.ID)
	_, err = q.js.PublishMsg(ctx, &nats.Msg{
		Subject: q.subject,
		Data:    data,
		Header:  header,
	})
	if err != nil {
		return fmt.Errorf("enqueue settlement task %s: %w", task.ID, err)
	}
	return nil
}

func (q *NATSQueue) Consume(ctx context.Context, handler func(Task) error) error {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		MaxAckPending: 4,
		MaxDeliver:    5,
		BackOff: []time.Duration{
			5 * time.Second, 30 * time.Second, 2 * time.Minute, 10 * time.Minute,
		},
	})
	if err != nil {
		return fmt.Errorf("create settlement consumer: %w", err)
	}

	cctx, err := consumer.Consume(func(msg jetstream.Msg) {
		var task Task
		if err := json.Unmarshal(msg.Data(), &task); err != nil {
			logger.Error("malformed settlement task, terminating", "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(task); err != nil {
			logger.Error("settlement task failed, leaving for redelivery", "task", task.ID, "error", err)
			return
		}
		if err := msg.Ack(); err != nil {
			logger.Error("ack settlement task failed", "task", task.ID, "error", err)
		}
	})
	if err != nil {
		return err
	}
	q.cctx = cctx

	<-ctx.Done()
	return ctx.Err()
}

func (q *NATSQueue) Close() {
	if q.cctx != nil {
		q.cctx.Stop()
	}
}
