// Package settlement hands discovered-word rewards and round payouts to the
// on-chain settlement collaborator. Everything here is asynchronous with
// respect to guess scoring: tasks are enqueued durably, retried with bounded
// backoff, and failures are flagged for manual reconciliation. A settlement
// failure never un-claims a word or re-opens a round.
package settlement

import (
	"context"
	"errors"
	"time"
)

type TaskKind string

const (
	KindClaimBonus   TaskKind = "claim_bonus"
	KindBurnWord     TaskKind = "burn_word"
	KindResolveRound TaskKind = "resolve_round"
)

// Recipient is one payout leg of a round resolution.
type Recipient struct {
	Account   int64  `json:"account"`
	AmountWei string `json:"amount_wei"`
	Role      string `json:"role"`
}

// Task is the durable unit of settlement work. ID doubles as the idempotency
// key: re-enqueueing the same logical payload must not double-pay.
type Task struct {
	ID        string      `json:"id"`
	Kind      TaskKind    `json:"kind"`
	RoundID   string      `json:"round_id"`
	WordIndex int         `json:"word_index,omitempty"`
	Word      string      `json:"word,omitempty"`
	Salt      string      `json:"salt,omitempty"`
	Account   int64       `json:"account,omitempty"`
	AmountWei string      `json:"amount_wei,omitempty"`
	Payouts   []Recipient `json:"payouts,omitempty"`
	SeedWei   string      `json:"seed_wei,omitempty"`
}

// Settler is the external chain/token collaborator. Implementations must be
// idempotent per logical payload.
type Settler interface {
	ClaimBonusWord(ctx context.Context, roundID string, wordIndex int, word, salt string, finder int64, amountWei string) (txRef string, err error)
	BurnWord(ctx context.Context, roundID string, wordIndex int, amountWei string) (txRef string, err error)
	ResolveWithPayouts(ctx context.Context, roundID string, recipients []Recipient, seedWei string) (txRef string, err error)
}

// Queue transports tasks from the scoring path to the settlement worker.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	// Consume invokes handler for each task until ctx is done. A handler
	// error leaves the task for redelivery.
	Consume(ctx context.Context, handler func(Task) error) error
	Close()
}

var ErrQueueClosed = errors.New("settlement queue closed")

// MemoryQueue is the in-process Queue for tests and single-node runs.
type MemoryQueue struct {
	tasks     chan Task
	redeliver time.Duration
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	return &MemoryQueue{tasks: make(chan Task, size), redeliver: time.Second}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, handler func(Task) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-q.tasks:
			if !ok {
				return ErrQueueClosed
			}
			if err := handler(t); err != nil {
				go q.redeliverLater(ctx, t)
			}
		}
	}
}

// redeliverLater puts a failed task back on the channel after a pause. The
// send blocks rather than drops: a full queue delays redelivery, it never
// loses the task. Consumer shutdown abandons the redelivery with ctx.
func (q *MemoryQueue) redeliverLater(ctx context.Context, t Task) {
	select {
	case <-time.After(q.redeliver):
	case <-ctx.Done():
		return
	}
	select {
	case q.tasks <- t:
	case <-ctx.Done():
	}
}

func (q *MemoryQueue) Close() {}
