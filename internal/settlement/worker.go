package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/wordpot/engine/internal/store"
	"github.com/wordpot/engine/pkg/common/logger"
	"github.com/wordpot/engine/pkg/retry"
)

const defaultAttempts = 3

// Worker drains the settlement queue. Each task gets a short in-process
// retry burst; if that burst fails the task is journaled as failed and the
// queue's redelivery backoff takes over. A task already confirmed in the
// journal is acked without re-submitting, which keeps duplicate deliveries
// from double-paying.
type Worker struct {
	queue    Queue
	settler  Settler
	journal  *Journal
	store    store.Store
	attempts int
	interval time.Duration
}

func NewWorker(queue Queue, settler Settler, journal *Journal, st store.Store) *Worker {
	return &Worker{
		queue:    queue,
		settler:  settler,
		journal:  journal,
		store:    st,
		attempts: defaultAttempts,
		interval: 2 * time.Second,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	logger.Info("settlement worker started")
	return w.queue.Consume(ctx, func(task Task) error {
		return w.handle(ctx, task)
	})
}

func (w *Worker) handle(ctx context.Context, task Task) error {
	if entry, ok, _ := w.journal.Get(task.ID); ok && entry.Status == StatusConfirmed {
		logger.Debug("settlement task already confirmed", "task", task.ID, "tx", entry.TxRef)
		return nil
	}

	var txRef string
	attempts := 0
	err := retry.Constant(func() error {
		attempts++
		var callErr error
		txRef, callErr = w.submit(ctx, task)
		return callErr
	}, w.interval, w.attempts)

	if err != nil {
		_ = w.journal.Record(JournalEntry{
			TaskID:    task.ID,
			Kind:      task.Kind,
			Status:    StatusFailed,
			Attempts:  attempts,
			LastError: err.Error(),
		})
		return err
	}

	if err := w.journal.Record(JournalEntry{
		TaskID:   task.ID,
		Kind:     task.Kind,
		Status:   StatusConfirmed,
		TxRef:    txRef,
		Attempts: attempts,
	}); err != nil {
		logger.Error("journal settlement confirmation failed", "task", task.ID, "error", err)
	}

	if task.Kind == KindClaimBonus || task.Kind == KindBurnWord {
		if err := w.store.SetHiddenWordSettlement(ctx, task.RoundID, task.WordIndex, txRef); err != nil {
			logger.Error("record settlement ref failed", "task", task.ID, "error", err)
		}
	}

	logger.Info("settlement confirmed", "task", task.ID, "kind", task.Kind, "tx", txRef)
	return nil
}

func (w *Worker) submit(ctx context.Context, task Task) (string, error) {
	switch task.Kind {
	case KindClaimBonus:
		return w.settler.ClaimBonusWord(ctx, task.RoundID, task.WordIndex, task.Word, task.Salt, task.Account, task.AmountWei)
	case KindBurnWord:
		return w.settler.BurnWord(ctx, task.RoundID, task.WordIndex, task.AmountWei)
	case KindResolveRound:
		return w.settler.ResolveWithPayouts(ctx, task.RoundID, task.Payouts, task.SeedWei)
	default:
		return "", fmt.Errorf("unknown settlement task kind %q", task.Kind)
	}
}

// TaskIDForWord builds the idempotency key for a hidden-word settlement.
func TaskIDForWord(roundID string, wordIndex int) string {
	return fmt.Sprintf("round:%s:word:%d", roundID, wordIndex)
}

// TaskIDForResolution builds the idempotency key for a round resolution.
func TaskIDForResolution(roundID string) string {
	return fmt.Sprintf("round:%s:resolve", roundID)
}
