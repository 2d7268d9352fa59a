// Package discovery handles the hidden bonus and burn words: drawing them
// from the curated pool, matching guesses against their commitments and
// handing claimed words off to settlement.
package discovery

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/wordpot/engine/internal/commitment"
	"github.com/wordpot/engine/internal/settlement"
	"github.com/wordpot/engine/internal/store"
	"github.com/wordpot/engine/pkg/common/logger"
	"github.com/wordpot/engine/pkg/model"
)

var ErrPoolExhausted = errors.New("candidate pool too small for selection")

// Select draws count distinct words from pool, excluding the given words,
// using the system CSPRNG. Draw is without replacement.
func Select(pool []string, count int, excluding []string) ([]string, error) {
	banned := make(map[string]struct{}, len(excluding))
	for _, w := range excluding {
		banned[w] = struct{}{}
	}
	candidates := make([]string, 0, len(pool))
	for _, w := range pool {
		if _, skip := banned[w]; !skip {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) < count {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrPoolExhausted, count, len(candidates))
	}

	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(candidates))))
		if err != nil {
			return nil, fmt.Errorf("draw selection index: %w", err)
		}
		j := idx.Int64()
		out = append(out, candidates[j])
		candidates[j] = candidates[len(candidates)-1]
		candidates = candidates[:len(candidates)-1]
	}
	return out, nil
}

type Discovery struct {
	queue settlement.Queue
}

func New(queue settlement.Queue) *Discovery {
	return &Discovery{queue: queue}
}

// CheckMatch scans only the round's unclaimed hidden words, comparing the
// guess against each commitment hash. No decryption is needed to match: the
// commitment is recomputed from the candidate word and the stored salt.
// Returns (nil, nil) when nothing matches.
func (d *Discovery) CheckMatch(ctx context.Context, st store.Store, roundID, word string) (*model.HiddenWord, error) {
	unclaimed, err := st.HiddenWordsByRound(ctx, roundID, true)
	if err != nil {
		return nil, err
	}
	for _, h := range unclaimed {
		if commitment.Verify(commitment.FamilyHidden, word, h.Salt, h.Hash) {
			return h, nil
		}
	}
	return nil, nil
}

// Settle enqueues the on-chain consequence of a claimed word. It never
// blocks the guess response on chain confirmation; failures here are logged
// and the enqueued task is retried by the settlement worker.
func (d *Discovery) Settle(ctx context.Context, h *model.HiddenWord, word string) error {
	task := settlement.Task{
		ID:        settlement.TaskIDForWord(h.RoundID, h.WordIndex),
		RoundID:   h.RoundID,
		WordIndex: h.WordIndex,
		AmountWei: h.AmountWei,
	}
	switch h.Kind {
	case model.HiddenKindBonus:
		task.Kind = settlement.KindClaimBonus
		task.Word = word
		task.Salt = h.Salt
		if h.FinderAccount != nil {
			task.Account = *h.FinderAccount
		}
	case model.HiddenKindBurn:
		task.Kind = settlement.KindBurnWord
	default:
		return fmt.Errorf("unknown hidden word kind %q", h.Kind)
	}

	if err := d.queue.Enqueue(ctx, task); err != nil {
		// the claim stands regardless; operator reconciles from the journal
		logger.Error("enqueue word settlement failed", "task", task.ID, "error", err)
		return err
	}
	return nil
}
