package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/wordpot/engine/pkg/common/logger"
)

// LogSettler records what would be settled without touching a chain. Used
// when no chain integration is configured; the journal still captures every
// task so a real settler can reconcile later.
type LogSettler struct{}

func (LogSettler) ClaimBonusWord(_ context.Context, roundID string, wordIndex int, word, salt string, finder int64, amountWei string) (string, error) {
	logger.Info("settle: claim bonus word",
		"round", roundID, "word_index", wordIndex, "word", word,
		"finder", finder, "amount_wei", amountWei)
	return dryRef("bonus", roundID, wordIndex), nil
}

func (LogSettler) BurnWord(_ context.Context, roundID string, wordIndex int, amountWei string) (string, error) {
	logger.Info("settle: burn word",
		"round", roundID, "word_index", wordIndex, "amount_wei", amountWei)
	return dryRef("burn", roundID, wordIndex), nil
}

func (LogSettler) ResolveWithPayouts(_ context.Context, roundID string, recipients []Recipient, seedWei string) (string, error) {
	logger.Info("settle: resolve round",
		"round", roundID, "recipients", len(recipients), "seed_wei", seedWei)
	return dryRef("resolve", roundID, 0), nil
}

func dryRef(kind, roundID string, idx int) string {
	return fmt.Sprintf("dry:%s:%s:%d:%d", kind, roundID, idx, time.Now().Unix())
}
