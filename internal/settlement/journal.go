package settlement

import (
	"strings"
	"time"

	"github.com/wordpot/engine/pkg/infra"
)

type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusConfirmed EntryStatus = "confirmed"
	StatusFailed    EntryStatus = "failed" // needs manual reconciliation
)

// JournalEntry tracks one settlement task's lifecycle outside the hot path.
type JournalEntry struct {
	TaskID    string      `json:"task_id"`
	Kind      TaskKind    `json:"kind"`
	Status    EntryStatus `json:"status"`
	TxRef     string      `json:"tx_ref,omitempty"`
	Attempts  int         `json:"attempts"`
	LastError string      `json:"last_error,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Journal persists settlement outcomes in the KV store so a crash between
// claim and confirmation stays reconcilable.
type Journal struct {
	kv infra.KVStore
}

func NewJournal(kv infra.KVStore) *Journal {
	return &Journal{kv: kv}
}

func (j *Journal) key(taskID string) string {
	return "settlement/" + taskID
}

func (j *Journal) Record(e JournalEntry) error {
	e.UpdatedAt = time.Now().UTC()
	return j.kv.SetAny(j.key(e.TaskID), e)
}

func (j *Journal) Get(taskID string) (*JournalEntry, bool, error) {
	var e JournalEntry
	ok, err := j.kv.GetAny(j.key(taskID), &e)
	if err != nil || !ok {
		return nil, false, err
	}
	return &e, true, nil
}

// Unreconciled lists failed entries for the operator.
func (j *Journal) Unreconciled() ([]JournalEntry, error) {
	pairs, err := j.kv.List("settlement/")
	if err != nil {
		return nil, err
	}
	var out []JournalEntry
	for _, p := range pairs {
		if !strings.Contains(p.Key, "settlement/") {
			continue
		}
		var e JournalEntry
		if err := infra.JSON.Unmarshal(p.Value, &e); err != nil {
			continue
		}
		if e.Status == StatusFailed {
			out = append(out, e)
		}
	}
	return out, nil
}
