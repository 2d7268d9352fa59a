package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/wordpot/engine/pkg/model"
)

// Memory is the in-process Store used by tests and single-node CLI runs.
// One mutex serializes all writes; Atomic snapshots the whole state and
// restores it on error, which gives the same all-or-nothing behavior the
// postgres store gets from transactions.
type Memory struct {
	mu sync.Mutex
	st *memState
}

func NewMemory() *Memory {
	return &Memory{st: newMemState()}
}

type memState struct {
	rounds      map[string]*model.Round
	roundOrder  []string
	guesses     map[string][]*model.Guess
	guessedSet  map[string]map[string]struct{}
	credits     map[string]*model.DailyCreditState
	commitments map[string][]*model.Commitment
	hidden      map[string][]*model.HiddenWord
	payouts     map[string][]*model.Payout
	reserveWei  *uint256.Int
}

func newMemState() *memState {
	return &memState{
		rounds:      make(map[string]*model.Round),
		guesses:     make(map[string][]*model.Guess),
		guessedSet:  make(map[string]map[string]struct{}),
		credits:     make(map[string]*model.DailyCreditState),
		commitments: make(map[string][]*model.Commitment),
		hidden:      make(map[string][]*model.HiddenWord),
		payouts:     make(map[string][]*model.Payout),
		reserveWei:  uint256.NewInt(0),
	}
}

func (m *Memory) Atomic(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.st.clone()
	if err := fn(&memTx{st: m.st}); err != nil {
		m.st = snap
		return err
	}
	return nil
}

func (m *Memory) CreateRound(ctx context.Context, r *model.Round, cs []*model.Commitment, hw []*model.HiddenWord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createRound(r, cs, hw)
}

func (m *Memory) GetRound(ctx context.Context, id string) (*model.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getRound(id)
}

func (m *Memory) ActiveRound(ctx context.Context) (*model.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.activeRound()
}

func (m *Memory) LatestUncarriedSeed(ctx context.Context) (*model.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.latestUncarriedSeed()
}

func (m *Memory) MarkSeedCarried(ctx context.Context, roundID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.markSeedCarried(roundID)
}

func (m *Memory) TransitionRound(ctx context.Context, id string, from model.RoundStatus, mutate func(r *model.Round) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.transitionRound(id, from, mutate)
}

func (m *Memory) AppendGuess(ctx context.Context, g *model.Guess) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.appendGuess(g)
}

func (m *Memory) WordGuessed(ctx context.Context, roundID, word string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.wordGuessed(roundID, word)
}

func (m *Memory) GuessesByRound(ctx context.Context, roundID string) ([]*model.Guess, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.guessesByRound(roundID)
}

func (m *Memory) WithCreditState(ctx context.Context, account int64, day string,
	create func() *model.DailyCreditState, mutate func(s *model.DailyCreditState) error) (*model.DailyCreditState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.withCreditState(account, day, create, mutate)
}

func (m *Memory) GetCreditState(ctx context.Context, account int64, day string) (*model.DailyCreditState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getCreditState(account, day)
}

func (m *Memory) CommitmentsByRound(ctx context.Context, roundID string) ([]*model.Commitment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.commitmentsByRound(roundID)
}

func (m *Memory) HiddenWordsByRound(ctx context.Context, roundID string, onlyUnclaimed bool) ([]*model.HiddenWord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.hiddenWordsByRound(roundID, onlyUnclaimed)
}

func (m *Memory) ClaimHiddenWord(ctx context.Context, roundID string, wordIndex int, account int64, at time.Time) (*model.HiddenWord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.claimHiddenWord(roundID, wordIndex, account, at)
}

func (m *Memory) SetHiddenWordSettlement(ctx context.Context, roundID string, wordIndex int, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.setHiddenWordSettlement(roundID, wordIndex, ref)
}

func (m *Memory) SavePayouts(ctx context.Context, payouts []*model.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.savePayouts(payouts)
}

func (m *Memory) PayoutsByRound(ctx context.Context, roundID string) ([]*model.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.payoutsByRound(roundID)
}

func (m *Memory) AddToReserve(ctx context.Context, amountWei string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.addToReserve(amountWei)
}

func (m *Memory) DrainReserve(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.drainReserve()
}

// memTx is the view handed to Atomic callbacks. The outer call already holds
// the store mutex, so it talks to the state directly; a nested Atomic is a
// no-op wrapper.
type memTx struct {
	st *memState
}

func (t *memTx) Atomic(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t *memTx) CreateRound(ctx context.Context, r *model.Round, cs []*model.Commitment, hw []*model.HiddenWord) error {
	return t.st.createRound(r, cs, hw)
}
func (t *memTx) GetRound(ctx context.Context, id string) (*model.Round, error) {
	return t.st.getRound(id)
}
func (t *memTx) ActiveRound(ctx context.Context) (*model.Round, error) {
	return t.st.activeRound()
}
func (t *memTx) LatestUncarriedSeed(ctx context.Context) (*model.Round, error) {
	return t.st.latestUncarriedSeed()
}
func (t *memTx) MarkSeedCarried(ctx context.Context, roundID string) error {
	return t.st.markSeedCarried(roundID)
}
func (t *memTx) TransitionRound(ctx context.Context, id string, from model.RoundStatus, mutate func(r *model.Round) error) error {
	return t.st.transitionRound(id, from, mutate)
}
func (t *memTx) AppendGuess(ctx context.Context, g *model.Guess) error {
	return t.st.appendGuess(g)
}
func (t *memTx) WordGuessed(ctx context.Context, roundID, word string) (bool, error) {
	return t.st.wordGuessed(roundID, word)
}
func (t *memTx) GuessesByRound(ctx context.Context, roundID string) ([]*model.Guess, error) {
	return t.st.guessesByRound(roundID)
}
func (t *memTx) WithCreditState(ctx context.Context, account int64, day string,
	create func() *model.DailyCreditState, mutate func(s *model.DailyCreditState) error) (*model.DailyCreditState, error) {
	return t.st.withCreditState(account, day, create, mutate)
}
func (t *memTx) GetCreditState(ctx context.Context, account int64, day string) (*model.DailyCreditState, error) {
	return t.st.getCreditState(account, day)
}
func (t *memTx) CommitmentsByRound(ctx context.Context, roundID string) ([]*model.Commitment, error) {
	return t.st.commitmentsByRound(roundID)
}
func (t *memTx) HiddenWordsByRound(ctx context.Context, roundID string, onlyUnclaimed bool) ([]*model.HiddenWord, error) {
	return t.st.hiddenWordsByRound(roundID, onlyUnclaimed)
}
func (t *memTx) ClaimHiddenWord(ctx context.Context, roundID string, wordIndex int, account int64, at time.Time) (*model.HiddenWord, error) {
	return t.st.claimHiddenWord(roundID, wordIndex, account, at)
}
func (t *memTx) SetHiddenWordSettlement(ctx context.Context, roundID string, wordIndex int, ref string) error {
	return t.st.setHiddenWordSettlement(roundID, wordIndex, ref)
}
func (t *memTx) SavePayouts(ctx context.Context, payouts []*model.Payout) error {
	return t.st.savePayouts(payouts)
}
func (t *memTx) PayoutsByRound(ctx context.Context, roundID string) ([]*model.Payout, error) {
	return t.st.payoutsByRound(roundID)
}
func (t *memTx) AddToReserve(ctx context.Context, amountWei string) error {
	return t.st.addToReserve(amountWei)
}
func (t *memTx) DrainReserve(ctx context.Context) (string, error) {
	return t.st.drainReserve()
}

// --- state operations (mutex held by caller) --- //

func (s *memState) createRound(r *model.Round, cs []*model.Commitment, hw []*model.HiddenWord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, exists := s.rounds[r.ID]; exists {
		return fmt.Errorf("round %s already exists", r.ID)
	}
	s.rounds[r.ID] = cloneRound(r)
	s.roundOrder = append(s.roundOrder, r.ID)
	s.guessedSet[r.ID] = make(map[string]struct{})
	for _, c := range cs {
		cc := *c
		if cc.ID == "" {
			cc.ID = uuid.NewString()
		}
		cc.RoundID = r.ID
		s.commitments[r.ID] = append(s.commitments[r.ID], &cc)
	}
	for _, h := range hw {
		hc := cloneHidden(h)
		if hc.ID == "" {
			hc.ID = uuid.NewString()
		}
		hc.RoundID = r.ID
		s.hidden[r.ID] = append(s.hidden[r.ID], hc)
	}
	return nil
}

func (s *memState) getRound(id string) (*model.Round, error) {
	r, ok := s.rounds[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRound(r), nil
}

func (s *memState) activeRound() (*model.Round, error) {
	for i := len(s.roundOrder) - 1; i >= 0; i-- {
		r := s.rounds[s.roundOrder[i]]
		if r.Status == model.RoundStatusActive {
			return cloneRound(r), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memState) latestUncarriedSeed() (*model.Round, error) {
	for i := len(s.roundOrder) - 1; i >= 0; i-- {
		r := s.rounds[s.roundOrder[i]]
		if r.Status == model.RoundStatusResolved && !r.SeedCarried {
			return cloneRound(r), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memState) markSeedCarried(roundID string) error {
	r, ok := s.rounds[roundID]
	if !ok {
		return ErrNotFound
	}
	r.SeedCarried = true
	return nil
}

func (s *memState) transitionRound(id string, from model.RoundStatus, mutate func(r *model.Round) error) error {
	r, ok := s.rounds[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != from {
		return ErrRoundConflict
	}
	next := cloneRound(r)
	if err := mutate(next); err != nil {
		return err
	}
	s.rounds[id] = next
	return nil
}

func (s *memState) appendGuess(g *model.Guess) error {
	r, ok := s.rounds[g.RoundID]
	if !ok {
		return ErrNotFound
	}
	if r.Status != model.RoundStatusActive {
		return ErrRoundClosed
	}
	set := s.guessedSet[g.RoundID]
	if _, dup := set[g.Word]; dup {
		return ErrDuplicateWord
	}
	gc := *g
	if gc.ID == "" {
		gc.ID = uuid.NewString()
	}
	if gc.GuessedAt.IsZero() {
		gc.GuessedAt = time.Now().UTC()
	}
	r.TotalGuesses++
	gc.Seq = r.TotalGuesses
	set[g.Word] = struct{}{}
	s.guesses[g.RoundID] = append(s.guesses[g.RoundID], &gc)
	*g = gc
	return nil
}

func (s *memState) wordGuessed(roundID, word string) (bool, error) {
	set, ok := s.guessedSet[roundID]
	if !ok {
		return false, ErrNotFound
	}
	_, dup := set[word]
	return dup, nil
}

func (s *memState) guessesByRound(roundID string) ([]*model.Guess, error) {
	out := make([]*model.Guess, 0, len(s.guesses[roundID]))
	for _, g := range s.guesses[roundID] {
		gc := *g
		out = append(out, &gc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func creditKey(account int64, day string) string {
	return fmt.Sprintf("%d|%s", account, day)
}

func (s *memState) withCreditState(account int64, day string,
	create func() *model.DailyCreditState, mutate func(st *model.DailyCreditState) error) (*model.DailyCreditState, error) {
	key := creditKey(account, day)
	cur, ok := s.credits[key]
	var next *model.DailyCreditState
	if ok {
		cp := *cur
		next = &cp
	} else {
		next = create()
		next.AccountID = account
		next.Day = day
		if next.ID == "" {
			next.ID = uuid.NewString()
		}
	}
	if mutate != nil {
		if err := mutate(next); err != nil {
			return nil, err
		}
	}
	s.credits[key] = next
	cp := *next
	return &cp, nil
}

func (s *memState) getCreditState(account int64, day string) (*model.DailyCreditState, error) {
	cur, ok := s.credits[creditKey(account, day)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cur
	return &cp, nil
}

func (s *memState) commitmentsByRound(roundID string) ([]*model.Commitment, error) {
	out := make([]*model.Commitment, 0, len(s.commitments[roundID]))
	for _, c := range s.commitments[roundID] {
		cc := *c
		out = append(out, &cc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WordIndex < out[j].WordIndex })
	return out, nil
}

func (s *memState) hiddenWordsByRound(roundID string, onlyUnclaimed bool) ([]*model.HiddenWord, error) {
	out := make([]*model.HiddenWord, 0, len(s.hidden[roundID]))
	for _, h := range s.hidden[roundID] {
		if onlyUnclaimed && h.Claimed() {
			continue
		}
		out = append(out, cloneHidden(h))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WordIndex < out[j].WordIndex })
	return out, nil
}

func (s *memState) claimHiddenWord(roundID string, wordIndex int, account int64, at time.Time) (*model.HiddenWord, error) {
	for _, h := range s.hidden[roundID] {
		if h.WordIndex != wordIndex {
			continue
		}
		if h.Claimed() {
			return nil, ErrClaimLost
		}
		acc := account
		ts := at
		h.FinderAccount = &acc
		h.FoundAt = &ts
		return cloneHidden(h), nil
	}
	return nil, ErrNotFound
}

func (s *memState) setHiddenWordSettlement(roundID string, wordIndex int, ref string) error {
	for _, h := range s.hidden[roundID] {
		if h.WordIndex == wordIndex {
			h.SettlementRef = ref
			return nil
		}
	}
	return ErrNotFound
}

func (s *memState) savePayouts(payouts []*model.Payout) error {
	for _, p := range payouts {
		pc := *p
		if pc.ID == "" {
			pc.ID = uuid.NewString()
		}
		s.payouts[pc.RoundID] = append(s.payouts[pc.RoundID], &pc)
	}
	return nil
}

func (s *memState) payoutsByRound(roundID string) ([]*model.Payout, error) {
	out := make([]*model.Payout, 0, len(s.payouts[roundID]))
	for _, p := range s.payouts[roundID] {
		pc := *p
		out = append(out, &pc)
	}
	return out, nil
}

func (s *memState) addToReserve(amountWei string) error {
	v, err := uint256.FromDecimal(amountWei)
	if err != nil {
		return err
	}
	s.reserveWei.Add(s.reserveWei, v)
	return nil
}

func (s *memState) drainReserve() (string, error) {
	out := s.reserveWei.Dec()
	s.reserveWei = uint256.NewInt(0)
	return out, nil
}

// --- cloning --- //

func cloneRound(r *model.Round) *model.Round {
	cp := *r
	cp.SecretCiphertext = append([]byte(nil), r.SecretCiphertext...)
	if r.WinnerAccount != nil {
		w := *r.WinnerAccount
		cp.WinnerAccount = &w
	}
	if r.ReferrerAccount != nil {
		ref := *r.ReferrerAccount
		cp.ReferrerAccount = &ref
	}
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}

func cloneHidden(h *model.HiddenWord) *model.HiddenWord {
	cp := *h
	cp.Ciphertext = append([]byte(nil), h.Ciphertext...)
	if h.FinderAccount != nil {
		f := *h.FinderAccount
		cp.FinderAccount = &f
	}
	if h.FoundAt != nil {
		t := *h.FoundAt
		cp.FoundAt = &t
	}
	return &cp
}

func (s *memState) clone() *memState {
	n := newMemState()
	for id, r := range s.rounds {
		n.rounds[id] = cloneRound(r)
	}
	n.roundOrder = append([]string(nil), s.roundOrder...)
	for id, gs := range s.guesses {
		for _, g := range gs {
			gc := *g
			n.guesses[id] = append(n.guesses[id], &gc)
		}
	}
	for id, set := range s.guessedSet {
		ns := make(map[string]struct{}, len(set))
		for w := range set {
			ns[w] = struct{}{}
		}
		n.guessedSet[id] = ns
	}
	for k, c := range s.credits {
		cc := *c
		n.credits[k] = &cc
	}
	for id, cs := range s.commitments {
		for _, c := range cs {
			cc := *c
			n.commitments[id] = append(n.commitments[id], &cc)
		}
	}
	for id, hs := range s.hidden {
		for _, h := range hs {
			n.hidden[id] = append(n.hidden[id], cloneHidden(h))
		}
	}
	for id, ps := range s.payouts {
		for _, p := range ps {
			pc := *p
			n.payouts[id] = append(n.payouts[id], &pc)
		}
	}
	n.reserveWei = new(uint256.Int).Set(s.reserveWei)
	return n
}
