// Package postgres backs store.Store with gorm over pgx. The atomic
// primitives map onto row-level locks (credit mutation, round CAS), a
// composite unique index (word reservation) and a conditional UPDATE
// (hidden-word claim).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wordpot/engine/internal/store"
	"github.com/wordpot/engine/pkg/model"
)

// Class 23 integrity violations we care about.
const uniqueViolation = "23505"

type Store struct {
	db *gorm.DB
}

func Open(url string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(
		&model.Round{}, &model.Guess{}, &model.DailyCreditState{},
		&model.Commitment{}, &model.HiddenWord{}, &model.Payout{},
		&model.ReserveAccumulator{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Atomic(ctx context.Context, fn func(tx store.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) CreateRound(ctx context.Context, r *model.Round, cs []*model.Commitment, hw []*model.HiddenWord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(r).Error; err != nil {
			return err
		}
		for _, c := range cs {
			c.RoundID = r.ID
		}
		if len(cs) > 0 {
			if err := tx.Create(&cs).Error; err != nil {
				return err
			}
		}
		for _, h := range hw {
			h.RoundID = r.ID
		}
		if len(hw) > 0 {
			if err := tx.Create(&hw).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetRound(ctx context.Context, id string) (*model.Round, error) {
	var r model.Round
	err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (s *Store) ActiveRound(ctx context.Context) (*model.Round, error) {
	var r model.Round
	err := s.db.WithContext(ctx).
		Where("status = ?", model.RoundStatusActive).
		Order("started_at DESC").
		First(&r).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (s *Store) LatestUncarriedSeed(ctx context.Context) (*model.Round, error) {
	var r model.Round
	err := s.db.WithContext(ctx).
		Where("status = ? AND seed_carried = false", model.RoundStatusResolved).
		Order("resolved_at DESC").
		First(&r).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (s *Store) MarkSeedCarried(ctx context.Context, roundID string) error {
	res := s.db.WithContext(ctx).Model(&model.Round{}).
		Where("id = ?", roundID).
		Update("seed_carried", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) TransitionRound(ctx context.Context, id string, from model.RoundStatus, mutate func(r *model.Round) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r model.Round
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&r, "id = ?", id).Error; err != nil {
			return mapErr(err)
		}
		if r.Status != from {
			return store.ErrRoundConflict
		}
		if err := mutate(&r); err != nil {
			return err
		}
		return tx.Save(&r).Error
	})
}

func (s *Store) AppendGuess(ctx context.Context, g *model.Guess) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Round row lock serializes sequence assignment and pins the status:
		// a concurrent resolution holds this lock while it flips the round,
		// so the check below sees the final state.
		var r model.Round
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&r, "id = ?", g.RoundID).Error; err != nil {
			return mapErr(err)
		}
		if r.Status != model.RoundStatusActive {
			return store.ErrRoundClosed
		}
		r.TotalGuesses++
		g.Seq = r.TotalGuesses
		if g.GuessedAt.IsZero() {
			g.GuessedAt = time.Now().UTC()
		}
		if err := tx.Create(g).Error; err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicateWord
			}
			return err
		}
		return tx.Model(&model.Round{}).Where("id = ?", r.ID).
			Update("total_guesses", r.TotalGuesses).Error
	})
}

func (s *Store) WordGuessed(ctx context.Context, roundID, word string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Guess{}).
		Where("round_id = ? AND word = ?", roundID, word).
		Count(&n).Error
	return n > 0, err
}

func (s *Store) GuessesByRound(ctx context.Context, roundID string) ([]*model.Guess, error) {
	var out []*model.Guess
	err := s.db.WithContext(ctx).
		Where("round_id = ?", roundID).
		Order("seq ASC").
		Find(&out).Error
	return out, err
}

func (s *Store) WithCreditState(ctx context.Context, account int64, day string,
	create func() *model.DailyCreditState, mutate func(st *model.DailyCreditState) error) (*model.DailyCreditState, error) {
	var result *model.DailyCreditState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var st model.DailyCreditState
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account_id = ? AND day = ?", account, day).
			First(&st).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			fresh := create()
			fresh.AccountID = account
			fresh.Day = day
			if err := tx.Create(fresh).Error; err != nil {
				if isUniqueViolation(err) {
					// lost the create race; take the lock on the winner's row
					if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
						Where("account_id = ? AND day = ?", account, day).
						First(&st).Error; err != nil {
						return mapErr(err)
					}
					break
				}
				return err
			}
			st = *fresh
		case err != nil:
			return mapErr(err)
		}
		if mutate != nil {
			if err := mutate(&st); err != nil {
				return err
			}
		}
		if err := tx.Save(&st).Error; err != nil {
			return err
		}
		result = &st
		return nil
	})
	return result, err
}

func (s *Store) GetCreditState(ctx context.Context, account int64, day string) (*model.DailyCreditState, error) {
	var st model.DailyCreditState
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND day = ?", account, day).
		First(&st).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &st, nil
}

func (s *Store) CommitmentsByRound(ctx context.Context, roundID string) ([]*model.Commitment, error) {
	var out []*model.Commitment
	err := s.db.WithContext(ctx).
		Where("round_id = ?", roundID).
		Order("word_index ASC").
		Find(&out).Error
	return out, err
}

func (s *Store) HiddenWordsByRound(ctx context.Context, roundID string, onlyUnclaimed bool) ([]*model.HiddenWord, error) {
	q := s.db.WithContext(ctx).Where("round_id = ?", roundID)
	if onlyUnclaimed {
		q = q.Where("finder_account IS NULL")
	}
	var out []*model.HiddenWord
	err := q.Order("word_index ASC").Find(&out).Error
	return out, err
}

func (s *Store) ClaimHiddenWord(ctx context.Context, roundID string, wordIndex int, account int64, at time.Time) (*model.HiddenWord, error) {
	// Single conditional update: first writer wins, everyone else sees zero
	// rows affected.
	res := s.db.WithContext(ctx).Model(&model.HiddenWord{}).
		Where("round_id = ? AND word_index = ? AND finder_account IS NULL", roundID, wordIndex).
		Updates(map[string]any{
			"finder_account": account,
			"found_at":       at,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := s.db.WithContext(ctx).Model(&model.HiddenWord{}).
			Where("round_id = ? AND word_index = ?", roundID, wordIndex).
			Count(&exists).Error; err != nil {
			return nil, err
		}
		if exists == 0 {
			return nil, store.ErrNotFound
		}
		return nil, store.ErrClaimLost
	}
	var h model.HiddenWord
	if err := s.db.WithContext(ctx).
		Where("round_id = ? AND word_index = ?", roundID, wordIndex).
		First(&h).Error; err != nil {
		return nil, mapErr(err)
	}
	return &h, nil
}

func (s *Store) SetHiddenWordSettlement(ctx context.Context, roundID string, wordIndex int, ref string) error {
	res := s.db.WithContext(ctx).Model(&model.HiddenWord{}).
		Where("round_id = ? AND word_index = ?", roundID, wordIndex).
		Update("settlement_ref", ref)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SavePayouts(ctx context.Context, payouts []*model.Payout) error {
	if len(payouts) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&payouts).Error
}

func (s *Store) PayoutsByRound(ctx context.Context, roundID string) ([]*model.Payout, error) {
	var out []*model.Payout
	err := s.db.WithContext(ctx).
		Where("round_id = ?", roundID).
		Find(&out).Error
	return out, err
}

func (s *Store) AddToReserve(ctx context.Context, amountWei string) error {
	add, err := uint256.FromDecimal(amountWei)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := lockedReserve(tx)
		if err != nil {
			return err
		}
		cur, err := uint256.FromDecimal(acc.AmountWei)
		if err != nil {
			return fmt.Errorf("corrupt reserve amount %q: %w", acc.AmountWei, err)
		}
		acc.AmountWei = new(uint256.Int).Add(cur, add).Dec()
		return tx.Save(acc).Error
	})
}

func (s *Store) DrainReserve(ctx context.Context) (string, error) {
	var drained string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := lockedReserve(tx)
		if err != nil {
			return err
		}
		drained = acc.AmountWei
		acc.AmountWei = "0"
		return tx.Save(acc).Error
	})
	return drained, err
}

func lockedReserve(tx *gorm.DB) (*model.ReserveAccumulator, error) {
	var acc model.ReserveAccumulator
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&acc, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		acc = model.ReserveAccumulator{ID: 1, AmountWei: "0"}
		if err := tx.Create(&acc).Error; err != nil {
			return nil, err
		}
		return &acc, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func mapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
