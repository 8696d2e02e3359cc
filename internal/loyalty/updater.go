package loyalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/astrotv/astrotv-server/internal/store"
)

// Result describes the outcome of an assignment update.
type Result struct {
	Changed   bool
	LeveledUp bool
	NewTier   Tier
	OldTier   Tier
}

// Updater persists tier transitions.
type Updater struct {
	store store.LoyaltyStore
}

// NewUpdater creates an updater backed by s.
func NewUpdater(s store.LoyaltyStore) *Updater {
	return &Updater{store: s}
}

// Update recomputes the tier for points against levels and stores it when a
// qualifying tier exists. An assignment pointing at a tier that no longer
// qualifies is cleared so the stored tier always matches a recomputation.
func (u *Updater) Update(ctx context.Context, userID, streamerID, points int64, levels []*store.LoyaltyLevel) (Result, error) {
	newTier := Compute(points, levels)

	var res Result
	current, err := u.store.GetTierAssignment(ctx, userID, streamerID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		current = nil
		res.OldTier = baseTier(sortLevels(levels))
	case err != nil:
		return Result{}, fmt.Errorf("get tier assignment: %w", err)
	default:
		res.OldTier = tierFor(current, levels)
	}
	res.NewTier = newTier

	switch {
	case newTier.Rank > 0 && (current == nil || current.LoyaltyLevelID != newTier.LevelID):
		if err := u.store.SetTierAssignment(ctx, userID, streamerID, newTier.LevelID); err != nil {
			return Result{}, fmt.Errorf("set tier assignment: %w", err)
		}
	case newTier.Rank == 0 && current != nil:
		if err := u.store.ClearTierAssignment(ctx, userID, streamerID); err != nil {
			return Result{}, fmt.Errorf("clear tier assignment: %w", err)
		}
	}

	res.Changed = res.OldTier.Rank != newTier.Rank
	res.LeveledUp = newTier.Rank > res.OldTier.Rank
	return res, nil
}
