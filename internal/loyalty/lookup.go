package loyalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/astrotv/astrotv-server/internal/store"
)

// PersistedTier returns the tier stored for (user, streamer) without recomputing it.
func PersistedTier(ctx context.Context, s store.LoyaltyStore, userID, streamerID int64) (Tier, error) {
	levels, err := s.ListLoyaltyLevels(ctx, streamerID)
	if err != nil {
		return Tier{}, fmt.Errorf("list loyalty levels: %w", err)
	}

	a, err := s.GetTierAssignment(ctx, userID, streamerID)
	if errors.Is(err, store.ErrNotFound) {
		return baseTier(sortLevels(levels)), nil
	}
	if err != nil {
		return Tier{}, fmt.Errorf("get tier assignment: %w", err)
	}
	return tierFor(a, levels), nil
}

// PersistedTiers resolves stored tiers for many users of one streamer.
// Users without an assignment get the base tier.
func PersistedTiers(ctx context.Context, s store.LoyaltyStore, streamerID int64, userIDs []int64) (map[int64]Tier, error) {
	levels, err := s.ListLoyaltyLevels(ctx, streamerID)
	if err != nil {
		return nil, fmt.Errorf("list loyalty levels: %w", err)
	}
	assignments, err := s.ListTierAssignments(ctx, streamerID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list tier assignments: %w", err)
	}

	base := baseTier(sortLevels(levels))
	tiers := make(map[int64]Tier, len(userIDs))
	for _, id := range userIDs {
		tiers[id] = base
	}
	for _, a := range assignments {
		tiers[a.UserID] = tierFor(a, levels)
	}
	return tiers, nil
}

func tierFor(a *store.TierAssignment, levels []*store.LoyaltyLevel) Tier {
	rank, name := rankOf(a.LoyaltyLevelID, levels)
	if rank == 0 {
		return baseTier(sortLevels(levels))
	}
	return Tier{Rank: rank, Name: name, LevelID: a.LoyaltyLevelID}
}
