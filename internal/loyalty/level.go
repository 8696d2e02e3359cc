// Package loyalty maps accumulated points to broadcaster tiers and global levels.
package loyalty

import (
	"math"
	"sort"

	"github.com/astrotv/astrotv-server/internal/store"
)

// UnrankedName is the tier name used when a broadcaster has no tiers configured.
const UnrankedName = "Unranked"

// Tier is a computed position in a broadcaster's progression.
// Rank is 1-based; 0 means no threshold is met.
type Tier struct {
	Rank    int
	Name    string
	LevelID int64 // 0 when Rank is 0
}

// sortLevels returns levels ordered by points required, ties by id.
func sortLevels(levels []*store.LoyaltyLevel) []*store.LoyaltyLevel {
	sorted := make([]*store.LoyaltyLevel, len(levels))
	copy(sorted, levels)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].PointsRequired != sorted[j].PointsRequired {
			return sorted[i].PointsRequired < sorted[j].PointsRequired
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// baseTier is the rank 0 tier: named after the lowest tier, or UnrankedName.
func baseTier(sorted []*store.LoyaltyLevel) Tier {
	if len(sorted) == 0 {
		return Tier{Name: UnrankedName}
	}
	return Tier{Name: sorted[0].Name}
}

// Compute returns the highest tier whose threshold does not exceed points.
func Compute(points int64, levels []*store.LoyaltyLevel) Tier {
	sorted := sortLevels(levels)
	tier := baseTier(sorted)
	for i, l := range sorted {
		if points < l.PointsRequired {
			break
		}
		tier = Tier{Rank: i + 1, Name: l.Name, LevelID: l.ID}
	}
	return tier
}

// rankOf returns the 1-based position of levelID in levels, 0 if absent.
func rankOf(levelID int64, levels []*store.LoyaltyLevel) (int, string) {
	for i, l := range sortLevels(levels) {
		if l.ID == levelID {
			return i + 1, l.Name
		}
	}
	return 0, ""
}

// GlobalLevel is floor(sqrt(points/10)) + 1.
func GlobalLevel(points int64) int {
	if points < 0 {
		return 1
	}
	return int(math.Floor(math.Sqrt(float64(points)/10))) + 1
}
