package loyalty

import (
	"testing"

	"github.com/astrotv/astrotv-server/internal/store"
)

func testLevels() []*store.LoyaltyLevel {
	// Deliberately unordered.
	return []*store.LoyaltyLevel{
		{ID: 3, Name: "Leyenda", PointsRequired: 100},
		{ID: 1, Name: "Novato", PointsRequired: 10},
		{ID: 2, Name: "Fan", PointsRequired: 20},
	}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		points int64
		rank   int
		name   string
		id     int64
	}{
		{0, 0, "Novato", 0},
		{9, 0, "Novato", 0},
		{10, 1, "Novato", 1},
		{19, 1, "Novato", 1},
		{20, 2, "Fan", 2},
		{99, 2, "Fan", 2},
		{100, 3, "Leyenda", 3},
		{5000, 3, "Leyenda", 3},
	}

	for _, tt := range tests {
		got := Compute(tt.points, testLevels())
		if got.Rank != tt.rank || got.Name != tt.name || got.LevelID != tt.id {
			t.Errorf("Compute(%d) = %+v, want rank %d name %s id %d", tt.points, got, tt.rank, tt.name, tt.id)
		}
	}
}

func TestComputeNoLevels(t *testing.T) {
	got := Compute(500, nil)
	if got.Rank != 0 || got.Name != UnrankedName {
		t.Fatalf("unexpected tier: %+v", got)
	}
}

func TestComputeMonotonic(t *testing.T) {
	levels := testLevels()
	prev := Compute(0, levels)
	for p := int64(1); p <= 200; p++ {
		cur := Compute(p, levels)
		if cur.Rank < prev.Rank {
			t.Fatalf("rank regressed at %d: %d -> %d", p, prev.Rank, cur.Rank)
		}
		if again := Compute(p, levels); again != cur {
			t.Fatalf("non-deterministic at %d: %+v vs %+v", p, cur, again)
		}
		prev = cur
	}
}

func TestComputeDoesNotMutateInput(t *testing.T) {
	levels := testLevels()
	Compute(50, levels)
	if levels[0].ID != 3 {
		t.Fatalf("input slice was reordered")
	}
}

func TestGlobalLevel(t *testing.T) {
	tests := map[int64]int{-5: 1, 0: 1, 9: 1, 10: 2, 39: 2, 40: 3, 90: 4, 100: 4, 160: 5}
	for points, want := range tests {
		if got := GlobalLevel(points); got != want {
			t.Errorf("GlobalLevel(%d) = %d, want %d", points, got, want)
		}
	}
}
