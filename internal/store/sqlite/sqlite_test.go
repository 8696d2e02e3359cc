package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/astrotv/astrotv-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustUser(t *testing.T, s *SQLiteStore, name string) *store.User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), name, name+"@example.com")
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func TestGetStreamByStreamerNamePrefersLive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	streamer := mustUser(t, s, "luna")
	if _, err := s.CreateStream(ctx, streamer.ID, "first"); err != nil {
		t.Fatalf("create stream: %v", err)
	}
	second, err := s.CreateStream(ctx, streamer.ID, "second")
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}

	got, err := s.GetStreamByStreamerName(ctx, "luna")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != second.ID || got.Streamer != "luna" || !got.IsLive {
		t.Fatalf("unexpected stream: %+v", got)
	}

	if _, err := s.GetStreamByStreamerName(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAtomicallyRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	viewer := mustUser(t, s, "viewer")
	streamer := mustUser(t, s, "streamer")

	boom := errors.New("boom")
	err := s.Atomically(ctx, func(l store.Ledger) error {
		if _, _, err := l.IncrementGlobalPoints(ctx, viewer.ID, 5); err != nil {
			return err
		}
		if _, err := l.IncrementPoints(ctx, viewer.ID, streamer.ID, 5); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	points, err := s.GetPoints(ctx, viewer.ID, streamer.ID)
	if err != nil {
		t.Fatalf("get points: %v", err)
	}
	if points != 0 {
		t.Fatalf("expected points rolled back, got %d", points)
	}
	u, err := s.GetUserByID(ctx, viewer.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Points != 0 {
		t.Fatalf("expected global points rolled back, got %d", u.Points)
	}
}

func TestIncrementPointsUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	viewer := mustUser(t, s, "viewer")
	streamer := mustUser(t, s, "streamer")

	var totals []int64
	for _, delta := range []int64{3, 4} {
		err := s.Atomically(ctx, func(l store.Ledger) error {
			total, err := l.IncrementPoints(ctx, viewer.ID, streamer.ID, delta)
			totals = append(totals, total)
			return err
		})
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	if totals[0] != 3 || totals[1] != 7 {
		t.Fatalf("unexpected totals: %v", totals)
	}
}

func TestDebitCoinsRejectsOverdraft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := mustUser(t, s, "spender")
	if _, err := s.AddCoins(ctx, u.ID, 30); err != nil {
		t.Fatalf("add coins: %v", err)
	}

	err := s.Atomically(ctx, func(l store.Ledger) error {
		_, err := l.DebitCoins(ctx, u.ID, 50)
		return err
	})

	var funds *store.InsufficientFundsError
	if !errors.As(err, &funds) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if funds.Balance != 30 || funds.Required != 50 {
		t.Fatalf("unexpected error fields: %+v", funds)
	}
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected errors.Is match")
	}

	got, _ := s.GetUserByID(ctx, u.ID)
	if got.Coins != 30 {
		t.Fatalf("balance changed: %d", got.Coins)
	}
}

func TestListRecentMessagesChronological(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	streamer := mustUser(t, s, "streamer")
	author := mustUser(t, s, "author")
	stream, err := s.CreateStream(ctx, streamer.ID, "live")
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}

	for _, text := range []string{"one", "two", "three"} {
		err := s.Atomically(ctx, func(l store.Ledger) error {
			return l.CreateMessage(ctx, &store.Message{
				StreamID: stream.ID, AuthorID: author.ID, StreamOwnerID: streamer.ID, Text: text,
			})
		})
		if err != nil {
			t.Fatalf("create message: %v", err)
		}
	}

	msgs, err := s.ListRecentMessages(ctx, stream.ID, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Text != "two" || msgs[1].Text != "three" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if msgs[0].AuthorName != "author" {
		t.Fatalf("expected author name, got %q", msgs[0].AuthorName)
	}
}

func TestTierAssignmentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	viewer := mustUser(t, s, "viewer")
	streamer := mustUser(t, s, "streamer")

	fan := &store.LoyaltyLevel{StreamerID: streamer.ID, Name: "Fan", PointsRequired: 20}
	novato := &store.LoyaltyLevel{StreamerID: streamer.ID, Name: "Novato", PointsRequired: 10}
	for _, l := range []*store.LoyaltyLevel{fan, novato} {
		if err := s.CreateLoyaltyLevel(ctx, l); err != nil {
			t.Fatalf("create level: %v", err)
		}
	}

	levels, err := s.ListLoyaltyLevels(ctx, streamer.ID)
	if err != nil {
		t.Fatalf("list levels: %v", err)
	}
	if len(levels) != 2 || levels[0].Name != "Novato" || levels[1].Name != "Fan" {
		t.Fatalf("levels not ordered: %+v", levels)
	}

	if _, err := s.GetTierAssignment(ctx, viewer.ID, streamer.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.SetTierAssignment(ctx, viewer.ID, streamer.ID, novato.ID); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetTierAssignment(ctx, viewer.ID, streamer.ID, fan.ID); err != nil {
		t.Fatalf("set again: %v", err)
	}
	a, err := s.GetTierAssignment(ctx, viewer.ID, streamer.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.LoyaltyLevelID != fan.ID {
		t.Fatalf("expected fan assignment, got %d", a.LoyaltyLevelID)
	}

	list, err := s.ListTierAssignments(ctx, streamer.ID, []int64{viewer.ID, streamer.ID})
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one assignment, got %d", len(list))
	}

	if err := s.ClearTierAssignment(ctx, viewer.ID, streamer.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := s.GetTierAssignment(ctx, viewer.ID, streamer.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected cleared assignment, got %v", err)
	}
}

func TestSettleTransactionOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	buyer := mustUser(t, s, "buyer")
	pack := &store.CoinPack{Name: "small", Coins: 100, Price: 4.5}
	if err := s.CreateCoinPack(ctx, pack); err != nil {
		t.Fatalf("create pack: %v", err)
	}
	if err := s.CreatePendingTransaction(ctx, &store.Transaction{
		UserID: buyer.ID, CoinPackID: pack.ID, Coins: pack.Coins, ExternalSessionID: "cs_1",
	}); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	tx, balance, credited, err := s.SettleTransaction(ctx, "cs_1")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !credited || balance != 100 || tx.Status != store.TransactionCompleted || tx.CompletedAt == nil {
		t.Fatalf("unexpected first settle: credited=%v balance=%d tx=%+v", credited, balance, tx)
	}

	_, balance, credited, err = s.SettleTransaction(ctx, "cs_1")
	if err != nil {
		t.Fatalf("settle again: %v", err)
	}
	if credited || balance != 100 {
		t.Fatalf("second settle must not credit: credited=%v balance=%d", credited, balance)
	}

	if _, _, _, err := s.SettleTransaction(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
