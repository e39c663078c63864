package summary_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockleague/ledger-engine/internal/kv"
	"github.com/stockleague/ledger-engine/internal/ledger"
	"github.com/stockleague/ledger-engine/internal/model"
	"github.com/stockleague/ledger-engine/internal/summary"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type env struct {
	kv     kv.Store
	ledger *ledger.Store
	engine *summary.Engine
	clock  time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := kv.NewMemory()
	l := ledger.NewStore(st)
	return &env{
		kv:     st,
		ledger: l,
		engine: summary.NewEngine(st, l),
		clock:  time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing timestamp per call.
func (e *env) tick() time.Time {
	e.clock = e.clock.Add(time.Minute)
	return e.clock
}

func (e *env) append(t *testing.T, entry *model.LedgerEntry) {
	t.Helper()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = e.tick()
	}
	if err := e.ledger.Append(context.Background(), entry); err != nil {
		t.Fatalf("append failed: %v", err)
	}
}

func (e *env) buy(t *testing.T, playerID, symbol string, qty, price float64) {
	t.Helper()
	e.append(t, &model.LedgerEntry{
		ID: symbol + "-" + e.clock.String(), PlayerID: playerID,
		EntryType: model.EntryBuy, Symbol: symbol,
		Quantity: d(qty), PricePerShare: d(price), CashChange: d(-qty * price),
	})
}

func (e *env) freeBuy(t *testing.T, playerID, symbol string, qty, price float64) {
	t.Helper()
	e.append(t, &model.LedgerEntry{
		ID: symbol + "-free-" + e.clock.String(), PlayerID: playerID,
		EntryType: model.EntryBuy, Symbol: symbol,
		Quantity: d(qty), PricePerShare: d(price), CashChange: decimal.Zero,
	})
}

func (e *env) sell(t *testing.T, playerID, symbol string, qty, price, costBasis float64) {
	t.Helper()
	cb := d(costBasis)
	pnl := d(price).Sub(cb).Mul(d(qty))
	e.append(t, &model.LedgerEntry{
		ID: symbol + "-sell-" + e.clock.String(), PlayerID: playerID,
		EntryType: model.EntrySell, Symbol: symbol,
		Quantity: d(-qty), PricePerShare: d(price), CashChange: d(qty * price),
		CostBasisPerShare: &cb, RealizedPnL: &pnl,
	})
}

func (e *env) deposit(t *testing.T, playerID string, amount float64) {
	t.Helper()
	e.append(t, &model.LedgerEntry{
		ID: "dep-" + e.clock.String(), PlayerID: playerID,
		EntryType: model.EntryCashDeposit, CashChange: d(amount),
	})
}

// --- Position replay ---

func TestRecalculatePosition_BlendedCostBasis(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// 10 @ $100 then 10 @ $140: total cost 2400, blended average 120.
	e.buy(t, "p1", "AAPL", 10, 100)
	e.buy(t, "p1", "AAPL", 10, 140)

	pos, err := e.engine.RecalculatePosition(ctx, "p1", "AAPL")
	if err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}
	if pos == nil {
		t.Fatal("expected a position")
	}
	if !pos.Quantity.Equal(d(20)) {
		t.Errorf("expected quantity 20, got %s", pos.Quantity)
	}
	if !pos.AverageCostBasis.Equal(d(120)) {
		t.Errorf("expected average cost 120, got %s", pos.AverageCostBasis)
	}
	if !pos.TotalCostBasis.Equal(d(2400)) {
		t.Errorf("expected total cost 2400, got %s", pos.TotalCostBasis)
	}
}

func TestRecalculatePosition_SellKeepsAverageCost(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.buy(t, "p1", "AAPL", 10, 100)
	e.buy(t, "p1", "AAPL", 10, 140)
	// Selling at the blended average of 120 removes cost proportionally.
	e.sell(t, "p1", "AAPL", 5, 150, 120)

	pos, err := e.engine.RecalculatePosition(ctx, "p1", "AAPL")
	if err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}
	if pos == nil {
		t.Fatal("expected a position")
	}
	if !pos.Quantity.Equal(d(15)) {
		t.Errorf("expected quantity 15, got %s", pos.Quantity)
	}
	if !pos.AverageCostBasis.Equal(d(120)) {
		t.Errorf("average cost should be unchanged at 120, got %s", pos.AverageCostBasis)
	}
	if !pos.TotalCostBasis.Equal(d(1800)) {
		t.Errorf("expected total cost 1800, got %s", pos.TotalCostBasis)
	}
}

func TestRecalculatePosition_ZeroSharesDeletesSummary(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.buy(t, "p1", "AAPL", 10, 100)
	if _, err := e.engine.RecalculatePosition(ctx, "p1", "AAPL"); err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}
	e.sell(t, "p1", "AAPL", 10, 110, 100)

	pos, err := e.engine.RecalculatePosition(ctx, "p1", "AAPL")
	if err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}
	if pos != nil {
		t.Errorf("expected position deleted at zero shares, got %+v", pos)
	}

	// The cached record is gone, not stored as zero.
	pos, err = e.engine.Position(ctx, "p1", "AAPL")
	if err != nil {
		t.Fatalf("position read failed: %v", err)
	}
	if pos != nil {
		t.Errorf("expected no cached position, got %+v", pos)
	}
}

func TestRecalculatePosition_NoEntries(t *testing.T) {
	e := newEnv(t)
	pos, err := e.engine.RecalculatePosition(context.Background(), "p1", "AAPL")
	if err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}
	if pos != nil {
		t.Errorf("expected nil position for empty ledger, got %+v", pos)
	}
}

func TestRecalculatePosition_Deterministic(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.buy(t, "p1", "AAPL", 10, 100)
	e.buy(t, "p1", "AAPL", 3, 95)
	e.sell(t, "p1", "AAPL", 4, 120, 98.846)

	first, err := e.engine.RecalculatePosition(ctx, "p1", "AAPL")
	if err != nil {
		t.Fatalf("first recalculate failed: %v", err)
	}
	second, err := e.engine.RecalculatePosition(ctx, "p1", "AAPL")
	if err != nil {
		t.Fatalf("second recalculate failed: %v", err)
	}

	if !first.Quantity.Equal(second.Quantity) ||
		!first.AverageCostBasis.Equal(second.AverageCostBasis) ||
		!first.TotalCostBasis.Equal(second.TotalCostBasis) ||
		!first.FirstPurchaseDate.Equal(second.FirstPurchaseDate) ||
		!first.LastActivityDate.Equal(second.LastActivityDate) {
		t.Errorf("replays differ: %+v vs %+v", first, second)
	}
}

func TestRecalculatePosition_TracksActivityDates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.buy(t, "p1", "AAPL", 10, 100)
	firstBuy := e.clock
	e.buy(t, "p1", "AAPL", 5, 110)
	e.sell(t, "p1", "AAPL", 3, 120, 103.333)
	lastSell := e.clock

	pos, err := e.engine.RecalculatePosition(ctx, "p1", "AAPL")
	if err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}
	if !pos.FirstPurchaseDate.Equal(firstBuy) {
		t.Errorf("expected first purchase %s, got %s", firstBuy, pos.FirstPurchaseDate)
	}
	if !pos.LastActivityDate.Equal(lastSell) {
		t.Errorf("expected last activity %s, got %s", lastSell, pos.LastActivityDate)
	}
}

// --- Player replay ---

func TestRecalculatePlayer_Conservation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.deposit(t, "p1", 10000)
	e.buy(t, "p1", "AAPL", 10, 100)
	e.buy(t, "p1", "MSFT", 5, 300)
	e.sell(t, "p1", "AAPL", 4, 120, 100)

	entries, err := e.ledger.EntriesForPlayer(ctx, "p1")
	if err != nil {
		t.Fatalf("entriesForPlayer failed: %v", err)
	}
	want := decimal.Zero
	for _, entry := range entries {
		want = want.Add(entry.CashChange)
	}

	ps, err := e.engine.RecalculatePlayer(ctx, "p1")
	if err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}
	if !ps.CashBalance.Equal(want) {
		t.Errorf("cash balance %s does not equal sum of cash changes %s", ps.CashBalance, want)
	}
	// 10000 − 1000 − 1500 + 480 = 7980
	if !ps.CashBalance.Equal(d(7980)) {
		t.Errorf("expected cash balance 7980, got %s", ps.CashBalance)
	}
}

func TestRecalculatePlayer_TotalDeposited(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// One $1000 deposit plus a zero-cash-change buy of 5 @ $50: the free
	// holding's notional counts toward the deposited baseline.
	e.deposit(t, "p1", 1000)
	e.freeBuy(t, "p1", "AAPL", 5, 50)

	ps, err := e.engine.RecalculatePlayer(ctx, "p1")
	if err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}
	if !ps.TotalDeposited.Equal(d(1250)) {
		t.Errorf("expected total deposited 1250, got %s", ps.TotalDeposited)
	}
	if !ps.CashBalance.Equal(d(1000)) {
		t.Errorf("expected cash balance 1000, got %s", ps.CashBalance)
	}
}

func TestRecalculatePlayer_RealizedPnL(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.deposit(t, "p1", 5000)
	e.buy(t, "p1", "AAPL", 10, 100)
	e.sell(t, "p1", "AAPL", 5, 150, 100) // +250
	e.sell(t, "p1", "AAPL", 5, 90, 100)  // −50

	ps, err := e.engine.RecalculatePlayer(ctx, "p1")
	if err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}
	if !ps.TotalRealizedPnL.Equal(d(200)) {
		t.Errorf("expected realized PnL 200, got %s", ps.TotalRealizedPnL)
	}
}

func TestPlayer_AbsentMeansZero(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	ps, err := e.engine.Player(ctx, "nobody")
	if err != nil {
		t.Fatalf("player read failed: %v", err)
	}
	if !ps.CashBalance.IsZero() || !ps.TotalDeposited.IsZero() || !ps.TotalRealizedPnL.IsZero() {
		t.Errorf("expected all-zero summary for unknown player, got %+v", ps)
	}

	// Reading an unknown id must not leave a summary record behind.
	if _, err := e.kv.Get(ctx, kv.PartitionPlayerSummary, "nobody"); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("expected no persisted summary for unknown player, got %v", err)
	}
}

func TestRecalculatePlayer_EmptyLedgerRemovesStaleSummary(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.deposit(t, "p1", 1000)
	if _, err := e.engine.RecalculatePlayer(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	if err := e.ledger.ClearPlayer(ctx, "p1"); err != nil {
		t.Fatal(err)
	}

	ps, err := e.engine.RecalculatePlayer(ctx, "p1")
	if err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}
	if !ps.CashBalance.IsZero() {
		t.Errorf("expected zero balance after clear, got %s", ps.CashBalance)
	}
	if _, err := e.kv.Get(ctx, kv.PartitionPlayerSummary, "p1"); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("expected stale summary removed, got %v", err)
	}
}

func TestPosition_LazyRecomputeOnCacheMiss(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Entries appended without any recalculation: the read self-heals.
	e.buy(t, "p1", "AAPL", 10, 100)

	pos, err := e.engine.Position(ctx, "p1", "AAPL")
	if err != nil {
		t.Fatalf("position read failed: %v", err)
	}
	if pos == nil {
		t.Fatal("expected lazy recompute to produce a position")
	}
	if !pos.Quantity.Equal(d(10)) {
		t.Errorf("expected quantity 10, got %s", pos.Quantity)
	}
}

func TestClearPlayer_RemovesSummaries(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.deposit(t, "p1", 1000)
	e.buy(t, "p1", "AAPL", 2, 100)
	if _, err := e.engine.RecalculatePosition(ctx, "p1", "AAPL"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.engine.RecalculatePlayer(ctx, "p1"); err != nil {
		t.Fatal(err)
	}

	if err := e.engine.ClearPlayer(ctx, "p1"); err != nil {
		t.Fatalf("clearPlayer failed: %v", err)
	}

	positions, err := e.engine.PositionsForPlayer(ctx, "p1")
	if err != nil {
		t.Fatalf("positionsForPlayer failed: %v", err)
	}
	if len(positions) != 0 {
		t.Errorf("expected no cached positions after clear, got %d", len(positions))
	}
}
