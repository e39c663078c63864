package importer_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockleague/ledger-engine/internal/importer"
	"github.com/stockleague/ledger-engine/internal/kv"
	"github.com/stockleague/ledger-engine/internal/ledger"
	"github.com/stockleague/ledger-engine/internal/model"
	"github.com/stockleague/ledger-engine/internal/player"
	"github.com/stockleague/ledger-engine/internal/summary"
	"github.com/stockleague/ledger-engine/internal/symbol"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type env struct {
	players   *player.Registry
	ledger    *ledger.Store
	summaries *summary.Engine
	svc       *importer.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := kv.NewMemory()
	l := ledger.NewStore(st)
	s := summary.NewEngine(st, l)
	p := player.NewRegistry(st)
	return &env{
		players:   p,
		ledger:    l,
		summaries: s,
		svc:       importer.NewService(p, l, s),
	}
}

var day1 = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func TestImportPlayer_CreatesLedgerAndSummaries(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	playerID, err := e.svc.ImportPlayer(ctx, "Alice", d(1000), day1, []importer.Position{
		{Symbol: "AAPL", Quantity: d(5), Price: d(50), Date: day1},
	})
	if err != nil {
		t.Fatalf("importPlayer failed: %v", err)
	}

	entries, err := e.ledger.EntriesForPlayer(ctx, playerID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries (deposit + buy), got %d", len(entries))
	}
	if entries[0].EntryType != model.EntryCashDeposit || !entries[0].CashChange.Equal(d(1000)) {
		t.Errorf("unexpected deposit entry: %+v", entries[0])
	}
	buy := entries[1]
	if buy.EntryType != model.EntryBuy || !buy.CashChange.IsZero() {
		t.Errorf("imported holding should be a zero-cash-change buy: %+v", buy)
	}

	ps, err := e.summaries.Player(ctx, playerID)
	if err != nil {
		t.Fatal(err)
	}
	if !ps.CashBalance.Equal(d(1000)) {
		t.Errorf("expected cash 1000, got %s", ps.CashBalance)
	}
	// Deposit plus the free holding's notional: 1000 + 5×50.
	if !ps.TotalDeposited.Equal(d(1250)) {
		t.Errorf("expected total deposited 1250, got %s", ps.TotalDeposited)
	}

	pos, err := e.summaries.Position(ctx, playerID, "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if pos == nil || !pos.Quantity.Equal(d(5)) || !pos.AverageCostBasis.Equal(d(50)) {
		t.Errorf("unexpected position: %+v", pos)
	}
}

func TestImportPlayer_ReimportReplacesEverything(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.svc.ImportPlayer(ctx, "Alice", d(1000), day1, []importer.Position{
		{Symbol: "AAPL", Quantity: d(5), Price: d(50), Date: day1},
		{Symbol: "MSFT", Quantity: d(2), Price: d(300), Date: day1},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Second import drops MSFT entirely and changes the cash.
	second, err := e.svc.ImportPlayer(ctx, "alice", d(2000), day1, []importer.Position{
		{Symbol: "AAPL", Quantity: d(10), Price: d(60), Date: day1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("re-import should resolve to the same player, got %s vs %s", first, second)
	}

	entries, err := e.ledger.EntriesForPlayer(ctx, second)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected the old ledger fully replaced, got %d entries", len(entries))
	}

	// The stale MSFT summary must not survive.
	positions, err := e.summaries.PositionsForPlayer(ctx, second)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 || positions[0].Symbol != "AAPL" {
		t.Errorf("expected only AAPL after re-import, got %+v", positions)
	}
	if !positions[0].Quantity.Equal(d(10)) {
		t.Errorf("expected quantity 10, got %s", positions[0].Quantity)
	}

	ps, err := e.summaries.Player(ctx, second)
	if err != nil {
		t.Fatal(err)
	}
	if !ps.CashBalance.Equal(d(2000)) {
		t.Errorf("expected cash 2000, got %s", ps.CashBalance)
	}
}

func TestImportPlayer_NoCashNoDeposit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	playerID, err := e.svc.ImportPlayer(ctx, "Bob", decimal.Zero, time.Time{}, []importer.Position{
		{Symbol: "AAPL", Quantity: d(1), Price: d(100), Date: day1},
	})
	if err != nil {
		t.Fatal(err)
	}
	entries, err := e.ledger.EntriesForPlayer(ctx, playerID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].EntryType != model.EntryBuy {
		t.Errorf("expected a single buy and no deposit, got %+v", entries)
	}
}

func TestImportRows_GroupsByPlayer(t *testing.T) {
	e := newEnv(t)

	report := e.svc.ImportRows(context.Background(), []model.ImportRow{
		{PlayerName: "Alice", Symbol: symbol.CashSymbol, Price: d(1000), Date: day1},
		{PlayerName: "Alice", Symbol: "AAPL", Quantity: d(5), Price: d(50), Date: day1},
		{PlayerName: "Bob", Symbol: "MSFT", Quantity: d(2), Price: d(300), Date: day1},
	})

	if report.Imported != 3 {
		t.Errorf("expected 3 imported rows, got %d", report.Imported)
	}
	if len(report.Players) != 2 {
		t.Errorf("expected 2 players, got %v", report.Players)
	}
	if len(report.Skipped) != 0 || len(report.Failed) != 0 {
		t.Errorf("expected clean batch, got skipped=%v failed=%v", report.Skipped, report.Failed)
	}

	aliceID := report.Players["Alice"]
	ps, err := e.summaries.Player(context.Background(), aliceID)
	if err != nil {
		t.Fatal(err)
	}
	if !ps.CashBalance.Equal(d(1000)) {
		t.Errorf("expected Alice's cash 1000, got %s", ps.CashBalance)
	}
}

func TestImportRows_CashAmountRule(t *testing.T) {
	e := newEnv(t)

	// A cash row with a positive quantity means quantity × price; without one
	// the price column alone is the amount.
	report := e.svc.ImportRows(context.Background(), []model.ImportRow{
		{PlayerName: "Alice", Symbol: symbol.CashSymbol, Quantity: d(2), Price: d(500), Date: day1},
		{PlayerName: "Bob", Symbol: symbol.CashSymbol, Price: d(750), Date: day1},
	})
	if report.Imported != 2 {
		t.Fatalf("expected 2 imported rows, got %+v", report)
	}

	ctx := context.Background()
	alice, err := e.summaries.Player(ctx, report.Players["Alice"])
	if err != nil {
		t.Fatal(err)
	}
	if !alice.CashBalance.Equal(d(1000)) {
		t.Errorf("expected Alice's cash 1000, got %s", alice.CashBalance)
	}
	bob, err := e.summaries.Player(ctx, report.Players["Bob"])
	if err != nil {
		t.Fatal(err)
	}
	if !bob.CashBalance.Equal(d(750)) {
		t.Errorf("expected Bob's cash 750, got %s", bob.CashBalance)
	}
}

func TestImportRows_SkipsInvalidRows(t *testing.T) {
	e := newEnv(t)

	report := e.svc.ImportRows(context.Background(), []model.ImportRow{
		{PlayerName: "", Symbol: "AAPL", Quantity: d(1), Price: d(100), Date: day1},
		{PlayerName: "Alice", Symbol: "not a ticker!", Quantity: d(1), Price: d(100), Date: day1},
		{PlayerName: "Alice", Symbol: "AAPL", Quantity: d(1.5), Price: d(100), Date: day1},
		{PlayerName: "Alice", Symbol: "AAPL", Quantity: d(1), Price: d(-5), Date: day1},
		{PlayerName: "Alice", Symbol: symbol.CashSymbol, Price: d(-100), Date: day1},
		{PlayerName: "Alice", Symbol: "AAPL", Quantity: d(2), Price: d(100), Date: day1},
	})

	if len(report.Skipped) != 5 {
		t.Errorf("expected 5 skipped rows, got %d: %+v", len(report.Skipped), report.Skipped)
	}
	if report.Imported != 1 {
		t.Errorf("expected 1 imported row, got %d", report.Imported)
	}
	for _, outcome := range report.Skipped {
		if outcome.Reason == "" {
			t.Errorf("skipped row missing a reason: %+v", outcome)
		}
	}

	// The valid row still landed.
	pos, err := e.summaries.Position(context.Background(), report.Players["Alice"], "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if pos == nil || !pos.Quantity.Equal(d(2)) {
		t.Errorf("expected the valid AAPL row imported, got %+v", pos)
	}
}

func TestImportRows_AllRowsSkippedForPlayer(t *testing.T) {
	e := newEnv(t)

	report := e.svc.ImportRows(context.Background(), []model.ImportRow{
		{PlayerName: "Ghost", Symbol: "bad symbol", Quantity: d(1), Price: d(100), Date: day1},
	})

	if report.Imported != 0 {
		t.Errorf("expected nothing imported, got %d", report.Imported)
	}
	if _, ok := report.Players["Ghost"]; ok {
		t.Error("player with only skipped rows should not be created")
	}
	// No player record either.
	if _, err := e.players.Get(context.Background(), "Ghost"); err == nil {
		t.Error("expected Ghost to not exist")
	}
}
