// Package summary derives per-position and per-player aggregate state by
// replaying ledger entries. Summaries are caches: every recalculation is a
// full replay from scratch, so they can never drift from the ledger and a
// recalculation is always safe to re-run (the self-heal path after a partial
// failure between entry append and summary write).
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockleague/ledger-engine/internal/kv"
	"github.com/stockleague/ledger-engine/internal/ledger"
	"github.com/stockleague/ledger-engine/internal/metrics"
	"github.com/stockleague/ledger-engine/internal/model"
	"github.com/stockleague/ledger-engine/internal/symbol"
)

// Engine owns the POSITION_SUMMARY and PLAYER_SUMMARY partitions. No other
// component writes them.
type Engine struct {
	kv     kv.Store
	ledger *ledger.Store
}

// NewEngine creates a summary engine over the given backend and ledger.
func NewEngine(store kv.Store, l *ledger.Store) *Engine {
	return &Engine{kv: store, ledger: l}
}

func positionKey(playerID, sym string) string {
	return playerID + "#" + symbol.Normalize(sym)
}

// RecalculatePosition replays a player+symbol's entries and persists the
// derived position. Returns (nil, nil) — and deletes any cached summary —
// when the player holds no shares of the symbol.
//
// Sells remove cost at the average cost basis in effect at that point in the
// replay, not FIFO/LIFO lots. The blended average is the product's accounting
// model, preserved deliberately.
func (e *Engine) RecalculatePosition(ctx context.Context, playerID, sym string) (*model.PositionSummary, error) {
	defer metrics.ObserveRecalc("position", time.Now())

	sym = symbol.Normalize(sym)
	entries, err := e.ledger.EntriesForSymbol(ctx, playerID, sym)
	if err != nil {
		return nil, err
	}

	totalShares := decimal.Zero
	totalCost := decimal.Zero
	var firstPurchase, lastActivity time.Time

	for _, entry := range entries {
		lastActivity = entry.Timestamp
		switch entry.EntryType {
		case model.EntryBuy:
			if firstPurchase.IsZero() {
				firstPurchase = entry.Timestamp
			}
			totalCost = totalCost.Add(entry.Quantity.Mul(entry.PricePerShare))
			totalShares = totalShares.Add(entry.Quantity)
		case model.EntrySell:
			sold := entry.Quantity.Neg() // stored negative
			avgCost := decimal.Zero
			if totalShares.IsPositive() {
				avgCost = totalCost.Div(totalShares)
			}
			totalCost = totalCost.Sub(avgCost.Mul(sold))
			totalShares = totalShares.Sub(sold)
		}
	}

	if len(entries) == 0 || !totalShares.IsPositive() {
		if err := e.kv.Delete(ctx, kv.PartitionPositionSummary, positionKey(playerID, sym)); err != nil {
			return nil, fmt.Errorf("summary: delete position %s/%s: %w", playerID, sym, err)
		}
		return nil, nil
	}

	ps := &model.PositionSummary{
		PlayerID:          playerID,
		Symbol:            sym,
		Quantity:          totalShares,
		AverageCostBasis:  totalCost.Div(totalShares),
		TotalCostBasis:    totalCost,
		FirstPurchaseDate: firstPurchase,
		LastActivityDate:  lastActivity,
	}
	if err := e.putPosition(ctx, ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// RecalculatePlayer replays the full per-player entry set and persists the
// aggregate summary.
func (e *Engine) RecalculatePlayer(ctx context.Context, playerID string) (*model.PlayerSummary, error) {
	defer metrics.ObserveRecalc("player", time.Now())

	entries, err := e.ledger.EntriesForPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		// Nothing to replay: report zeros without persisting, so probing an
		// arbitrary id never writes a record. A stale summary left by a
		// cleared ledger is removed.
		if err := e.kv.Delete(ctx, kv.PartitionPlayerSummary, playerID); err != nil {
			return nil, fmt.Errorf("summary: delete player %s: %w", playerID, err)
		}
		return &model.PlayerSummary{
			PlayerID:         playerID,
			CashBalance:      decimal.Zero,
			TotalDeposited:   decimal.Zero,
			TotalRealizedPnL: decimal.Zero,
			LastUpdated:      time.Now().UTC(),
		}, nil
	}

	cash := decimal.Zero
	deposited := decimal.Zero
	realized := decimal.Zero

	for _, entry := range entries {
		cash = cash.Add(entry.CashChange)
		switch entry.EntryType {
		case model.EntryCashDeposit:
			deposited = deposited.Add(entry.CashChange)
		case model.EntryBuy:
			// Zero-cash buys are imported initial holdings: their notional
			// value counts toward the deposited baseline.
			if entry.CashChange.IsZero() {
				deposited = deposited.Add(entry.Quantity.Mul(entry.PricePerShare))
			}
		}
		if entry.RealizedPnL != nil {
			realized = realized.Add(*entry.RealizedPnL)
		}
	}

	ps := &model.PlayerSummary{
		PlayerID:         playerID,
		CashBalance:      cash,
		TotalDeposited:   deposited,
		TotalRealizedPnL: realized,
		LastUpdated:      time.Now().UTC(),
	}
	if err := e.putPlayer(ctx, ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// Position returns the cached position summary, lazily recomputing on a cache
// miss. Returns (nil, nil) when the player holds no shares of the symbol.
func (e *Engine) Position(ctx context.Context, playerID, sym string) (*model.PositionSummary, error) {
	data, err := e.kv.Get(ctx, kv.PartitionPositionSummary, positionKey(playerID, sym))
	if errors.Is(err, kv.ErrNotFound) {
		return e.RecalculatePosition(ctx, playerID, sym)
	}
	if err != nil {
		return nil, fmt.Errorf("summary: get position %s/%s: %w", playerID, sym, err)
	}
	var ps model.PositionSummary
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("summary: decode position %s/%s: %w", playerID, sym, err)
	}
	return &ps, nil
}

// Player returns the cached player summary, lazily recomputing on a cache
// miss. A player with no entries gets an all-zero summary, never an error.
func (e *Engine) Player(ctx context.Context, playerID string) (*model.PlayerSummary, error) {
	data, err := e.kv.Get(ctx, kv.PartitionPlayerSummary, playerID)
	if errors.Is(err, kv.ErrNotFound) {
		return e.RecalculatePlayer(ctx, playerID)
	}
	if err != nil {
		return nil, fmt.Errorf("summary: get player %s: %w", playerID, err)
	}
	var ps model.PlayerSummary
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("summary: decode player %s: %w", playerID, err)
	}
	return &ps, nil
}

// PositionsForPlayer lists all cached positions for a player.
func (e *Engine) PositionsForPlayer(ctx context.Context, playerID string) ([]model.PositionSummary, error) {
	records, err := e.kv.QueryByPrefix(ctx, kv.PartitionPositionSummary, playerID+"#")
	if err != nil {
		return nil, fmt.Errorf("summary: positions for player %s: %w", playerID, err)
	}
	positions := make([]model.PositionSummary, 0, len(records))
	for _, r := range records {
		var ps model.PositionSummary
		if err := json.Unmarshal(r.Value, &ps); err != nil {
			return nil, fmt.Errorf("summary: decode position %s: %w", r.Key, err)
		}
		positions = append(positions, ps)
	}
	return positions, nil
}

// ClearPlayer deletes all cached summaries for a player. Used by the import
// pipeline after a whole-player ledger reset so stale positions cannot
// survive a re-import.
func (e *Engine) ClearPlayer(ctx context.Context, playerID string) error {
	records, err := e.kv.QueryByPrefix(ctx, kv.PartitionPositionSummary, playerID+"#")
	if err != nil {
		return fmt.Errorf("summary: clear player %s: %w", playerID, err)
	}
	for _, r := range records {
		if err := e.kv.Delete(ctx, kv.PartitionPositionSummary, r.Key); err != nil {
			return fmt.Errorf("summary: clear player %s: delete %s: %w", playerID, r.Key, err)
		}
	}
	if err := e.kv.Delete(ctx, kv.PartitionPlayerSummary, playerID); err != nil {
		return fmt.Errorf("summary: clear player %s: %w", playerID, err)
	}
	return nil
}

func (e *Engine) putPosition(ctx context.Context, ps *model.PositionSummary) error {
	data, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("summary: encode position %s/%s: %w", ps.PlayerID, ps.Symbol, err)
	}
	if err := e.kv.Put(ctx, kv.PartitionPositionSummary, positionKey(ps.PlayerID, ps.Symbol), data); err != nil {
		return fmt.Errorf("summary: put position %s/%s: %w", ps.PlayerID, ps.Symbol, err)
	}
	return nil
}

func (e *Engine) putPlayer(ctx context.Context, ps *model.PlayerSummary) error {
	data, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("summary: encode player %s: %w", ps.PlayerID, err)
	}
	if err := e.kv.Put(ctx, kv.PartitionPlayerSummary, ps.PlayerID, data); err != nil {
		return fmt.Errorf("summary: put player %s: %w", ps.PlayerID, err)
	}
	return nil
}
