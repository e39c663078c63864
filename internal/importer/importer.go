// Package importer converts bulk initial-position rows into ledger entries.
// Re-import is whole-player-replace: each player's ledger is fully cleared
// before their rows are written, so re-importing the same data is equivalent
// to a fresh import.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockleague/ledger-engine/internal/ledger"
	"github.com/stockleague/ledger-engine/internal/metrics"
	"github.com/stockleague/ledger-engine/internal/model"
	"github.com/stockleague/ledger-engine/internal/player"
	"github.com/stockleague/ledger-engine/internal/summary"
	"github.com/stockleague/ledger-engine/internal/symbol"
)

const importNote = "Initial import"

// Position is one initial stock holding to import.
type Position struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Date     time.Time       `json:"date"`
}

// Service orchestrates imports over the player registry, ledger, and summary
// engine.
type Service struct {
	players   *player.Registry
	ledger    *ledger.Store
	summaries *summary.Engine
}

// NewService creates an import service.
func NewService(players *player.Registry, l *ledger.Store, s *summary.Engine) *Service {
	return &Service{players: players, ledger: l, summaries: s}
}

// ImportPlayer replaces one player's ledger with a cash deposit plus initial
// holdings and returns the player's id, creating the player (with the default
// credential) if needed.
//
// The initial buys carry CashChange == 0: they are free holdings, not
// purchases from tracked cash, and count toward the deposited baseline.
func (s *Service) ImportPlayer(ctx context.Context, playerName string, cash decimal.Decimal, cashDate time.Time, positions []Position) (string, error) {
	p, created, err := s.players.ResolveOrCreate(ctx, playerName)
	if err != nil {
		return "", err
	}
	if created {
		slog.Info("player created by import", "player", p.DisplayName, "id", p.ID)
	}

	// Full reset: ledger first, then the derived caches.
	if err := s.ledger.ClearPlayer(ctx, p.ID); err != nil {
		return "", err
	}
	if err := s.summaries.ClearPlayer(ctx, p.ID); err != nil {
		return "", err
	}

	if cash.IsPositive() {
		if cashDate.IsZero() {
			cashDate = time.Now().UTC()
		}
		deposit := &model.LedgerEntry{
			ID:         uuid.New().String(),
			PlayerID:   p.ID,
			EntryType:  model.EntryCashDeposit,
			Quantity:   decimal.Zero,
			CashChange: cash,
			Timestamp:  cashDate.UTC(),
			Notes:      importNote,
		}
		if err := s.ledger.Append(ctx, deposit); err != nil {
			return "", err
		}
		metrics.LedgerAppends.WithLabelValues(string(model.EntryCashDeposit)).Inc()
	}

	seen := map[string]bool{}
	for _, pos := range positions {
		sym, err := symbol.Validate(pos.Symbol)
		if err != nil {
			return "", err
		}
		entry := &model.LedgerEntry{
			ID:            uuid.New().String(),
			PlayerID:      p.ID,
			EntryType:     model.EntryBuy,
			Symbol:        sym,
			Quantity:      pos.Quantity,
			PricePerShare: pos.Price,
			CashChange:    decimal.Zero, // free initial holding
			Timestamp:     pos.Date.UTC(),
			Notes:         importNote,
		}
		if err := s.ledger.Append(ctx, entry); err != nil {
			return "", err
		}
		metrics.LedgerAppends.WithLabelValues(string(model.EntryBuy)).Inc()
		seen[sym] = true
	}

	// One recalculation per derived record after all entries are written,
	// not per entry.
	for sym := range seen {
		if _, err := s.summaries.RecalculatePosition(ctx, p.ID, sym); err != nil {
			return "", err
		}
	}
	if _, err := s.summaries.RecalculatePlayer(ctx, p.ID); err != nil {
		return "", err
	}
	return p.ID, nil
}

// ImportRows processes a parsed row batch grouped by player. Invalid rows are
// skipped with a reason and persistence failures are reported per row; the
// batch never aborts as a whole.
func (s *Service) ImportRows(ctx context.Context, rows []model.ImportRow) *model.BatchReport {
	report := &model.BatchReport{Players: map[string]string{}}

	type group struct {
		name      string
		cash      decimal.Decimal
		cashDate  time.Time
		positions []Position
		rows      []model.ImportRow // rows accepted into this group
	}
	var order []string
	groups := map[string]*group{}

	skip := func(row model.ImportRow, reason string) {
		report.Skipped = append(report.Skipped, model.RowOutcome{Row: row, Reason: reason})
		metrics.ImportRows.WithLabelValues("skipped").Inc()
	}

	for _, row := range rows {
		if row.PlayerName == "" {
			skip(row, "missing player name")
			continue
		}

		key := row.PlayerName
		g, ok := groups[key]
		if !ok {
			g = &group{name: row.PlayerName, cash: decimal.Zero}
			groups[key] = g
			order = append(order, key)
		}

		if symbol.IsCash(row.Symbol) {
			amount := row.Price
			if row.Quantity.IsPositive() {
				amount = row.Quantity.Mul(row.Price)
			}
			if !amount.IsPositive() {
				skip(row, "cash amount must be positive")
				continue
			}
			g.cash = g.cash.Add(amount)
			if g.cashDate.IsZero() || row.Date.Before(g.cashDate) {
				g.cashDate = row.Date
			}
			g.rows = append(g.rows, row)
			continue
		}

		sym, err := symbol.Validate(row.Symbol)
		if err != nil {
			skip(row, err.Error())
			continue
		}
		if !row.Quantity.IsPositive() || !row.Quantity.IsInteger() {
			skip(row, "quantity must be a positive whole number")
			continue
		}
		if !row.Price.IsPositive() {
			skip(row, "price must be positive")
			continue
		}
		g.positions = append(g.positions, Position{
			Symbol:   sym,
			Quantity: row.Quantity,
			Price:    row.Price,
			Date:     row.Date,
		})
		g.rows = append(g.rows, row)
	}

	for _, key := range order {
		g := groups[key]
		if len(g.rows) == 0 {
			continue // everything for this player was skipped
		}
		playerID, err := s.ImportPlayer(ctx, g.name, g.cash, g.cashDate, g.positions)
		if err != nil {
			slog.Error("import failed for player", "player", g.name, "err", err)
			for _, row := range g.rows {
				report.Failed = append(report.Failed, model.RowOutcome{
					Row: row, Reason: fmt.Sprintf("import failed: %v", err),
				})
				metrics.ImportRows.WithLabelValues("failed").Inc()
			}
			continue
		}
		report.Players[g.name] = playerID
		report.Imported += len(g.rows)
		for range g.rows {
			metrics.ImportRows.WithLabelValues("imported").Inc()
		}
	}

	slog.Info("import batch processed",
		"players", len(report.Players),
		"imported", report.Imported,
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
	)
	return report
}
