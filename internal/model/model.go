// Package model defines the core domain types shared across the ledger engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType classifies a ledger entry.
type EntryType string

const (
	EntryCashDeposit EntryType = "CASH_DEPOSIT"
	EntryBuy         EntryType = "BUY"
	EntrySell        EntryType = "SELL"
)

// LedgerEntry is an immutable record of one financial event. Once appended,
// entries are never modified; the only deletion path is a whole-player clear
// before a re-import.
//
// Sign conventions: Quantity is positive for BUY, negative for SELL, zero for
// CASH_DEPOSIT. CashChange is negative for BUY, positive for SELL and
// CASH_DEPOSIT. A BUY created by the bulk importer carries CashChange == 0:
// it represents value injected without a matching cash movement and counts
// toward the deposited baseline (see PlayerSummary.TotalDeposited).
type LedgerEntry struct {
	ID                string           `json:"id"`
	PlayerID          string           `json:"player_id"`
	EntryType         EntryType        `json:"entry_type"`
	Symbol            string           `json:"symbol,omitempty"` // empty for cash-only entries
	Quantity          decimal.Decimal  `json:"quantity"`
	PricePerShare     decimal.Decimal  `json:"price_per_share"`
	CashChange        decimal.Decimal  `json:"cash_change"`
	CostBasisPerShare *decimal.Decimal `json:"cost_basis_per_share,omitempty"` // SELL only
	RealizedPnL       *decimal.Decimal `json:"realized_pnl,omitempty"`         // SELL only
	Timestamp         time.Time        `json:"timestamp"`
	Notes             string           `json:"notes,omitempty"`
}

// PositionSummary is the derived holding state for one player+symbol. It is a
// cache owned exclusively by the summary engine: always reproducible by
// replaying that player+symbol's entries in timestamp order, and deleted when
// the held quantity reaches zero.
type PositionSummary struct {
	PlayerID          string          `json:"player_id"`
	Symbol            string          `json:"symbol"`
	Quantity          decimal.Decimal `json:"quantity"`
	AverageCostBasis  decimal.Decimal `json:"average_cost_basis"`
	TotalCostBasis    decimal.Decimal `json:"total_cost_basis"`
	FirstPurchaseDate time.Time       `json:"first_purchase_date"`
	LastActivityDate  time.Time       `json:"last_activity_date"`
}

// PlayerSummary is the derived aggregate financial state for one player,
// reproducible by replaying the full per-player entry set.
type PlayerSummary struct {
	PlayerID         string          `json:"player_id"`
	CashBalance      decimal.Decimal `json:"cash_balance"`
	TotalDeposited   decimal.Decimal `json:"total_deposited"`
	TotalRealizedPnL decimal.Decimal `json:"total_realized_pnl"`
	LastUpdated      time.Time       `json:"last_updated"`
}

// Player is a competition participant. DisplayName is unique
// (case-insensitive); PasswordHash is a bcrypt hash.
type Player struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// ImportRow is one parsed row of an initial-positions import. A row whose
// Symbol equals the reserved cash marker is a cash contribution rather than a
// stock position.
type ImportRow struct {
	PlayerName string          `json:"player_name"`
	Symbol     string          `json:"symbol"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Date       time.Time       `json:"date"`
}

// RowOutcome records the fate of one import row.
type RowOutcome struct {
	Row    ImportRow `json:"row"`
	Reason string    `json:"reason,omitempty"`
}

// BatchReport enumerates per-row outcomes of a bulk import. Errors on
// individual rows never abort the batch.
type BatchReport struct {
	Players  map[string]string `json:"players"` // playerName → playerID
	Imported int               `json:"imported"`
	Skipped  []RowOutcome      `json:"skipped"`
	Failed   []RowOutcome      `json:"failed"`
}
