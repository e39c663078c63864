// Package trade provides the HTTP handlers and business logic for validating
// and executing trades against ledger-derived summaries.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockleague/ledger-engine/internal/ledger"
	"github.com/stockleague/ledger-engine/internal/metrics"
	"github.com/stockleague/ledger-engine/internal/model"
	"github.com/stockleague/ledger-engine/internal/policy"
	"github.com/stockleague/ledger-engine/internal/price"
	"github.com/stockleague/ledger-engine/internal/summary"
)

// Validation failure sentinels.
var (
	ErrInvalidQuantity    = errors.New("trade: quantity must be a positive whole number")
	ErrInvalidPrice       = errors.New("trade: price must be positive")
	ErrInvalidType        = errors.New("trade: type must be BUY or SELL")
	ErrInsufficientCash   = errors.New("trade: insufficient cash")
	ErrInsufficientShares = errors.New("trade: insufficient shares")
)

// Service validates and executes trades. A per-player mutex serializes the
// read-summary → validate → append → recompute sequence, so two concurrent
// trades for the same player can never both validate against the same stale
// summary. Cross-player trades proceed independently.
type Service struct {
	ledger    *ledger.Store
	summaries *summary.Engine
	policy    *policy.SingleSymbol
	quoter    price.Quoter // portfolio valuation only; may be nil
	wsHub     *WSHub       // optional WebSocket hub for trade broadcasts

	locks sync.Map // playerID → *sync.Mutex
}

// NewService creates a trade service. Pass nil for quoter or hub when
// portfolio valuation or broadcasting is not needed.
func NewService(l *ledger.Store, s *summary.Engine, pol *policy.SingleSymbol, q price.Quoter, hub *WSHub) *Service {
	if pol == nil {
		pol = policy.NewSingleSymbol(false)
	}
	return &Service{
		ledger:    l,
		summaries: s,
		policy:    pol,
		quoter:    q,
		wsHub:     hub,
	}
}

func (s *Service) lockFor(playerID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(playerID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Validation is the outcome of validateTrade, carrying the summaries it read
// so the executor doesn't fetch them twice.
type Validation struct {
	OK       bool
	Reason   string // human-readable, set when !OK
	Err      error  // sentinel matching the rejection, set when !OK
	Player   *model.PlayerSummary
	Position *model.PositionSummary // nil when the player holds none of the symbol
}

func rejected(err error, reason string) *Validation {
	return &Validation{OK: false, Err: err, Reason: reason}
}

// ValidateTrade checks a proposed trade against derived summaries without
// writing anything. The error return is for persistence failures only;
// business rejections come back in the Validation.
func (s *Service) ValidateTrade(ctx context.Context, playerID, sym string, typ model.EntryType, quantity, pricePerShare decimal.Decimal) (*Validation, error) {
	mu := s.lockFor(playerID)
	mu.Lock()
	defer mu.Unlock()
	return s.validateLocked(ctx, playerID, sym, typ, quantity, pricePerShare)
}

func (s *Service) validateLocked(ctx context.Context, playerID, sym string, typ model.EntryType, quantity, pricePerShare decimal.Decimal) (*Validation, error) {
	if typ != model.EntryBuy && typ != model.EntrySell {
		return rejected(ErrInvalidType, fmt.Sprintf("Invalid trade type %q.", typ)), nil
	}
	if !quantity.IsPositive() || !quantity.IsInteger() {
		return rejected(ErrInvalidQuantity, "Quantity must be a positive whole number of shares."), nil
	}
	if !pricePerShare.IsPositive() {
		return rejected(ErrInvalidPrice, "Price must be positive."), nil
	}

	total := quantity.Mul(pricePerShare)

	switch typ {
	case model.EntryBuy:
		ps, err := s.summaries.Player(ctx, playerID)
		if err != nil {
			return nil, err
		}
		if total.GreaterThan(ps.CashBalance) {
			return rejected(ErrInsufficientCash, fmt.Sprintf(
				"Insufficient cash. Available: $%s, Required: $%s",
				ps.CashBalance.StringFixed(2), total.StringFixed(2))), nil
		}
		open, err := s.summaries.PositionsForPlayer(ctx, playerID)
		if err != nil {
			return nil, err
		}
		if err := s.policy.CheckBuy(sym, open); err != nil {
			return rejected(err, fmt.Sprintf("Trade not allowed: %s.", err)), nil
		}
		pos, err := s.summaries.Position(ctx, playerID, sym)
		if err != nil {
			return nil, err
		}
		return &Validation{OK: true, Player: ps, Position: pos}, nil

	default: // SELL
		pos, err := s.summaries.Position(ctx, playerID, sym)
		if err != nil {
			return nil, err
		}
		held := decimal.Zero
		if pos != nil {
			held = pos.Quantity
		}
		if quantity.GreaterThan(held) {
			return rejected(ErrInsufficientShares, fmt.Sprintf(
				"Insufficient shares of %s. Holding: %s, Requested: %s",
				sym, held.String(), quantity.String())), nil
		}
		ps, err := s.summaries.Player(ctx, playerID)
		if err != nil {
			return nil, err
		}
		return &Validation{OK: true, Player: ps, Position: pos}, nil
	}
}

// Result is the outcome of ExecuteTrade.
type Result struct {
	Success         bool                   `json:"success"`
	Entry           *model.LedgerEntry     `json:"entry,omitempty"`
	PlayerSummary   *model.PlayerSummary   `json:"player_summary,omitempty"`
	PositionSummary *model.PositionSummary `json:"position_summary,omitempty"`
	ErrorReason     string                 `json:"error_reason,omitempty"`

	reject error // sentinel behind a rejection, for HTTP status mapping
}

// ExecuteTrade runs the full proposed→committed sequence: validate, append
// the ledger entry, recompute summaries. A validation failure performs no
// writes. A failed summary recompute after a successful append is a
// recoverable inconsistency — the entry stands and the next read self-heals
// via lazy recalculation.
func (s *Service) ExecuteTrade(ctx context.Context, playerID, sym string, typ model.EntryType, quantity, pricePerShare decimal.Decimal) (*Result, error) {
	mu := s.lockFor(playerID)
	mu.Lock()
	defer mu.Unlock()

	v, err := s.validateLocked(ctx, playerID, sym, typ, quantity, pricePerShare)
	if err != nil {
		return nil, err
	}
	if !v.OK {
		metrics.TradeRejections.WithLabelValues(rejectionLabel(v.Err)).Inc()
		return &Result{Success: false, ErrorReason: v.Reason, reject: v.Err}, nil
	}

	total := quantity.Mul(pricePerShare)
	now := time.Now().UTC()

	entry := &model.LedgerEntry{
		ID:            uuid.New().String(),
		PlayerID:      playerID,
		EntryType:     typ,
		Symbol:        sym,
		PricePerShare: pricePerShare,
		Timestamp:     now,
	}
	switch typ {
	case model.EntryBuy:
		entry.Quantity = quantity
		entry.CashChange = total.Neg()
	case model.EntrySell:
		avgCost := v.Position.AverageCostBasis
		realized := pricePerShare.Sub(avgCost).Mul(quantity)
		entry.Quantity = quantity.Neg()
		entry.CashChange = total
		entry.CostBasisPerShare = &avgCost
		entry.RealizedPnL = &realized
	}

	// The append is the commit point. A failure here must surface to the
	// caller as a hard failure: the trade did not happen.
	if err := s.ledger.Append(ctx, entry); err != nil {
		return nil, err
	}
	metrics.LedgerAppends.WithLabelValues(string(typ)).Inc()
	metrics.TradesTotal.WithLabelValues(string(typ)).Inc()

	result := &Result{Success: true, Entry: entry}

	// Recompute position first, then player. Failures are logged, not
	// returned: the ledger entry is committed and recomputation is an
	// idempotent pure function of the ledger, re-runnable at any time.
	pos, err := s.summaries.RecalculatePosition(ctx, playerID, sym)
	if err != nil {
		slog.Warn("position recalculation failed after append",
			"player", playerID, "symbol", sym, "err", err)
	} else {
		result.PositionSummary = pos
	}
	playerSum, err := s.summaries.RecalculatePlayer(ctx, playerID)
	if err != nil {
		slog.Warn("player recalculation failed after append",
			"player", playerID, "err", err)
	} else {
		result.PlayerSummary = playerSum
	}

	slog.Info("trade committed",
		"entry_id", entry.ID,
		"player", playerID,
		"symbol", sym,
		"type", typ,
		"qty", quantity.String(),
		"price", pricePerShare.String(),
		"cash_change", entry.CashChange.String(),
	)

	if s.wsHub != nil {
		msg := WSMessage{
			Type:     "trade_committed",
			PlayerID: playerID,
			Symbol:   sym,
			Trade:    string(typ),
			Quantity: quantity.String(),
			Price:    pricePerShare.String(),
		}
		if result.PlayerSummary != nil {
			msg.CashBalance = result.PlayerSummary.CashBalance.String()
		}
		s.wsHub.Broadcast(msg)
	}

	return result, nil
}

func rejectionLabel(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientCash):
		return "insufficient_cash"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, policy.ErrSingleSymbol):
		return "single_symbol_policy"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInvalidPrice):
		return "invalid_price"
	default:
		return "invalid_request"
	}
}
