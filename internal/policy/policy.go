// Package policy implements optional trading restrictions layered on top of
// ledger validation.
//
// The single-symbol rule comes from an earlier season of the competition,
// where a player could hold at most one stock at a time. The ledger redesign
// lifted the restriction; it remains available here as an opt-in policy for
// leagues that still want it, disabled by default.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stockleague/ledger-engine/internal/model"
)

// ErrSingleSymbol is returned when a buy would open a second concurrent
// position under the single-symbol rule.
var ErrSingleSymbol = errors.New("policy: only one open position allowed at a time")

// SingleSymbol enforces at most one open position per player when enabled.
type SingleSymbol struct {
	Enabled bool
}

// NewSingleSymbol creates the policy. Pass enabled=false for the default
// unrestricted behavior.
func NewSingleSymbol(enabled bool) *SingleSymbol {
	return &SingleSymbol{Enabled: enabled}
}

// CheckBuy validates a proposed buy of sym against the player's currently
// open positions. Buys that add to an already-open position always pass.
func (p *SingleSymbol) CheckBuy(sym string, open []model.PositionSummary) error {
	if !p.Enabled {
		return nil
	}
	for _, pos := range open {
		if !strings.EqualFold(pos.Symbol, sym) {
			return fmt.Errorf("%w (holding %s)", ErrSingleSymbol, pos.Symbol)
		}
	}
	return nil
}
