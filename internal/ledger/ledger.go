// Package ledger implements the append-only event log of financial entries.
// The ledger is the source of truth: position and player summaries are
// derived from it by replay and never written here.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/stockleague/ledger-engine/internal/kv"
	"github.com/stockleague/ledger-engine/internal/model"
)

// keyTimeLayout is fixed-width UTC so that lexicographic key order matches
// chronological order on prefix scans.
const keyTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Store persists ledger entries in the LEDGER partition, keyed
// player#timestamp#id.
type Store struct {
	kv kv.Store
}

// NewStore creates a ledger store over the given persistence backend.
func NewStore(store kv.Store) *Store {
	return &Store{kv: store}
}

func entryKey(e *model.LedgerEntry) string {
	return fmt.Sprintf("%s#%s#%s", e.PlayerID, e.Timestamp.UTC().Format(keyTimeLayout), e.ID)
}

func playerPrefix(playerID string) string {
	return playerID + "#"
}

// Append writes a new immutable entry. Entries are never edited in place.
func (s *Store) Append(ctx context.Context, e *model.LedgerEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ledger: encode entry %s: %w", e.ID, err)
	}
	if err := s.kv.Put(ctx, kv.PartitionLedger, entryKey(e), data); err != nil {
		return fmt.Errorf("ledger: append entry %s: %w", e.ID, err)
	}
	return nil
}

// EntriesForPlayer returns all entries for a player sorted ascending by
// timestamp (id breaks ties).
func (s *Store) EntriesForPlayer(ctx context.Context, playerID string) ([]model.LedgerEntry, error) {
	records, err := s.kv.QueryByPrefix(ctx, kv.PartitionLedger, playerPrefix(playerID))
	if err != nil {
		return nil, fmt.Errorf("ledger: entries for player %s: %w", playerID, err)
	}

	entries := make([]model.LedgerEntry, 0, len(records))
	for _, r := range records {
		var e model.LedgerEntry
		if err := json.Unmarshal(r.Value, &e); err != nil {
			return nil, fmt.Errorf("ledger: decode entry %s: %w", r.Key, err)
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// EntriesForSymbol returns the player's entries for one symbol, ascending by
// timestamp.
func (s *Store) EntriesForSymbol(ctx context.Context, playerID, symbol string) ([]model.LedgerEntry, error) {
	entries, err := s.EntriesForPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	filtered := entries[:0:0]
	for _, e := range entries {
		if strings.EqualFold(e.Symbol, symbol) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// ClearPlayer deletes all entries for a player. Destructive: used only as
// the precondition of a full re-import, never in the trading flow.
func (s *Store) ClearPlayer(ctx context.Context, playerID string) error {
	records, err := s.kv.QueryByPrefix(ctx, kv.PartitionLedger, playerPrefix(playerID))
	if err != nil {
		return fmt.Errorf("ledger: clear player %s: %w", playerID, err)
	}
	for _, r := range records {
		if err := s.kv.Delete(ctx, kv.PartitionLedger, r.Key); err != nil {
			return fmt.Errorf("ledger: clear player %s: delete %s: %w", playerID, r.Key, err)
		}
	}
	return nil
}
