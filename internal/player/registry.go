// Package player manages competition participants. Players are stored in the
// PLAYER partition keyed by lowercased display name, making names unique
// case-insensitively.
package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/stockleague/ledger-engine/internal/kv"
	"github.com/stockleague/ledger-engine/internal/model"
)

// DefaultPassword is assigned to players created implicitly (first CSV import
// mention). Players are expected to change it.
const DefaultPassword = "stockleague"

var (
	// ErrNotFound is returned when no player exists under a name.
	ErrNotFound = errors.New("player: not found")

	// ErrBadCredentials is returned on a failed password check.
	ErrBadCredentials = errors.New("player: invalid credentials")
)

// Registry persists players over the kv backend.
type Registry struct {
	kv kv.Store
}

// NewRegistry creates a player registry.
func NewRegistry(store kv.Store) *Registry {
	return &Registry{kv: store}
}

func nameKey(displayName string) string {
	return strings.ToLower(strings.TrimSpace(displayName))
}

// Get returns the player with the given display name (case-insensitive).
func (r *Registry) Get(ctx context.Context, displayName string) (*model.Player, error) {
	data, err := r.kv.Get(ctx, kv.PartitionPlayer, nameKey(displayName))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, displayName)
	}
	if err != nil {
		return nil, fmt.Errorf("player: get %s: %w", displayName, err)
	}
	var p model.Player
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("player: decode %s: %w", displayName, err)
	}
	return &p, nil
}

// ResolveOrCreate returns the existing player for a display name, or creates
// one with the default credential. The second return reports creation.
func (r *Registry) ResolveOrCreate(ctx context.Context, displayName string) (*model.Player, bool, error) {
	p, err := r.Get(ctx, displayName)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, false, fmt.Errorf("player: hash default password: %w", err)
	}
	p = &model.Player{
		ID:           uuid.New().String(),
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.put(ctx, p); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// Authenticate checks a display name + password pair.
func (r *Registry) Authenticate(ctx context.Context, displayName, password string) (*model.Player, error) {
	p, err := r.Get(ctx, displayName)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	return p, nil
}

// ChangePassword verifies the old password and stores a hash of the new one.
func (r *Registry) ChangePassword(ctx context.Context, displayName, oldPassword, newPassword string) error {
	p, err := r.Authenticate(ctx, displayName, oldPassword)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("player: hash password: %w", err)
	}
	p.PasswordHash = string(hash)
	return r.put(ctx, p)
}

func (r *Registry) put(ctx context.Context, p *model.Player) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("player: encode %s: %w", p.DisplayName, err)
	}
	if err := r.kv.Put(ctx, kv.PartitionPlayer, nameKey(p.DisplayName), data); err != nil {
		return fmt.Errorf("player: put %s: %w", p.DisplayName, err)
	}
	return nil
}
