// Package kv defines the key-partitioned persistence interface the ledger
// engine is built on. Implementations include a local keyed-file store, a
// PostgreSQL key-value table (remote), a Redis read-through cache wrapper,
// and an in-memory store for testing. All are interchangeable; backend
// selection happens in cmd/server from explicit configuration.
package kv

import (
	"context"
	"errors"
)

// Partition is a logical namespace for records.
type Partition string

const (
	PartitionPlayer          Partition = "PLAYER"
	PartitionLedger          Partition = "LEDGER"
	PartitionPositionSummary Partition = "POSITION_SUMMARY"
	PartitionPlayerSummary   Partition = "PLAYER_SUMMARY"
)

// ErrNotFound is returned by Get when no record exists under the key.
var ErrNotFound = errors.New("kv: record not found")

// Record is a key plus its stored value, as returned by prefix queries.
type Record struct {
	Key   string
	Value []byte
}

// Store is the persistence contract. Put and Delete are idempotent and safe
// to repeat; no multi-key transactions are provided, so callers must tolerate
// partial completion across keys. QueryByPrefix returns records in no
// particular order — callers sort.
type Store interface {
	Get(ctx context.Context, p Partition, key string) ([]byte, error)
	Put(ctx context.Context, p Partition, key string, value []byte) error
	QueryByPrefix(ctx context.Context, p Partition, prefix string) ([]Record, error)
	Delete(ctx context.Context, p Partition, key string) error
}
