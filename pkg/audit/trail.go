// Package audit implements an append-only, hash-chained trail of
// control-plane events: grants, conversions, lock updates, target
// closures, and scheduled-operation consumption. Payloads are hashed over
// their RFC 8785 canonical JSON form so the chain is independent of map
// ordering.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

var (
	// ErrChainBroken is returned by Verify when an entry's hash linkage
	// does not match its predecessor.
	ErrChainBroken = errors.New("audit hash chain is broken")
)

// EventType categorizes trail entries.
type EventType string

const (
	EventInitialized   EventType = "initialized"
	EventRoleGranted   EventType = "role_granted"
	EventDelaysUpdated EventType = "delays_updated"
	EventLockUpdated   EventType = "lock_updated"
	EventTargetClosed  EventType = "target_closed"
	EventVaultPublic   EventType = "vault_public"
	EventSharesEnabled EventType = "shares_enabled"
	EventOpScheduled   EventType = "op_scheduled"
	EventOpConsumed    EventType = "op_consumed"
	EventOpCancelled   EventType = "op_cancelled"
)

// Entry is a single immutable trail entry.
type Entry struct {
	EntryID      string          `json:"entry_id"`
	Sequence     uint64          `json:"sequence"`
	Timestamp    time.Time       `json:"timestamp"`
	EventType    EventType       `json:"event_type"`
	Actor        string          `json:"actor"`
	Payload      json.RawMessage `json:"payload"`
	PayloadHash  string          `json:"payload_hash"`
	PreviousHash string          `json:"previous_hash"`
	EntryHash    string          `json:"entry_hash"`
}

// Trail is an append-only audit log with hash chaining.
type Trail struct {
	mu        sync.RWMutex
	entries   []*Entry
	sequence  uint64
	chainHead string
}

// NewTrail creates an empty trail.
func NewTrail() *Trail {
	return &Trail{chainHead: "genesis"}
}

// Append adds an entry to the trail.
func (t *Trail) Append(eventType EventType, actor string, payload any) (*Entry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize payload: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sequence++
	entry := &Entry{
		EntryID:      uuid.New().String(),
		Sequence:     t.sequence,
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		Actor:        actor,
		Payload:      canonical,
		PayloadHash:  computeHash(canonical),
		PreviousHash: t.chainHead,
	}
	entry.EntryHash = computeHash([]byte(entry.PreviousHash + entry.PayloadHash + string(entry.EventType) + entry.Actor))
	t.chainHead = entry.EntryHash
	t.entries = append(t.entries, entry)
	return entry, nil
}

// Entries returns a snapshot of the trail in append order.
func (t *Trail) Entries() []*Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Verify walks the chain and checks every linkage.
func (t *Trail) Verify() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	prev := "genesis"
	for i, e := range t.entries {
		if e.PreviousHash != prev {
			return fmt.Errorf("%w: entry %d", ErrChainBroken, i)
		}
		want := computeHash([]byte(e.PreviousHash + e.PayloadHash + string(e.EventType) + e.Actor))
		if e.EntryHash != want {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, i)
		}
		prev = e.EntryHash
	}
	return nil
}

func computeHash(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}
