package arcade

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ReplayGuard records the digest of every admitted request so an identical
// signed payload can be consumed only once. Signing services that need to
// authorise the same payload twice vary reserved1.
type ReplayGuard struct {
	store Store
	now   func() time.Time
}

// NewReplayGuard binds the guard to state.
func NewReplayGuard(store Store, now func() time.Time) *ReplayGuard {
	if now == nil {
		now = time.Now
	}
	return &ReplayGuard{store: store, now: now}
}

// Used reports whether digest was already consumed.
func (g *ReplayGuard) Used(digest common.Hash) (bool, error) {
	return g.store.KVGet(usedRequestKey(digest), nil)
}

// Consume marks digest as used, failing with ErrRequestReplayed if it was.
func (g *ReplayGuard) Consume(digest common.Hash) error {
	used, err := g.Used(digest)
	if err != nil {
		return err
	}
	if used {
		return ErrRequestReplayed
	}
	return g.store.KVPut(usedRequestKey(digest), unixSeconds(g.now()))
}
