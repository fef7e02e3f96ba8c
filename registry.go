package vaultsdk

import (
	"context"
	"time"

	"github.com/Arowolokehinde/CharmVault/types"
	log "github.com/sirupsen/logrus"
)

// lockRegistry reserves funding UTXOs for in-flight operations so that
// concurrent vault operations never race on the same coin. Locks carry a
// TTL: a crashed or abandoned operation frees its coin automatically once
// the TTL elapses.
//
// The registry fails open on store errors: a broken lock store degrades
// double-spend protection but never blocks an operation.
type lockRegistry struct {
	store types.LockStore
}

func newLockRegistry(store types.LockStore) *lockRegistry {
	return &lockRegistry{store: store}
}

// Lock reserves the outpoint. Re-locking an already reserved outpoint is
// not an error, the existing reservation stays untouched.
func (r *lockRegistry) Lock(ctx context.Context, outpoint types.Outpoint, kind types.LockKind) {
	now := time.Now()
	existing, err := r.store.GetLock(ctx, outpoint)
	if err != nil {
		log.WithError(err).Warnf("failed to read lock for %s, locking anyway", outpoint)
	}
	if existing != nil && !existing.Expired(now) {
		log.Warnf("utxo %s is already locked for %s", outpoint, existing.Kind)
		return
	}

	lock := types.UtxoLock{
		Outpoint:  outpoint,
		Kind:      kind,
		LockedAt:  now,
		ExpiresAt: now.Add(types.LockTTL),
	}
	if err := r.store.AddLock(ctx, lock); err != nil {
		log.WithError(err).Warnf("failed to persist lock for %s", outpoint)
	}
}

// Unlock releases the outpoint. Unlocking an outpoint that is not locked is
// logged and ignored.
func (r *lockRegistry) Unlock(ctx context.Context, outpoint types.Outpoint) {
	existing, err := r.store.GetLock(ctx, outpoint)
	if err != nil {
		log.WithError(err).Warnf("failed to read lock for %s", outpoint)
	}
	if existing == nil {
		log.Debugf("unlock of %s requested but no lock is held", outpoint)
	}
	if err := r.store.RemoveLock(ctx, outpoint); err != nil {
		log.WithError(err).Warnf("failed to remove lock for %s", outpoint)
	}
}

// IsLocked reports whether the outpoint is currently reserved. Expired
// locks are evicted lazily on read.
func (r *lockRegistry) IsLocked(ctx context.Context, outpoint types.Outpoint) bool {
	lock, err := r.store.GetLock(ctx, outpoint)
	if err != nil {
		log.WithError(err).Warnf("failed to read lock for %s, treating as unlocked", outpoint)
		return false
	}
	if lock == nil {
		return false
	}
	if lock.Expired(time.Now()) {
		if err := r.store.RemoveLock(ctx, outpoint); err != nil {
			log.WithError(err).Warnf("failed to evict expired lock for %s", outpoint)
		}
		return false
	}
	return true
}

// ClearExpired sweeps every expired lock. Called before funding selection
// so stale reservations never shrink the candidate set.
func (r *lockRegistry) ClearExpired(ctx context.Context) {
	locks, err := r.store.GetAllLocks(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to list locks for expiry sweep")
		return
	}
	now := time.Now()
	for _, lock := range locks {
		if !lock.Expired(now) {
			continue
		}
		if err := r.store.RemoveLock(ctx, lock.Outpoint); err != nil {
			log.WithError(err).Warnf("failed to evict expired lock for %s", lock.Outpoint)
		}
	}
}
