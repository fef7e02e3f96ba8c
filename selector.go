package vaultsdk

import (
	"context"
	"sort"
	"time"

	"github.com/Arowolokehinde/CharmVault/types"
	log "github.com/sirupsen/logrus"
)

// selectFundingUtxo picks the smallest confirmed coin covering requiredSats,
// skipping coins reserved by in-flight operations and coins in the
// post-failure cooldown window. Candidates are sorted ascending by amount
// with the outpoint as tie-breaker so selection is deterministic for a
// given wallet state.
func (a *vaultClient) selectFundingUtxo(
	ctx context.Context, utxos []types.Utxo, requiredSats uint64,
) (*types.Utxo, error) {
	candidates := make([]types.Utxo, len(utxos))
	copy(candidates, utxos)
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Amount != candidates[j].Amount {
			return candidates[i].Amount < candidates[j].Amount
		}
		return candidates[i].Outpoint.String() < candidates[j].Outpoint.String()
	})

	now := time.Now()
	skippedSufficient := false
	for i := range candidates {
		utxo := candidates[i]
		if utxo.Amount < requiredSats {
			continue
		}
		if !utxo.Confirmed {
			log.Debugf("skipping unconfirmed utxo %s", utxo.Outpoint)
			skippedSufficient = true
			continue
		}
		if a.locks.IsLocked(ctx, utxo.Outpoint) {
			log.Debugf("skipping locked utxo %s", utxo.Outpoint)
			skippedSufficient = true
			continue
		}
		failure, err := a.store.FailedUtxoStore().GetFailure(ctx, utxo.Outpoint)
		if err != nil {
			log.WithError(err).Warnf("failed to read failure record for %s", utxo.Outpoint)
		}
		if failure != nil && failure.CoolingDown(now) {
			log.Debugf("skipping cooling-down utxo %s", utxo.Outpoint)
			skippedSufficient = true
			continue
		}
		return &utxo, nil
	}

	if skippedSufficient {
		return nil, newError(
			CodeInsufficientFunds,
			"every UTXO covering %d sats is unconfirmed, reserved by another operation or cooling down, retry shortly",
			requiredSats,
		)
	}
	return nil, newError(
		CodeInsufficientFunds,
		"no wallet UTXO covers the required %d sats", requiredSats,
	)
}
