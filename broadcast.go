package vaultsdk

import (
	"context"
	"errors"

	"github.com/Arowolokehinde/CharmVault/node"
	"github.com/Arowolokehinde/CharmVault/prover"
	"github.com/Arowolokehinde/CharmVault/txutils"
	log "github.com/sirupsen/logrus"
)

// broadcastPair submits a commit/spell pair atomically. The prover may
// return the commit transaction already signed, so the pair is first tried
// as-is; when the submitter rejects it, the commit is round-tripped through
// the wallet as a partially-signed transaction and the pair is resubmitted.
//
// The node RPC is the primary submitter. When it is unreachable the pair
// goes through the explorer's package endpoint instead, which relays it to
// its own node.
//
// The spell transaction is never touched: its input witness commits to the
// exact bytes the prover produced, and any mutation would invalidate the
// proof.
func (a *vaultClient) broadcastPair(
	ctx context.Context, pair *prover.TxPair, fundingTxHex string,
) (string, error) {
	submit := func(commitTxHex, spellTxHex string) (string, error) {
		return a.node.SubmitPackage(ctx, commitTxHex, spellTxHex)
	}

	spellTxid, err := submit(pair.CommitTxHex, pair.SpellTxHex)
	if errors.Is(err, node.ErrUnreachable) {
		log.WithError(err).Warn("node RPC unreachable, broadcasting the package through the explorer")
		submit = func(commitTxHex, spellTxHex string) (string, error) {
			return a.explorer.Broadcast(commitTxHex, spellTxHex)
		}
		spellTxid, err = submit(pair.CommitTxHex, pair.SpellTxHex)
	}
	if err == nil {
		return spellTxid, nil
	}
	log.WithError(err).Debug("direct package submission rejected, signing the commit tx locally")

	unsignedPsbt, err := txutils.ToPsbtWithFunding(pair.CommitTxHex, fundingTxHex, 0)
	if err != nil {
		return "", err
	}
	signedPsbt, err := a.wallet.SignTransaction(ctx, unsignedPsbt)
	if err != nil {
		return "", err
	}
	commitTxHex, err := txutils.ExtractSignedTx(signedPsbt)
	if err != nil {
		return "", err
	}

	spellTxid, err = submit(commitTxHex, pair.SpellTxHex)
	if err != nil {
		return "", wrapError(CodeBroadcastFailed, err, "package submission failed")
	}
	return spellTxid, nil
}
