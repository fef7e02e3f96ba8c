package wallet

import (
	"bytes"
	"fmt"

	"github.com/Arowolokehinde/CharmVault/internal/utils"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// newLegacyWallet builds the segwit-v0 backend. It attaches detached
// signature/pubkey pairs as partial signatures; inputs the standard
// finalizer cannot complete are assembled into a two-element witness stack
// by the format converter.
func newLegacyWallet(args ServiceArgs) (WalletService, error) {
	store, err := newWalletStore(args.Datadir)
	if err != nil {
		return nil, err
	}

	w := &baseWallet{
		walletType:    LegacyWallet,
		net:           utils.ToBitcoinNetwork(args.Network),
		explorer:      args.ExplorerSvc,
		store:         store,
		deriveAddress: deriveSegwitAddress,
		signPacket:    signSegwitPacket,
	}
	return w, nil
}

func deriveSegwitAddress(pubKey *btcec.PublicKey, net *chaincfg.Params) (btcutil.Address, error) {
	return btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(pubKey.SerializeCompressed()), net,
	)
}

func signSegwitPacket(
	packet *psbt.Packet, privKey *btcec.PrivateKey, pkScript []byte,
) (int, error) {
	fetcher := prevOutputFetcher(packet)
	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)

	pubKeyBytes := privKey.PubKey().SerializeCompressed()

	// The sighash of a p2wpkh spend commits to the equivalent p2pkh script.
	p2pkhScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(pubKeyBytes)).
		AddOp(txscript.OP_EQUALVERIFY).AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		return 0, err
	}

	signed := 0
	for i := range packet.Inputs {
		in := &packet.Inputs[i]
		if in.WitnessUtxo == nil || !bytes.Equal(in.WitnessUtxo.PkScript, pkScript) {
			continue
		}

		sig, err := txscript.RawTxInWitnessSignature(
			packet.UnsignedTx, sigHashes, i, in.WitnessUtxo.Value,
			p2pkhScript, txscript.SigHashAll, privKey,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to sign input %d: %s", i, err)
		}

		in.PartialSigs = append(in.PartialSigs, &psbt.PartialSig{
			PubKey:    pubKeyBytes,
			Signature: sig,
		})
		in.SighashType = txscript.SigHashAll
		signed++
	}

	return signed, nil
}
