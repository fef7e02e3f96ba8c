package wallet

import (
	"bytes"
	"fmt"

	"github.com/Arowolokehinde/CharmVault/internal/utils"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// newSingleKeyWallet builds the taproot key-path backend. Its signatures end
// up as TaprootKeySpendSig entries, finalized into a single-element witness
// stack by the format converter.
func newSingleKeyWallet(args ServiceArgs) (WalletService, error) {
	store, err := newWalletStore(args.Datadir)
	if err != nil {
		return nil, err
	}

	w := &baseWallet{
		walletType:    SingleKeyWallet,
		net:           utils.ToBitcoinNetwork(args.Network),
		explorer:      args.ExplorerSvc,
		store:         store,
		deriveAddress: deriveTaprootAddress,
		signPacket:    signTaprootPacket,
	}
	return w, nil
}

func deriveTaprootAddress(pubKey *btcec.PublicKey, net *chaincfg.Params) (btcutil.Address, error) {
	taprootKey := txscript.ComputeTaprootKeyNoScript(pubKey)
	return btcutil.NewAddressTaproot(schnorr.SerializePubKey(taprootKey), net)
}

func signTaprootPacket(
	packet *psbt.Packet, privKey *btcec.PrivateKey, pkScript []byte,
) (int, error) {
	fetcher := prevOutputFetcher(packet)
	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)

	tweakedKey := txscript.TweakTaprootPrivKey(*privKey, nil)

	signed := 0
	for i := range packet.Inputs {
		in := &packet.Inputs[i]
		if in.WitnessUtxo == nil || !bytes.Equal(in.WitnessUtxo.PkScript, pkScript) {
			continue
		}

		sig, err := txscript.RawTxInTaprootSignature(
			packet.UnsignedTx, sigHashes, i, in.WitnessUtxo.Value,
			in.WitnessUtxo.PkScript, nil, txscript.SigHashDefault, tweakedKey,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to sign input %d: %s", i, err)
		}

		in.TaprootKeySpendSig = sig
		signed++
	}

	return signed, nil
}
