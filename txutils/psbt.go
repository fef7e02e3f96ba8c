// Package txutils converts between the raw transaction encoding returned by
// the proof service and the partially-signed format the wallet collaborators
// sign, including the manual witness assembly needed for inputs the standard
// finalizer does not recognize.
package txutils

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrMissingInputData is returned when an input of the transaction to
	// convert has no corresponding source transaction to take the spent
	// output from.
	ErrMissingInputData = fmt.Errorf("missing source transaction for input")

	// ErrUnfinalizableInput is returned when neither standard finalization
	// nor manual witness assembly yields witness data for an input.
	ErrUnfinalizableInput = fmt.Errorf("cannot finalize input")
)

const (
	schnorrSigLen            = 64
	schnorrSigWithHashTypLen = 65
)

// PrevTx pairs a raw source transaction with the index of the output being
// spent by the input it backs.
type PrevTx struct {
	Hex         string
	OutputIndex uint32
}

func parseTx(txHex string) (*wire.MsgTx, error) {
	var tx wire.MsgTx
	if err := tx.Deserialize(hex.NewDecoder(strings.NewReader(txHex))); err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %s", err)
	}
	return &tx, nil
}

func serializeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// ToPsbtWithFunding builds a partially-signed transaction from an unsigned
// raw transaction, attaching the spent-output script and value for the input
// at inputIndex from the given funding transaction. Other inputs are left
// without witness data: for the create flow only the funding input needs
// wallet co-signing.
func ToPsbtWithFunding(
	unsignedTxHex, fundingTxHex string, inputIndex int,
) (string, error) {
	unsignedTx, err := parseTx(unsignedTxHex)
	if err != nil {
		return "", err
	}
	fundingTx, err := parseTx(fundingTxHex)
	if err != nil {
		return "", fmt.Errorf("failed to parse funding tx: %s", err)
	}

	if inputIndex < 0 || inputIndex >= len(unsignedTx.TxIn) {
		return "", fmt.Errorf("input index %d out of range", inputIndex)
	}

	packet, err := psbt.NewFromUnsignedTx(unsignedTx)
	if err != nil {
		return "", fmt.Errorf("failed to build psbt: %s", err)
	}

	prevIndex := unsignedTx.TxIn[inputIndex].PreviousOutPoint.Index
	if prevIndex >= uint32(len(fundingTx.TxOut)) {
		return "", fmt.Errorf(
			"%w %d: funding tx has no output %d", ErrMissingInputData, inputIndex, prevIndex,
		)
	}

	packet.Inputs[inputIndex].WitnessUtxo = fundingTx.TxOut[prevIndex]
	packet.Inputs[inputIndex].SighashType = txscript.SigHashDefault

	return packet.B64Encode()
}

// ToPsbtMultiple maps every input of the unsigned transaction to its own
// source transaction. It fails with ErrMissingInputData if any input lacks a
// corresponding source.
func ToPsbtMultiple(unsignedTxHex string, sources []PrevTx) (string, error) {
	unsignedTx, err := parseTx(unsignedTxHex)
	if err != nil {
		return "", err
	}

	if len(sources) < len(unsignedTx.TxIn) {
		return "", fmt.Errorf(
			"%w: got %d sources for %d inputs",
			ErrMissingInputData, len(sources), len(unsignedTx.TxIn),
		)
	}

	packet, err := psbt.NewFromUnsignedTx(unsignedTx)
	if err != nil {
		return "", fmt.Errorf("failed to build psbt: %s", err)
	}

	for i := range unsignedTx.TxIn {
		sourceTx, err := parseTx(sources[i].Hex)
		if err != nil {
			return "", fmt.Errorf("failed to parse source tx for input %d: %s", i, err)
		}
		if sources[i].OutputIndex >= uint32(len(sourceTx.TxOut)) {
			return "", fmt.Errorf(
				"%w %d: source tx has no output %d",
				ErrMissingInputData, i, sources[i].OutputIndex,
			)
		}

		packet.Inputs[i].WitnessUtxo = sourceTx.TxOut[sources[i].OutputIndex]
		packet.Inputs[i].SighashType = txscript.SigHashDefault
	}

	return packet.B64Encode()
}

// ExtractSignedTx finalizes every input of a signed partially-signed
// transaction and serializes the fully-signed raw transaction. Standard
// finalization is attempted first; inputs it cannot handle fall back to
// manual witness assembly.
func ExtractSignedTx(signedPsbt string) (string, error) {
	packet, err := psbt.NewFromRawBytes(strings.NewReader(signedPsbt), true)
	if err != nil {
		return "", fmt.Errorf("failed to parse signed psbt: %s", err)
	}

	for i := range packet.Inputs {
		if _, err := psbt.MaybeFinalize(packet, i); err == nil {
			continue
		}
		if err := finalizeManually(packet, i); err != nil {
			return "", err
		}
	}

	signedTx, err := psbt.Extract(packet)
	if err != nil {
		return "", fmt.Errorf("failed to extract signed tx: %s", err)
	}

	return serializeTx(signedTx)
}

// finalizeManually assembles witness data the standard finalizer does not
// recognize. Taproot key-path spends carry only a schnorr signature, which
// becomes a single-element witness stack; legacy segwit inputs with a
// detached signature and pubkey become a two-element stack.
func finalizeManually(packet *psbt.Packet, inputIndex int) error {
	in := &packet.Inputs[inputIndex]

	var witness wire.TxWitness
	switch {
	case len(in.TaprootKeySpendSig) == schnorrSigLen ||
		len(in.TaprootKeySpendSig) == schnorrSigWithHashTypLen:
		witness = wire.TxWitness{in.TaprootKeySpendSig}

	case len(in.PartialSigs) == 1:
		sig := in.PartialSigs[0]
		witness = wire.TxWitness{sig.Signature, sig.PubKey}

	default:
		return fmt.Errorf("%w %d: no signature material", ErrUnfinalizableInput, inputIndex)
	}

	var buf bytes.Buffer
	if err := psbt.WriteTxWitness(&buf, witness); err != nil {
		return fmt.Errorf("failed to serialize witness for input %d: %s", inputIndex, err)
	}

	in.FinalScriptWitness = buf.Bytes()
	in.TaprootKeySpendSig = nil
	in.PartialSigs = nil
	in.SighashType = 0

	return nil
}

// TxidFromHex computes the transaction id of a raw transaction.
func TxidFromHex(txHex string) (string, error) {
	tx, err := parseTx(txHex)
	if err != nil {
		return "", err
	}
	return tx.TxHash().String(), nil
}
