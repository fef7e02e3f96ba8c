package txutils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	seed := bytes.Repeat([]byte{0x01}, 32)
	priv, _ := btcec.PrivKeyFromBytes(seed)
	return priv
}

func taprootScript(t *testing.T, priv *btcec.PrivateKey) []byte {
	t.Helper()
	outputKey := txscript.ComputeTaprootKeyNoScript(priv.PubKey())
	script, err := txscript.PayToTaprootScript(outputKey)
	require.NoError(t, err)
	return script
}

// fundingAndSpend builds a confirmed-looking funding transaction paying to
// the given script and an unsigned transaction spending its first output.
func fundingAndSpend(t *testing.T, pkScript []byte, value int64) (string, string) {
	t.Helper()

	funding := wire.NewMsgTx(2)
	funding.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}, nil, nil))
	funding.AddTxOut(wire.NewTxOut(value, pkScript))

	spend := wire.NewMsgTx(2)
	spend.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: funding.TxHash(), Index: 0}, nil, nil))
	spend.AddTxOut(wire.NewTxOut(value-500, pkScript))

	fundingHex, err := serializeTx(funding)
	require.NoError(t, err)
	spendHex, err := serializeTx(spend)
	require.NoError(t, err)
	return fundingHex, spendHex
}

func TestToPsbtWithFunding(t *testing.T) {
	priv := testKey(t)
	script := taprootScript(t, priv)
	fundingHex, spendHex := fundingAndSpend(t, script, 50_000)

	packetB64, err := ToPsbtWithFunding(spendHex, fundingHex, 0)
	require.NoError(t, err)

	packet, err := psbt.NewFromRawBytes(strings.NewReader(packetB64), true)
	require.NoError(t, err)
	require.Len(t, packet.Inputs, 1)
	require.NotNil(t, packet.Inputs[0].WitnessUtxo)
	require.Equal(t, int64(50_000), packet.Inputs[0].WitnessUtxo.Value)
	require.Equal(t, script, packet.Inputs[0].WitnessUtxo.PkScript)
}

func TestToPsbtWithFundingMissingOutput(t *testing.T) {
	priv := testKey(t)
	script := taprootScript(t, priv)
	fundingHex, _ := fundingAndSpend(t, script, 50_000)

	// spend references output 5 which the funding tx does not have
	funding, err := parseTx(fundingHex)
	require.NoError(t, err)
	spend := wire.NewMsgTx(2)
	spend.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: funding.TxHash(), Index: 5}, nil, nil))
	spend.AddTxOut(wire.NewTxOut(40_000, script))
	spendHex, err := serializeTx(spend)
	require.NoError(t, err)

	_, err = ToPsbtWithFunding(spendHex, fundingHex, 0)
	require.ErrorIs(t, err, ErrMissingInputData)
}

func TestToPsbtMultipleMissingSource(t *testing.T) {
	priv := testKey(t)
	script := taprootScript(t, priv)
	_, spendHex := fundingAndSpend(t, script, 50_000)

	_, err := ToPsbtMultiple(spendHex, nil)
	require.ErrorIs(t, err, ErrMissingInputData)
}

func TestExtractSignedTxTaprootKeyPath(t *testing.T) {
	priv := testKey(t)
	script := taprootScript(t, priv)
	fundingHex, spendHex := fundingAndSpend(t, script, 50_000)

	packetB64, err := ToPsbtWithFunding(spendHex, fundingHex, 0)
	require.NoError(t, err)
	packet, err := psbt.NewFromRawBytes(strings.NewReader(packetB64), true)
	require.NoError(t, err)

	prevOut := packet.Inputs[0].WitnessUtxo
	fetcher := txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value)
	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)
	tweaked := txscript.TweakTaprootPrivKey(*priv, nil)
	sig, err := txscript.RawTxInTaprootSignature(
		packet.UnsignedTx, sigHashes, 0, prevOut.Value, prevOut.PkScript,
		nil, txscript.SigHashDefault, tweaked,
	)
	require.NoError(t, err)
	packet.Inputs[0].TaprootKeySpendSig = sig

	signedB64, err := packet.B64Encode()
	require.NoError(t, err)

	signedHex, err := ExtractSignedTx(signedB64)
	require.NoError(t, err)

	signedTx, err := parseTx(signedHex)
	require.NoError(t, err)
	require.Len(t, signedTx.TxIn, 1)
	require.Len(t, signedTx.TxIn[0].Witness, 1)
	require.Equal(t, sig, []byte(signedTx.TxIn[0].Witness[0]))
}

func TestExtractSignedTxSegwit(t *testing.T) {
	priv := testKey(t)
	pubKeyHash := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	script := append([]byte{0x00, 0x14}, pubKeyHash...)
	fundingHex, spendHex := fundingAndSpend(t, script, 50_000)

	packetB64, err := ToPsbtWithFunding(spendHex, fundingHex, 0)
	require.NoError(t, err)
	packet, err := psbt.NewFromRawBytes(strings.NewReader(packetB64), true)
	require.NoError(t, err)

	prevOut := packet.Inputs[0].WitnessUtxo
	fetcher := txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value)
	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)
	sigScript, err := payToPubKeyHashScript(pubKeyHash)
	require.NoError(t, err)
	sig, err := txscript.RawTxInWitnessSignature(
		packet.UnsignedTx, sigHashes, 0, prevOut.Value, sigScript,
		txscript.SigHashAll, priv,
	)
	require.NoError(t, err)
	packet.Inputs[0].PartialSigs = []*psbt.PartialSig{{
		PubKey:    priv.PubKey().SerializeCompressed(),
		Signature: sig,
	}}
	packet.Inputs[0].SighashType = txscript.SigHashAll

	signedB64, err := packet.B64Encode()
	require.NoError(t, err)

	signedHex, err := ExtractSignedTx(signedB64)
	require.NoError(t, err)

	signedTx, err := parseTx(signedHex)
	require.NoError(t, err)
	require.Len(t, signedTx.TxIn[0].Witness, 2)
	require.Equal(t, sig, []byte(signedTx.TxIn[0].Witness[0]))
	require.Equal(
		t, priv.PubKey().SerializeCompressed(), []byte(signedTx.TxIn[0].Witness[1]),
	)
}

func TestExtractSignedTxWithoutSignature(t *testing.T) {
	priv := testKey(t)
	script := taprootScript(t, priv)
	fundingHex, spendHex := fundingAndSpend(t, script, 50_000)

	packetB64, err := ToPsbtWithFunding(spendHex, fundingHex, 0)
	require.NoError(t, err)

	_, err = ExtractSignedTx(packetB64)
	require.ErrorIs(t, err, ErrUnfinalizableInput)
}

func TestFinalizeManuallyTaprootStack(t *testing.T) {
	priv := testKey(t)
	script := taprootScript(t, priv)
	fundingHex, spendHex := fundingAndSpend(t, script, 50_000)

	packetB64, err := ToPsbtWithFunding(spendHex, fundingHex, 0)
	require.NoError(t, err)
	packet, err := psbt.NewFromRawBytes(strings.NewReader(packetB64), true)
	require.NoError(t, err)

	packet.Inputs[0].TaprootKeySpendSig = bytes.Repeat([]byte{0x02}, 64)
	require.NoError(t, finalizeManually(packet, 0))
	require.NotEmpty(t, packet.Inputs[0].FinalScriptWitness)
	require.Nil(t, packet.Inputs[0].TaprootKeySpendSig)
}

func TestTxidFromHex(t *testing.T) {
	priv := testKey(t)
	script := taprootScript(t, priv)
	fundingHex, _ := fundingAndSpend(t, script, 50_000)

	funding, err := parseTx(fundingHex)
	require.NoError(t, err)

	txid, err := TxidFromHex(fundingHex)
	require.NoError(t, err)
	require.Equal(t, funding.TxHash().String(), txid)

	_, err = TxidFromHex("not-hex")
	require.Error(t, err)
}

// payToPubKeyHashScript is the script committed to by the BIP-143 sighash of
// a p2wpkh input.
func payToPubKeyHashScript(pubKeyHash []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(pubKeyHash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}
