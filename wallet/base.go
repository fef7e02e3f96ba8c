package wallet

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/Arowolokehinde/CharmVault/explorer"
	"github.com/Arowolokehinde/CharmVault/internal/utils"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	log "github.com/sirupsen/logrus"
)

// baseWallet carries everything the two backends share: key custody, the
// connect/disconnect lifecycle and the explorer-backed state refresh. The
// backends differ only in address derivation and signing.
type baseWallet struct {
	walletType string
	net        chaincfg.Params
	explorer   explorer.Explorer
	store      *walletStore

	deriveAddress func(pubKey *btcec.PublicKey, net *chaincfg.Params) (btcutil.Address, error)
	signPacket    func(packet *psbt.Packet, privKey *btcec.PrivateKey, pkScript []byte) (int, error)

	mu      sync.RWMutex
	privKey *btcec.PrivateKey
	state   WalletState
}

func (w *baseWallet) GetType() string {
	return w.walletType
}

func (w *baseWallet) Connect(ctx context.Context, password string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.privKey != nil {
		return nil
	}

	data, err := w.store.getWallet()
	if err != nil {
		return fmt.Errorf("failed to read wallet data: %s", err)
	}

	var privKey *btcec.PrivateKey
	if data == nil {
		privKey, err = btcec.NewPrivateKey()
		if err != nil {
			return err
		}
		encrypted, err := utils.EncryptAES256(privKey.Serialize(), []byte(password))
		if err != nil {
			return err
		}
		if err := w.store.addWallet(WalletData{
			WalletType:      w.walletType,
			EncryptedPrvkey: encrypted,
			PasswordHash:    utils.HashPassword([]byte(password)),
			PubKey:          privKey.PubKey().SerializeCompressed(),
		}); err != nil {
			return fmt.Errorf("failed to persist wallet data: %s", err)
		}
		log.Debug("wallet: created new signing key")
	} else {
		buf, err := utils.DecryptAES256(data.EncryptedPrvkey, []byte(password))
		if err != nil {
			return err
		}
		privKey, _ = btcec.PrivKeyFromBytes(buf)
	}

	addr, err := w.deriveAddress(privKey.PubKey(), &w.net)
	if err != nil {
		return fmt.Errorf("failed to derive wallet address: %s", err)
	}

	w.privKey = privKey
	w.state = WalletState{
		Connected: true,
		Address:   addr.EncodeAddress(),
		PubKey:    hex.EncodeToString(privKey.PubKey().SerializeCompressed()),
	}

	w.refreshLocked()
	return nil
}

func (w *baseWallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.privKey = nil
	w.state = WalletState{}
	if w.store != nil {
		w.store.close()
	}
}

func (w *baseWallet) Disconnect(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.privKey = nil
	w.state = WalletState{}
	return nil
}

func (w *baseWallet) GetState(_ context.Context) (*WalletState, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.state.Connected {
		return nil, fmt.Errorf("wallet not connected")
	}
	state := w.state
	return &state, nil
}

func (w *baseWallet) Refresh(_ context.Context) (*WalletState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.state.Connected {
		return nil, fmt.Errorf("wallet not connected")
	}
	w.refreshLocked()
	state := w.state
	return &state, nil
}

// refreshLocked updates the cached UTXO set and balance. A failed refresh
// keeps the last-known state: staleness is tolerable here, total failure is
// not.
func (w *baseWallet) refreshLocked() {
	utxos, err := w.explorer.GetUtxos(w.state.Address)
	if err != nil {
		log.WithError(err).Warn("wallet: balance refresh failed, keeping last-known state")
		return
	}

	balance := uint64(0)
	for _, utxo := range utxos {
		balance += utxo.Amount
	}
	w.state.Utxos = utxos
	w.state.BalanceSats = balance
}

func (w *baseWallet) SignTransaction(_ context.Context, tx string) (string, error) {
	w.mu.RLock()
	privKey := w.privKey
	address := w.state.Address
	w.mu.RUnlock()

	if privKey == nil {
		return "", fmt.Errorf("wallet not connected")
	}

	packet, err := psbt.NewFromRawBytes(strings.NewReader(tx), true)
	if err != nil {
		return "", fmt.Errorf("failed to parse transaction to sign: %s", err)
	}

	pkScript, err := utils.ParseBitcoinAddress(address, w.net)
	if err != nil {
		return "", err
	}

	signedCount, err := w.signPacket(packet, privKey, pkScript)
	if err != nil {
		return "", err
	}
	if signedCount == 0 {
		return "", fmt.Errorf("no input belongs to this wallet")
	}

	return packet.B64Encode()
}

// prevOutputFetcher builds the fetcher needed for sighash computation from
// the witness utxos carried by the packet.
func prevOutputFetcher(packet *psbt.Packet) txscript.PrevOutputFetcher {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range packet.Inputs {
		if in.WitnessUtxo == nil {
			continue
		}
		outpoint := packet.UnsignedTx.TxIn[i].PreviousOutPoint
		fetcher.AddPrevOut(outpoint, in.WitnessUtxo)
	}
	return fetcher
}
