package wallet

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

const (
	walletStoreDir = "wallet"
	walletKey      = "wallet"
)

type WalletData struct {
	WalletType      string
	EncryptedPrvkey []byte
	PasswordHash    []byte
	PubKey          []byte
}

type walletStore struct {
	db *badgerhold.Store
}

func newWalletStore(dir string) (*walletStore, error) {
	if dir != "" {
		dir = filepath.Join(dir, walletStoreDir)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	if len(dir) <= 0 {
		opts.InMemory = true
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet store: %s", err)
	}
	return &walletStore{db: db}, nil
}

func (s *walletStore) addWallet(data WalletData) error {
	return s.db.Upsert(walletKey, &data)
}

func (s *walletStore) getWallet() (*WalletData, error) {
	var data WalletData
	if err := s.db.Get(walletKey, &data); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &data, nil
}

func (s *walletStore) close() {
	if err := s.db.Close(); err != nil {
		log.Debugf("error on closing wallet db: %s", err)
	}
}
