package store

import (
	"context"

	kvstore "github.com/Arowolokehinde/CharmVault/store/kv"
	"github.com/Arowolokehinde/CharmVault/types"
	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	// BaseDir is where the badger databases live. Empty means fully
	// in-memory, which is what the tests use.
	BaseDir string
	Logger  badger.Logger
}

type service struct {
	configStore     types.ConfigStore
	vaultStore      types.VaultStore
	lockStore       types.LockStore
	failedUtxoStore types.FailedUtxoStore
}

// NewStore assembles the persisted state of the SDK: config, vault records,
// UTXO locks and the failed-UTXO cooldown map.
func NewStore(storeConfig Config) (types.Store, error) {
	configStore, err := kvstore.NewConfigStore(storeConfig.BaseDir, storeConfig.Logger)
	if err != nil {
		return nil, err
	}
	vaultStore, err := kvstore.NewVaultStore(storeConfig.BaseDir, storeConfig.Logger)
	if err != nil {
		return nil, err
	}
	lockStore, err := kvstore.NewLockStore(storeConfig.BaseDir, storeConfig.Logger)
	if err != nil {
		return nil, err
	}
	failedUtxoStore, err := kvstore.NewFailedUtxoStore(storeConfig.BaseDir, storeConfig.Logger)
	if err != nil {
		return nil, err
	}

	return &service{
		configStore:     configStore,
		vaultStore:      vaultStore,
		lockStore:       lockStore,
		failedUtxoStore: failedUtxoStore,
	}, nil
}

func (s *service) ConfigStore() types.ConfigStore {
	return s.configStore
}

func (s *service) VaultStore() types.VaultStore {
	return s.vaultStore
}

func (s *service) LockStore() types.LockStore {
	return s.lockStore
}

func (s *service) FailedUtxoStore() types.FailedUtxoStore {
	return s.failedUtxoStore
}

func (s *service) Clean(ctx context.Context) {
	if err := s.vaultStore.Clean(ctx); err != nil {
		log.WithError(err).Warn("failed to clean vault store")
	}
	if err := s.lockStore.Clean(ctx); err != nil {
		log.WithError(err).Warn("failed to clean lock store")
	}
	if err := s.failedUtxoStore.Clean(ctx); err != nil {
		log.WithError(err).Warn("failed to clean failed-utxo store")
	}
	if err := s.configStore.CleanData(ctx); err != nil {
		log.WithError(err).Warn("failed to clean config store")
	}
}

func (s *service) Close() {
	s.vaultStore.Close()
	s.lockStore.Close()
	s.failedUtxoStore.Close()
	s.configStore.Close()
}
