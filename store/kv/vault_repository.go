package kvstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Arowolokehinde/CharmVault/types"
	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

const (
	vaultStoreDir = "vaults"
)

type vaultStore struct {
	db *badgerhold.Store
}

func NewVaultStore(dir string, logger badger.Logger) (types.VaultStore, error) {
	if dir != "" {
		dir = filepath.Join(dir, vaultStoreDir)
	}
	badgerDb, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault store: %s", err)
	}
	return &vaultStore{db: badgerDb}, nil
}

func (s *vaultStore) AddVault(_ context.Context, vault types.Vault) error {
	if err := s.db.Insert(vault.Id, &vault); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("vault %s already exists", vault.Id)
		}
		return err
	}
	return nil
}

func (s *vaultStore) UpdateVault(_ context.Context, vault types.Vault) error {
	if err := s.db.Update(vault.Id, &vault); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("vault not found: %s", vault.Id)
		}
		return err
	}
	return nil
}

func (s *vaultStore) ReplaceVault(_ context.Context, oldId string, vault types.Vault) error {
	if oldId != vault.Id {
		if err := s.db.Delete(oldId, &types.Vault{}); err != nil {
			if !errors.Is(err, badgerhold.ErrNotFound) {
				return err
			}
		}
	}
	if err := s.db.Upsert(vault.Id, &vault); err != nil {
		return err
	}
	return nil
}

func (s *vaultStore) GetVault(_ context.Context, id string) (*types.Vault, error) {
	var vault types.Vault
	if err := s.db.Get(id, &vault); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vault, nil
}

func (s *vaultStore) GetAllVaults(_ context.Context) ([]types.Vault, error) {
	var vaults []types.Vault
	if err := s.db.Find(&vaults, nil); err != nil {
		return nil, err
	}
	return vaults, nil
}

func (s *vaultStore) Clean(_ context.Context) error {
	if err := s.db.Badger().DropAll(); err != nil {
		return fmt.Errorf("failed to clean the vault db: %s", err)
	}
	return nil
}

func (s *vaultStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Debugf("error on closing db: %s", err)
	}
}
