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
	lockStoreDir = "locks"
)

type lockStore struct {
	db *badgerhold.Store
}

func NewLockStore(dir string, logger badger.Logger) (types.LockStore, error) {
	if dir != "" {
		dir = filepath.Join(dir, lockStoreDir)
	}
	badgerDb, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock store: %s", err)
	}
	return &lockStore{db: badgerDb}, nil
}

func (s *lockStore) AddLock(_ context.Context, lock types.UtxoLock) error {
	return s.db.Upsert(lock.Outpoint.String(), &lock)
}

func (s *lockStore) GetLock(_ context.Context, outpoint types.Outpoint) (*types.UtxoLock, error) {
	var lock types.UtxoLock
	if err := s.db.Get(outpoint.String(), &lock); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lock, nil
}

func (s *lockStore) GetAllLocks(_ context.Context) ([]types.UtxoLock, error) {
	var locks []types.UtxoLock
	if err := s.db.Find(&locks, nil); err != nil {
		return nil, err
	}
	return locks, nil
}

func (s *lockStore) RemoveLock(_ context.Context, outpoint types.Outpoint) error {
	if err := s.db.Delete(outpoint.String(), &types.UtxoLock{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (s *lockStore) Clean(_ context.Context) error {
	if err := s.db.Badger().DropAll(); err != nil {
		return fmt.Errorf("failed to clean the lock db: %s", err)
	}
	return nil
}

func (s *lockStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Debugf("error on closing db: %s", err)
	}
}
