package kvstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Arowolokehinde/CharmVault/types"
	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

const (
	failedUtxoStoreDir = "failed_utxos"
)

type failedUtxoStore struct {
	db *badgerhold.Store
}

func NewFailedUtxoStore(dir string, logger badger.Logger) (types.FailedUtxoStore, error) {
	if dir != "" {
		dir = filepath.Join(dir, failedUtxoStoreDir)
	}
	badgerDb, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open failed-utxo store: %s", err)
	}
	return &failedUtxoStore{db: badgerDb}, nil
}

func (s *failedUtxoStore) UpsertFailure(
	_ context.Context, outpoint types.Outpoint,
) (types.FailedUtxo, error) {
	record := types.FailedUtxo{Outpoint: outpoint}

	var existing types.FailedUtxo
	err := s.db.Get(outpoint.String(), &existing)
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return record, err
	}
	if err == nil {
		record = existing
	}

	record.FailureCount++
	record.LastFailedAt = time.Now()

	if err := s.db.Upsert(outpoint.String(), &record); err != nil {
		return record, err
	}
	return record, nil
}

func (s *failedUtxoStore) GetFailure(
	_ context.Context, outpoint types.Outpoint,
) (*types.FailedUtxo, error) {
	var record types.FailedUtxo
	if err := s.db.Get(outpoint.String(), &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (s *failedUtxoStore) RemoveFailure(_ context.Context, outpoint types.Outpoint) error {
	if err := s.db.Delete(outpoint.String(), &types.FailedUtxo{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (s *failedUtxoStore) Clean(_ context.Context) error {
	if err := s.db.Badger().DropAll(); err != nil {
		return fmt.Errorf("failed to clean the failed-utxo db: %s", err)
	}
	return nil
}

func (s *failedUtxoStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Debugf("error on closing db: %s", err)
	}
}
