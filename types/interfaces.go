package types

import (
	"context"
)

type Store interface {
	ConfigStore() ConfigStore
	VaultStore() VaultStore
	LockStore() LockStore
	FailedUtxoStore() FailedUtxoStore
	Clean(ctx context.Context)
	Close()
}

type ConfigStore interface {
	GetType() string
	GetDatadir() string
	AddData(ctx context.Context, data Config) error
	GetData(ctx context.Context) (*Config, error)
	CleanData(ctx context.Context) error
	Close()
}

type VaultStore interface {
	AddVault(ctx context.Context, vault Vault) error
	UpdateVault(ctx context.Context, vault Vault) error
	ReplaceVault(ctx context.Context, oldId string, vault Vault) error
	GetVault(ctx context.Context, id string) (*Vault, error)
	GetAllVaults(ctx context.Context) ([]Vault, error)
	Clean(ctx context.Context) error
	Close()
}

type LockStore interface {
	AddLock(ctx context.Context, lock UtxoLock) error
	GetLock(ctx context.Context, outpoint Outpoint) (*UtxoLock, error)
	GetAllLocks(ctx context.Context) ([]UtxoLock, error)
	RemoveLock(ctx context.Context, outpoint Outpoint) error
	Clean(ctx context.Context) error
	Close()
}

type FailedUtxoStore interface {
	UpsertFailure(ctx context.Context, outpoint Outpoint) (FailedUtxo, error)
	GetFailure(ctx context.Context, outpoint Outpoint) (*FailedUtxo, error)
	RemoveFailure(ctx context.Context, outpoint Outpoint) error
	Clean(ctx context.Context) error
	Close()
}
