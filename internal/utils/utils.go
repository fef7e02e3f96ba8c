package utils

import (
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

const (
	NetworkMainnet  = "mainnet"
	NetworkTestnet  = "testnet"
	NetworkTestnet4 = "testnet4"
	NetworkSignet   = "signet"
	NetworkRegtest  = "regtest"
)

func ToBitcoinNetwork(network string) chaincfg.Params {
	switch network {
	case NetworkTestnet, NetworkTestnet4:
		return chaincfg.TestNet3Params
	case NetworkSignet:
		return chaincfg.SigNetParams
	case NetworkRegtest:
		return chaincfg.RegressionNetParams
	case NetworkMainnet:
		fallthrough
	default:
		return chaincfg.MainNetParams
	}
}

func ParseBitcoinAddress(addr string, net chaincfg.Params) ([]byte, error) {
	btcAddr, err := btcutil.DecodeAddress(addr, &net)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(btcAddr)
}

type Cache[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewCache[T any]() *Cache[T] {
	return &Cache[T]{items: make(map[string]T)}
}

func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[key]
	return item, ok
}

func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}
