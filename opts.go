package vaultsdk

import (
	log "github.com/sirupsen/logrus"
)

type ClientOption func(client *vaultClient)

// WithVerbose lowers the log level to debug for the whole process.
func WithVerbose() ClientOption {
	return func(_ *vaultClient) {
		log.SetLevel(log.DebugLevel)
	}
}

// WithProverBinaryPath overrides the contract binary location persisted in
// the config store, useful when the binary moved after Init.
func WithProverBinaryPath(path string) ClientOption {
	return func(client *vaultClient) {
		client.binaryPathOverride = path
	}
}
