package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	InMemoryStore = "inmemory"
	KVStore       = "kv"
)

const (
	// LockTTL is how long a funding UTXO stays reserved for an in-flight
	// operation before it becomes selectable again.
	LockTTL = 15 * time.Minute

	// FailedUtxoCooldown is the window during which a UTXO rejected by the
	// prover is skipped by the funding selector.
	FailedUtxoCooldown = 5 * time.Minute

	// FeeReserveSats is deducted from the carried-forward value on every
	// state transition to pay for the commit/spell pair.
	FeeReserveSats = uint64(2000)
)

type Config struct {
	Network       string
	ExplorerURL   string
	ProverURL     string
	NodeRpcURL    string
	NodeRpcUser   string
	NodeRpcPass   string
	AppVk         string
	BinaryPath    string
	WalletType    string
	StoreType     string
	PollInterval  time.Duration
	WithBlockFeed bool
}

type Outpoint struct {
	Txid string
	VOut uint32
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.Txid, o.VOut)
}

func ParseOutpoint(s string) (Outpoint, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Outpoint{}, fmt.Errorf("invalid outpoint %s", s)
	}
	vout, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Outpoint{}, fmt.Errorf("invalid outpoint %s: %s", s, err)
	}
	return Outpoint{Txid: parts[0], VOut: uint32(vout)}, nil
}

type Utxo struct {
	Outpoint
	Amount    uint64
	Script    string
	Address   string
	Confirmed bool
}

type Beneficiary struct {
	Address    string `json:"address"`
	Percentage uint8  `json:"percentage"`
}

// ValidateBeneficiaries enforces the contract-side rules on a beneficiary
// set before any spell that creates or replaces it is built: at least one
// entry, no empty addresses, percentages summing to exactly 100.
func ValidateBeneficiaries(beneficiaries []Beneficiary) error {
	if len(beneficiaries) == 0 {
		return fmt.Errorf("at least one beneficiary is required")
	}

	total := uint32(0)
	for i, b := range beneficiaries {
		if len(b.Address) == 0 {
			return fmt.Errorf("beneficiary %d has an empty address", i)
		}
		total += uint32(b.Percentage)
	}

	if total != 100 {
		return fmt.Errorf("beneficiary percentages must sum to 100, got %d", total)
	}
	return nil
}

type ContractStatus string

const (
	StatusActive ContractStatus = "Active"
	// StatusTriggered is reserved by the on-chain contract but no client
	// operation produces it.
	StatusTriggered   ContractStatus = "Triggered"
	StatusDistributed ContractStatus = "Distributed"
)

// InheritanceContract is the charm state carried on the vault output. The
// client never mutates it on chain, it only computes the next value and
// submits it through a spell.
type InheritanceContract struct {
	OwnerPubKey        string         `json:"owner_pubkey"`
	LastCheckinBlock   uint64         `json:"last_checkin_block"`
	TriggerDelayBlocks uint64         `json:"trigger_delay_blocks"`
	Beneficiaries      []Beneficiary  `json:"beneficiaries"`
	Status             ContractStatus `json:"status"`
}

// UnlockHeight returns the deadline block. Distribution requires the chain
// tip to be strictly greater than it.
func (c InheritanceContract) UnlockHeight() uint64 {
	return c.LastCheckinBlock + c.TriggerDelayBlocks
}

type LockKind string

const (
	LockKindCreate     LockKind = "create"
	LockKindCheckin    LockKind = "checkin"
	LockKindUpdate     LockKind = "update"
	LockKindDistribute LockKind = "distribute"
)

type UtxoLock struct {
	Outpoint
	Kind      LockKind
	LockedAt  time.Time
	ExpiresAt time.Time
}

func (l UtxoLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

type FailedUtxo struct {
	Outpoint
	FailureCount int
	LastFailedAt time.Time
}

func (f FailedUtxo) CoolingDown(now time.Time) bool {
	return now.Sub(f.LastFailedAt) < FailedUtxoCooldown
}

type VaultTx struct {
	Txid      string
	Kind      string
	CreatedAt time.Time
}

// Vault is the client-side record of an inheritance contract, created on a
// successful create broadcast and mutated on every later operation. It is
// never deleted; distribution moves it to the terminal Distributed status.
type Vault struct {
	Id                 string
	AppId              string
	Status             ContractStatus
	LockedSats         uint64
	LastCheckinBlock   uint64
	UnlockBlock        uint64
	CreatedAt          time.Time
	CreatedBlock       uint64
	Beneficiaries      []Beneficiary
	OwnerPubKey        string
	TriggerDelayBlocks uint64
	History            []VaultTx
}

// Contract rebuilds the on-chain charm state from the cached record.
func (v Vault) Contract() InheritanceContract {
	return InheritanceContract{
		OwnerPubKey:        v.OwnerPubKey,
		LastCheckinBlock:   v.LastCheckinBlock,
		TriggerDelayBlocks: v.TriggerDelayBlocks,
		Beneficiaries:      v.Beneficiaries,
		Status:             v.Status,
	}
}

func (v Vault) String() string {
	// nolint
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func (v Vault) Outpoint() (Outpoint, error) {
	return ParseOutpoint(v.Id)
}

type BlockEvent struct {
	Height uint64
	Err    error
}
