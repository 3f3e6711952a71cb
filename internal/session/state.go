package session

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusNoWallet      Status = "no_wallet"
	StatusDisconnected  Status = "disconnected"
	StatusConnected     Status = "connected"
)

// MintState tracks a single mint attempt.
type MintState string

const (
	MintIdle      MintState = "idle"
	MintSubmitted MintState = "submitted"
	MintPending   MintState = "pending_confirmation"
	MintConfirmed MintState = "confirmed"
	MintFailed    MintState = "failed"
)

func (s MintState) InFlight() bool {
	return s == MintSubmitted || s == MintPending
}

// Snapshot is what the presentation layer renders.
type Snapshot struct {
	Status       Status     `json:"status"`
	Account      string     `json:"account,omitempty"`
	ChainID      string     `json:"chainId,omitempty"`
	WrongNetwork bool       `json:"wrongNetwork"`
	TotalMinted  string     `json:"totalMinted"`
	TotalSupply  string     `json:"totalSupply"`
	Busy         bool       `json:"busy"`
	Mint         MintStatus `json:"mint"`
}

type MintStatus struct {
	ID     uint64    `json:"id,omitempty"`
	State  MintState `json:"state"`
	TxHash string    `json:"txHash,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// NetworkCheck compares the wallet's chain with the one the contract lives on.
type NetworkCheck struct {
	ChainID  string
	Required string
	Match    bool
}

func (n NetworkCheck) Err() error {
	if n.Match {
		return nil
	}
	return fmt.Errorf("%w: chain %s, expected %s", ErrWrongNetwork, n.ChainID, n.Required)
}

type mintRequest struct {
	id     uint64
	state  MintState
	txHash common.Hash
	err    error
	done   chan struct{}
}

func (r *mintRequest) status() MintStatus {
	st := MintStatus{ID: r.id, State: r.state}
	if r.txHash != (common.Hash{}) {
		st.TxHash = r.txHash.Hex()
	}
	if r.err != nil {
		st.Error = r.err.Error()
	}
	return st
}

// sameChain compares chain ids numerically so "0x05" and "0x5" agree.
func sameChain(a, b string) bool {
	x, okA := parseChainID(a)
	y, okB := parseChainID(b)
	if !okA || !okB {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return x.Cmp(y) == 0
}

func parseChainID(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if len(s) > 2 && strings.EqualFold(s[:2], "0x") {
		return new(big.Int).SetString(s[2:], 16)
	}
	return new(big.Int).SetString(s, 10)
}
