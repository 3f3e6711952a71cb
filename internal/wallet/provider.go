// Package wallet adapts a user's wallet to the rest of the dapp: account
// discovery, account requests, the current network, and the plumbing the
// contract layer needs to read state and submit transactions.
package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrNoWallet means no compatible wallet is attached. Not retryable.
	ErrNoWallet = errors.New("no wallet detected")
	// ErrUserRejected means the user declined an account or signing prompt.
	ErrUserRejected = errors.New("user rejected the request")
	// ErrProviderUnavailable means the wallet stopped answering mid-session.
	ErrProviderUnavailable = errors.New("wallet provider unavailable")
)

// Provider is the wallet as seen by the session coordinator.
type Provider interface {
	HasWallet() bool
	// AuthorizedAccounts lists accounts the user already granted, without prompting.
	AuthorizedAccounts(ctx context.Context) ([]common.Address, error)
	// RequestAccounts prompts the user for account access.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// ChainID returns the current network as a 0x-prefixed hex quantity.
	ChainID(ctx context.Context) (string, error)
	Backend() Backend
	SendTransaction(ctx context.Context, call Call) (common.Hash, error)
}

// Backend is the read side of the chain, as reached through the wallet.
type Backend interface {
	ethereum.ContractCaller
	ethereum.LogFilterer
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Call is a state-changing contract call for the wallet to sign and send.
type Call struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
}

// HealthChecker is implemented by providers that can probe their transport.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
