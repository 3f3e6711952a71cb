package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Absent stands in when no wallet endpoint or key is configured.
type Absent struct{}

func (Absent) HasWallet() bool { return false }

func (Absent) AuthorizedAccounts(context.Context) ([]common.Address, error) {
	return nil, ErrNoWallet
}

func (Absent) RequestAccounts(context.Context) ([]common.Address, error) {
	return nil, ErrNoWallet
}

func (Absent) ChainID(context.Context) (string, error) { return "", ErrNoWallet }

func (Absent) Backend() Backend { return absentBackend{} }

func (Absent) SendTransaction(context.Context, Call) (common.Hash, error) {
	return common.Hash{}, ErrNoWallet
}

type absentBackend struct{}

func (absentBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, ErrNoWallet
}

func (absentBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, ErrNoWallet
}

func (absentBackend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, ErrNoWallet
}

func (absentBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ErrNoWallet
}

func (absentBackend) BlockNumber(context.Context) (uint64, error) { return 0, ErrNoWallet }
