package nft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReverted is returned by WaitMined when the transaction was mined but failed.
var ErrReverted = errors.New("transaction reverted")

type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Transaction is a submitted, not necessarily mined, transaction.
type Transaction struct {
	hash     common.Hash
	receipts ReceiptReader
	poll     time.Duration
}

func NewTransaction(hash common.Hash, receipts ReceiptReader, poll time.Duration) *Transaction {
	if poll <= 0 {
		poll = defaultReceiptPoll
	}
	return &Transaction{hash: hash, receipts: receipts, poll: poll}
}

func (t *Transaction) Hash() common.Hash { return t.hash }

// WaitMined polls until the transaction is mined or ctx is cancelled.
func (t *Transaction) WaitMined(ctx context.Context) (*types.Receipt, error) {
	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	for {
		receipt, err := t.receipts.TransactionReceipt(ctx, t.hash)
		if receipt != nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, fmt.Errorf("%w: %s", ErrReverted, t.hash.Hex())
			}
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("wait for receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
