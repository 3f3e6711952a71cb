package nft

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"

	"mintdapp/internal/contracts"
)

// SubscribeMinted calls handler for every Minted log emitted by the
// contract from now on, by any minter. Push subscriptions are used when the
// transport supports them, block-range polling otherwise. Delivery order is
// whatever the node reports.
func (p *Proxy) SubscribeMinted(ctx context.Context, handler func(MintedEvent)) (event.Subscription, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{p.address},
		Topics:    [][]common.Hash{{p.abi.Events[contracts.EventMinted].ID}},
	}

	logs := make(chan types.Log, 16)
	sub, err := p.backend.SubscribeFilterLogs(ctx, query, logs)
	if err == nil {
		p.log.Debug("Watching Minted logs", "mode", "push")
		return event.NewSubscription(func(quit <-chan struct{}) error {
			defer sub.Unsubscribe()
			for {
				select {
				case lg := <-logs:
					p.dispatch(lg, handler)
				case err := <-sub.Err():
					return err
				case <-quit:
					return nil
				}
			}
		}), nil
	}
	if !errors.Is(err, rpc.ErrNotificationsUnsupported) {
		return nil, fmt.Errorf("subscribe minted: %w", err)
	}

	head, err := p.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribe minted: %w", err)
	}
	p.log.Debug("Watching Minted logs", "mode", "poll", "from", head+1, "interval", p.logPoll)
	return event.NewSubscription(func(quit <-chan struct{}) error {
		return p.pollMinted(ctx, quit, query, head+1, handler)
	}), nil
}

func (p *Proxy) pollMinted(ctx context.Context, quit <-chan struct{}, query ethereum.FilterQuery, from uint64, handler func(MintedEvent)) error {
	ticker := time.NewTicker(p.logPoll)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		head, err := p.backend.BlockNumber(ctx)
		if err != nil {
			p.log.Debug("Block number poll failed", "err", err)
			continue
		}
		if head < from {
			continue
		}

		q := query
		q.FromBlock = new(big.Int).SetUint64(from)
		q.ToBlock = new(big.Int).SetUint64(head)
		logs, err := p.backend.FilterLogs(ctx, q)
		if err != nil {
			p.log.Warn("Minted log poll failed", "from", from, "to", head, "err", err)
			continue
		}
		for _, lg := range logs {
			p.dispatch(lg, handler)
		}
		from = head + 1
	}
}

func (p *Proxy) dispatch(lg types.Log, handler func(MintedEvent)) {
	if lg.Removed {
		return
	}
	ev, err := p.parseMinted(lg)
	if err != nil {
		p.log.Warn("Dropping undecodable Minted log", "tx", lg.TxHash, "err", err)
		return
	}
	handler(ev)
}

func (p *Proxy) parseMinted(lg types.Log) (MintedEvent, error) {
	var out struct {
		From    common.Address
		TokenId *big.Int
	}
	if err := p.bound.UnpackLog(&out, contracts.EventMinted, lg); err != nil {
		return MintedEvent{}, err
	}
	if out.TokenId == nil {
		return MintedEvent{}, fmt.Errorf("missing token id")
	}
	return MintedEvent{
		Minter:      out.From,
		TokenID:     out.TokenId,
		TxHash:      lg.TxHash,
		BlockNumber: lg.BlockNumber,
	}, nil
}
