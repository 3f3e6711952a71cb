// Package nft is a typed façade over the deployed collection contract.
package nft

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"mintdapp/internal/contracts"
	"mintdapp/internal/wallet"
)

const (
	defaultReceiptPoll = 2 * time.Second
	defaultLogPoll     = 4 * time.Second
)

// ErrEmptyResult usually means there is no contract at the address on this network.
var ErrEmptyResult = errors.New("contract call returned no data")

// Sender submits state-changing calls through the user's wallet.
type Sender interface {
	SendTransaction(ctx context.Context, call wallet.Call) (common.Hash, error)
}

// MintedEvent is one decoded Minted log.
type MintedEvent struct {
	Minter      common.Address
	TokenID     *big.Int
	TxHash      common.Hash
	BlockNumber uint64
}

type Proxy struct {
	address     common.Address
	abi         abi.ABI
	bound       *bind.BoundContract
	backend     wallet.Backend
	sender      Sender
	receiptPoll time.Duration
	logPoll     time.Duration
	log         log.Logger
}

type Option func(*Proxy)

func WithReceiptPollInterval(d time.Duration) Option {
	return func(p *Proxy) {
		if d > 0 {
			p.receiptPoll = d
		}
	}
}

// WithLogPollInterval sets how often Minted logs are polled when the
// transport cannot push them.
func WithLogPollInterval(d time.Duration) Option {
	return func(p *Proxy) {
		if d > 0 {
			p.logPoll = d
		}
	}
}

func New(address common.Address, backend wallet.Backend, sender Sender, opts ...Option) (*Proxy, error) {
	if backend == nil || sender == nil {
		return nil, fmt.Errorf("backend and sender are required")
	}
	parsed, err := contracts.ParseMintableNFT()
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	p := &Proxy{
		address:     address,
		abi:         parsed,
		bound:       bind.NewBoundContract(address, parsed, nil, nil, backend),
		backend:     backend,
		sender:      sender,
		receiptPoll: defaultReceiptPoll,
		logPoll:     defaultLogPoll,
		log:         log.New("module", "nft", "contract", address),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Proxy) Address() common.Address { return p.address }

// Mint asks the wallet to send mint() from the given account.
func (p *Proxy) Mint(ctx context.Context, from common.Address) (*Transaction, error) {
	data, err := p.abi.Pack(contracts.MethodMint)
	if err != nil {
		return nil, fmt.Errorf("pack mint: %w", err)
	}
	hash, err := p.sender.SendTransaction(ctx, wallet.Call{From: from, To: p.address, Data: data})
	if err != nil {
		return nil, fmt.Errorf("mint tx: %w", err)
	}
	p.log.Debug("Mint transaction sent", "from", from, "tx", hash)
	return NewTransaction(hash, p.backend, p.receiptPoll), nil
}

// RawTotalSupply returns totalSupply() in its encoded quantity form.
func (p *Proxy) RawTotalSupply(ctx context.Context) (string, error) {
	data, err := p.abi.Pack(contracts.MethodTotalSupply)
	if err != nil {
		return "", fmt.Errorf("pack totalSupply: %w", err)
	}
	out, err := p.backend.CallContract(ctx, ethereum.CallMsg{To: &p.address, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("call totalSupply: %w", err)
	}
	if len(out) == 0 {
		return "", ErrEmptyResult
	}
	return hexutil.Encode(out), nil
}

// TotalMinted is the number of tokens minted so far.
func (p *Proxy) TotalMinted(ctx context.Context) (uint64, error) {
	raw, err := p.RawTotalSupply(ctx)
	if err != nil {
		return 0, err
	}
	return DecodeQuantity(raw)
}
