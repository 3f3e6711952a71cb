package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// PromptKind says what a KeyedProvider is asking the operator to approve.
type PromptKind string

const (
	PromptAccounts    PromptKind = "accounts"
	PromptTransaction PromptKind = "transaction"
)

// Prompt is passed to Confirm before access is granted or a transaction signed.
type Prompt struct {
	Kind    PromptKind
	Account common.Address
	Call    *Call
}

// KeyedProvider is a headless wallet holding one private key. Confirm plays
// the part of the wallet popup; a nil Confirm approves everything.
type KeyedProvider struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	confirm func(ctx context.Context, p Prompt) bool

	mu         sync.Mutex
	authorized bool
}

type KeyedProviderConfig struct {
	RPCURL        string
	PrivateKeyHex string
	// PreAuthorized makes the account visible to silent discovery, like a
	// site the wallet already trusts.
	PreAuthorized bool
	Confirm       func(ctx context.Context, p Prompt) bool
}

func NewKeyedProvider(ctx context.Context, cfg KeyedProviderConfig) (*KeyedProvider, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.PrivateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}

	pk, err := parsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", classify(err))
	}

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("fetch chain id: %w", classify(err))
	}

	return &KeyedProvider{
		client:     cli,
		key:        pk,
		address:    crypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
		confirm:    cfg.Confirm,
		authorized: cfg.PreAuthorized,
	}, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (p *KeyedProvider) HasWallet() bool { return p != nil && p.key != nil }

func (p *KeyedProvider) Address() common.Address { return p.address }

func (p *KeyedProvider) AuthorizedAccounts(context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.authorized {
		return []common.Address{}, nil
	}
	return []common.Address{p.address}, nil
}

func (p *KeyedProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if !p.approve(ctx, Prompt{Kind: PromptAccounts, Account: p.address}) {
		return nil, ErrUserRejected
	}
	p.mu.Lock()
	p.authorized = true
	p.mu.Unlock()
	return []common.Address{p.address}, nil
}

func (p *KeyedProvider) ChainID(context.Context) (string, error) {
	return hexutil.EncodeBig(p.chainID), nil
}

func (p *KeyedProvider) Backend() Backend {
	return classifyingBackend{p.client}
}

func (p *KeyedProvider) SendTransaction(ctx context.Context, call Call) (common.Hash, error) {
	if call.From != p.address {
		return common.Hash{}, fmt.Errorf("%w: account %s is not held by this wallet", ErrUserRejected, call.From.Hex())
	}
	if !p.approve(ctx, Prompt{Kind: PromptTransaction, Account: p.address, Call: &call}) {
		return common.Hash{}, ErrUserRejected
	}

	opts, err := bind.NewKeyedTransactorWithChainID(p.key, p.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx
	opts.Value = call.Value
	opts.GasLimit = 0 // let node estimate

	bound := bind.NewBoundContract(call.To, abi.ABI{}, p.client, p.client, p.client)
	tx, err := bound.RawTransact(opts, call.Data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", classify(err))
	}
	return tx.Hash(), nil
}

func (p *KeyedProvider) Ping(ctx context.Context) error {
	_, err := p.client.BlockNumber(ctx)
	return classify(err)
}

func (p *KeyedProvider) Close() {
	p.client.Close()
}

func (p *KeyedProvider) approve(ctx context.Context, prompt Prompt) bool {
	if p.confirm == nil {
		return true
	}
	return p.confirm(ctx, prompt)
}
