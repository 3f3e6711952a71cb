package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPCProvider talks to an EIP-1193 style wallet bridge over JSON-RPC.
// Signing happens on the wallet side through eth_sendTransaction.
type RPCProvider struct {
	rpc *rpc.Client
	eth *ethclient.Client
}

// Dial connects to the wallet endpoint. HTTP endpoints connect lazily.
func Dial(ctx context.Context, url string) (*RPCProvider, error) {
	if url == "" {
		return nil, fmt.Errorf("wallet rpc url is required")
	}
	cli, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial wallet: %w", classify(err))
	}
	return NewRPCProvider(cli), nil
}

func NewRPCProvider(cli *rpc.Client) *RPCProvider {
	return &RPCProvider{rpc: cli, eth: ethclient.NewClient(cli)}
}

func (p *RPCProvider) HasWallet() bool {
	return p != nil && p.rpc != nil
}

func (p *RPCProvider) AuthorizedAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, classify(err)
	}
	return accounts, nil
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.rpc.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, classify(err)
	}
	return accounts, nil
}

func (p *RPCProvider) ChainID(ctx context.Context) (string, error) {
	var id hexutil.Big
	if err := p.rpc.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return "", classify(err)
	}
	return id.String(), nil
}

func (p *RPCProvider) Backend() Backend {
	return classifyingBackend{p.eth}
}

type sendTxArgs struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *hexutil.Big   `json:"value,omitempty"`
}

func (p *RPCProvider) SendTransaction(ctx context.Context, call Call) (common.Hash, error) {
	args := sendTxArgs{From: call.From, To: call.To, Data: call.Data}
	if call.Value != nil && call.Value.Sign() > 0 {
		args.Value = (*hexutil.Big)(call.Value)
	}
	var hash common.Hash
	if err := p.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, classify(err)
	}
	return hash, nil
}

func (p *RPCProvider) Ping(ctx context.Context) error {
	_, err := p.eth.BlockNumber(ctx)
	return classify(err)
}

func (p *RPCProvider) Close() {
	p.rpc.Close()
}

// classifyingBackend runs every read through classify so callers can
// recognise an unavailable wallet with errors.Is.
type classifyingBackend struct {
	eth *ethclient.Client
}

func (b classifyingBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	out, err := b.eth.CallContract(ctx, msg, block)
	return out, classify(err)
}

func (b classifyingBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := b.eth.FilterLogs(ctx, q)
	return logs, classify(err)
}

func (b classifyingBackend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	// Left unclassified: callers look for rpc.ErrNotificationsUnsupported.
	return b.eth.SubscribeFilterLogs(ctx, q, ch)
}

func (b classifyingBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := b.eth.TransactionReceipt(ctx, hash)
	return receipt, classify(err)
}

func (b classifyingBackend) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := b.eth.BlockNumber(ctx)
	return n, classify(err)
}
