// Package session coordinates one user's wallet session: connecting the
// wallet, validating its network, minting, and keeping the mint counters in
// step with the chain.
//
// All coordinator state is owned by a single loop goroutine. Wallet and
// contract calls run elsewhere and post their results back to the loop, so
// a Minted event is applied promptly even while a prompt or a transaction is
// pending.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"mintdapp/internal/config"
	"mintdapp/internal/nft"
	"mintdapp/internal/wallet"
)

// Contract is the collection contract as the coordinator uses it.
type Contract interface {
	Mint(ctx context.Context, from common.Address) (*nft.Transaction, error)
	TotalMinted(ctx context.Context) (uint64, error)
	SubscribeMinted(ctx context.Context, handler func(nft.MintedEvent)) (event.Subscription, error)
}

type Config struct {
	Contract        common.Address
	RequiredChainID string
	MaxSupply       uint64
	Links           config.LinksConfig
}

type Coordinator struct {
	cfg      Config
	wallet   wallet.Provider
	contract Contract
	log      log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan func()
	done   chan struct{}

	feed   event.FeedOf[Notification]
	outbox chan Notification

	// Everything below belongs to the loop goroutine.
	status       Status
	initialized  bool
	connecting   bool
	account      *common.Address
	chainID      string
	wrongNetwork bool
	minted       uint64
	mint         *mintRequest
	mintSeq      uint64
	sub          event.Subscription
	arming       bool
}

// New starts a coordinator. The wallet is injected here and nowhere else.
func New(cfg Config, provider wallet.Provider, contract Contract) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:      cfg,
		wallet:   provider,
		contract: contract,
		log:      log.New("module", "session"),
		ctx:      ctx,
		cancel:   cancel,
		inbox:    make(chan func()),
		done:     make(chan struct{}),
		outbox:   make(chan Notification, notifyBuffer),
		status:   StatusUninitialized,
	}
	go c.loop()
	go c.pumpNotifications()
	return c
}

func (c *Coordinator) loop() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.ctx.Done():
			c.teardown()
			return
		}
	}
}

func (c *Coordinator) teardown() {
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
	if c.mint != nil {
		c.finishMint(c.mint, ErrClosed)
	}
	close(c.outbox)
}

// post hands fn to the loop without waiting for it to run.
func (c *Coordinator) post(fn func()) bool {
	select {
	case c.inbox <- fn:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// do runs fn on the loop and waits for it. Once fn is handed over it always
// runs to completion, even if ctx is cancelled meanwhile.
func (c *Coordinator) do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	select {
	case c.inbox <- func() { fn(); close(ran) }:
	case <-c.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-c.done:
		select {
		case <-ran:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Close stops the coordinator, drops the Minted subscription and fails any
// mint still in flight with ErrClosed.
func (c *Coordinator) Close() {
	c.cancel()
	<-c.done
}

// Initialize runs the startup routine: silent account discovery and a
// best-effort supply read. Only the first call does anything.
func (c *Coordinator) Initialize(ctx context.Context) error {
	var first, hasWallet bool
	err := c.do(ctx, func() {
		if c.initialized {
			return
		}
		c.initialized, first = true, true
		hasWallet = c.wallet.HasWallet()
		if !hasWallet {
			c.status = StatusNoWallet
			return
		}
		if c.status == StatusUninitialized {
			c.status = StatusDisconnected
		}
	})
	if err != nil || !first {
		return err
	}
	if !hasWallet {
		c.log.Info("No wallet detected, make sure one is installed")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.RefreshSupply(ctx); err != nil {
			c.log.Warn("Initial supply read failed", "err", err)
		}
	}()
	if hasWallet {
		c.discoverAccount(ctx)
	}
	wg.Wait()
	return nil
}

func (c *Coordinator) discoverAccount(ctx context.Context) {
	accounts, err := c.wallet.AuthorizedAccounts(ctx)
	if err != nil {
		c.log.Warn("Account discovery failed", "err", err)
		return
	}
	if len(accounts) == 0 {
		c.log.Info("No authorized account found")
		return
	}

	var adopted bool
	if err := c.do(context.WithoutCancel(ctx), func() {
		if c.account != nil {
			return
		}
		adopted = true
		c.setAccount(accounts[0])
	}); err != nil || !adopted {
		return
	}
	c.log.Info("Found an authorized account", "account", accounts[0])
	c.afterConnect(ctx)
}

// RequestConnect prompts the wallet for account access. A wrong network is
// reported as a warning notification and does not fail the call.
func (c *Coordinator) RequestConnect(ctx context.Context) error {
	var refused error
	err := c.do(ctx, func() {
		switch {
		case !c.wallet.HasWallet():
			c.status = StatusNoWallet
			refused = ErrNoWallet
			c.notify(KindError, CodeNoWallet, "No wallet detected!", "")
		case c.connecting:
			refused = ErrConnectInProgress
		default:
			c.connecting = true
		}
	})
	if err != nil {
		return err
	}
	if refused != nil {
		return refused
	}

	accounts, reqErr := c.wallet.RequestAccounts(ctx)
	if reqErr == nil && len(accounts) == 0 {
		reqErr = fmt.Errorf("%w: wallet returned no accounts", ErrUserRejected)
	}
	if err := c.do(context.WithoutCancel(ctx), func() {
		c.connecting = false
		if reqErr != nil {
			c.connectFailed(reqErr)
			return
		}
		c.setAccount(accounts[0])
	}); err != nil {
		return err
	}
	if reqErr != nil {
		return fmt.Errorf("request accounts: %w", reqErr)
	}

	c.log.Info("Connected", "account", accounts[0])
	c.afterConnect(ctx)
	return nil
}

func (c *Coordinator) setAccount(account common.Address) {
	c.account = &account
	c.status = StatusConnected
}

func (c *Coordinator) connectFailed(err error) {
	c.log.Warn("Wallet connection failed", "err", err)
	switch {
	case errors.Is(err, ErrUserRejected):
		c.notify(KindWarning, CodeUserRejected, "Wallet connection was rejected.", "")
	case errors.Is(err, ErrProviderUnavailable):
		c.notify(KindError, CodeProviderUnavailable, "The wallet is not responding.", "")
	default:
		c.notify(KindError, CodeConnectFailed, "Could not connect the wallet: "+err.Error(), "")
	}
}

// afterConnect validates the network and arms the Minted subscription.
func (c *Coordinator) afterConnect(ctx context.Context) {
	check, err := c.CheckNetwork(ctx)
	if err != nil {
		c.log.Warn("Network check failed", "err", err)
	} else {
		c.log.Info("Connected to chain", "chainId", check.ChainID, "required", check.Required)
		_ = c.do(context.WithoutCancel(ctx), func() {
			c.chainID = check.ChainID
			c.wrongNetwork = !check.Match
			if err := check.Err(); err != nil {
				c.notify(KindWarning, CodeWrongNetwork, err.Error(), "")
			}
		})
	}
	c.ensureSubscription(ctx)
}

// CheckNetwork reads the wallet's chain and compares it with the required one.
func (c *Coordinator) CheckNetwork(ctx context.Context) (NetworkCheck, error) {
	chainID, err := c.wallet.ChainID(ctx)
	if err != nil {
		return NetworkCheck{}, fmt.Errorf("read chain id: %w", err)
	}
	return NetworkCheck{
		ChainID:  chainID,
		Required: c.cfg.RequiredChainID,
		Match:    sameChain(chainID, c.cfg.RequiredChainID),
	}, nil
}

// ensureSubscription arms the Minted subscription unless one is already live
// or being set up.
func (c *Coordinator) ensureSubscription(ctx context.Context) {
	var arm bool
	if err := c.do(ctx, func() {
		if c.sub == nil && !c.arming {
			c.arming, arm = true, true
		}
	}); err != nil || !arm {
		return
	}

	sub, err := c.contract.SubscribeMinted(c.ctx, c.deliverMinted)
	applied := c.do(context.WithoutCancel(ctx), func() {
		c.arming = false
		if err != nil {
			c.log.Warn("Could not watch Minted events", "err", err)
			return
		}
		c.sub = sub
		c.log.Info("Successfully set up event listener")
		go c.watchSubscription(sub)
	})
	if applied != nil && sub != nil {
		sub.Unsubscribe()
	}
}

func (c *Coordinator) watchSubscription(sub event.Subscription) {
	err, ok := <-sub.Err()
	if !ok || err == nil {
		return
	}
	c.post(func() {
		if c.sub != sub {
			return
		}
		c.sub = nil
		c.log.Warn("Minted event feed dropped", "err", err)
		c.notify(KindWarning, CodeProviderUnavailable, "Lost the live mint feed, reconnect the wallet to resume it.", "")
	})
}

func (c *Coordinator) deliverMinted(ev nft.MintedEvent) {
	c.post(func() { c.onMinted(ev) })
}

// onMinted applies a Minted event from any minter. The counter takes the
// latest event's tokenId+1 with no ordering against supply reads or other
// events.
func (c *Coordinator) onMinted(ev nft.MintedEvent) {
	if ev.TokenID == nil || !ev.TokenID.IsUint64() || ev.TokenID.Uint64() == math.MaxUint64 {
		c.log.Warn("Ignoring Minted event with out of range token id", "tokenId", ev.TokenID, "tx", ev.TxHash)
		return
	}
	id := ev.TokenID.Uint64()
	c.minted = id + 1
	c.log.Info("Minted", "from", ev.Minter, "tokenId", id, "tx", ev.TxHash)

	link := c.tokenURL(id)
	if c.account != nil && *c.account == ev.Minter {
		c.notify(KindInfo, CodeMinted,
			"Hey there! We've minted your NFT and sent it to your wallet. Here's the link: "+link, link)
		return
	}
	c.notify(KindInfo, CodeMinted, fmt.Sprintf("Token #%d was just minted by %s.", id, ev.Minter.Hex()), link)
}

// RefreshSupply re-reads the minted count. On failure the counter is left alone.
func (c *Coordinator) RefreshSupply(ctx context.Context) error {
	n, err := c.contract.TotalMinted(ctx)
	if err != nil {
		return fmt.Errorf("read total minted: %w", err)
	}
	return c.do(context.WithoutCancel(ctx), func() { c.minted = n })
}

// State returns the current snapshot.
func (c *Coordinator) State(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.do(ctx, func() { snap = c.snapshot() })
	return snap, err
}

func (c *Coordinator) snapshot() Snapshot {
	s := Snapshot{
		Status:       c.status,
		ChainID:      c.chainID,
		WrongNetwork: c.wrongNetwork,
		TotalMinted:  strconv.FormatUint(c.minted, 10),
		TotalSupply:  strconv.FormatUint(c.cfg.MaxSupply, 10),
		Busy:         c.busy(),
		Mint:         MintStatus{State: MintIdle},
	}
	if c.account != nil {
		s.Account = c.account.Hex()
	}
	if c.mint != nil {
		s.Mint = c.mint.status()
	}
	return s
}

// SubscribeNotifications delivers user-facing alerts to ch. Slow consumers
// cause notifications to be dropped, never the coordinator to stall.
func (c *Coordinator) SubscribeNotifications(ch chan<- Notification) event.Subscription {
	return c.feed.Subscribe(ch)
}

func (c *Coordinator) tokenURL(tokenID uint64) string {
	return c.cfg.Links.TokenURL(c.cfg.Contract.Hex(), tokenID)
}

func (c *Coordinator) txURL(hash common.Hash) string {
	if hash == (common.Hash{}) {
		return ""
	}
	return c.cfg.Links.TxURL(hash.Hex())
}
