package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// MintTicket tracks a mint accepted by RequestMint.
type MintTicket struct {
	ID  uint64
	req *mintRequest
}

// Done is closed once the mint is confirmed or has failed.
func (t *MintTicket) Done() <-chan struct{} { return t.req.done }

// Wait blocks until the mint settles and returns its final status. The error
// is the mint's failure cause, or ctx's error if ctx ends first.
func (t *MintTicket) Wait(ctx context.Context) (MintStatus, error) {
	select {
	case <-t.req.done:
	case <-ctx.Done():
		return MintStatus{}, ctx.Err()
	}
	// The request is immutable once done is closed.
	return t.req.status(), t.req.err
}

// RequestMint submits one mint for the connected account. At most one mint
// is in flight per session; a second request while busy gets ErrBusy and
// never reaches the wallet.
func (c *Coordinator) RequestMint(ctx context.Context) (*MintTicket, error) {
	var (
		ticket *MintTicket
		from   common.Address
		refuse error
	)
	err := c.do(ctx, func() {
		switch {
		case c.status == StatusNoWallet || !c.wallet.HasWallet():
			refuse = ErrNoWallet
		case c.account == nil:
			refuse = ErrNotConnected
		case c.busy():
			refuse = ErrBusy
		default:
			c.mintSeq++
			req := &mintRequest{id: c.mintSeq, state: MintSubmitted, done: make(chan struct{})}
			c.mint = req
			from = *c.account
			ticket = &MintTicket{ID: req.id, req: req}
		}
	})
	if err != nil {
		return nil, err
	}
	if refuse != nil {
		return nil, refuse
	}

	c.log.Info("Going to pop wallet now to pay gas...", "mint", ticket.ID, "from", from)
	go c.runMint(ticket.req, from)
	return ticket, nil
}

func (c *Coordinator) busy() bool {
	return c.mint != nil && c.mint.state.InFlight()
}

// runMint drives a mint outside the loop. It is bound to the coordinator's
// lifetime, not the request that started it.
func (c *Coordinator) runMint(req *mintRequest, from common.Address) {
	tx, err := c.contract.Mint(c.ctx, from)
	if err != nil {
		c.post(func() { c.finishMint(req, err) })
		return
	}

	hash := tx.Hash()
	c.post(func() { c.markPending(req, hash) })
	c.log.Info("Mining...please wait.", "mint", req.id, "tx", hash)

	_, err = tx.WaitMined(c.ctx)
	if err != nil && c.ctx.Err() != nil {
		// teardown fails the request
		return
	}
	c.post(func() { c.finishMint(req, err) })
}

func (c *Coordinator) markPending(req *mintRequest, hash common.Hash) {
	if req.state != MintSubmitted {
		return
	}
	req.state = MintPending
	req.txHash = hash
	link := c.txURL(hash)
	c.notify(KindInfo, CodeMintSubmitted, "Transaction sent, waiting for it to be mined.", link)
}

// finishMint settles req. A request that already settled is left alone.
func (c *Coordinator) finishMint(req *mintRequest, err error) {
	if !req.state.InFlight() {
		return
	}
	defer close(req.done)

	if err != nil {
		req.state = MintFailed
		req.err = mintError(err)
		c.log.Warn("Mint failed", "mint", req.id, "err", err)
		switch {
		case errors.Is(err, ErrClosed):
		case errors.Is(err, ErrUserRejected):
			c.notify(KindWarning, CodeUserRejected, "Transaction was rejected in the wallet.", "")
		default:
			c.notify(KindError, CodeMintFailed, "Mint failed: "+err.Error(), c.txURL(req.txHash))
		}
		return
	}

	req.state = MintConfirmed
	link := c.txURL(req.txHash)
	c.log.Info("Mined", "mint", req.id, "tx", req.txHash)
	c.notify(KindInfo, CodeMintConfirmed, "Mined, see transaction: "+link, link)
}

func mintError(err error) error {
	switch {
	case errors.Is(err, ErrUserRejected),
		errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, ErrNoWallet),
		errors.Is(err, ErrClosed):
		return err
	}
	return fmt.Errorf("%w: %w", ErrMintFailed, err)
}
