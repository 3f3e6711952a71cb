package session

import (
	"errors"

	"mintdapp/internal/wallet"
)

var (
	ErrNoWallet            = wallet.ErrNoWallet
	ErrUserRejected        = wallet.ErrUserRejected
	ErrProviderUnavailable = wallet.ErrProviderUnavailable

	// ErrWrongNetwork is reported as a warning only; it never blocks a connection.
	ErrWrongNetwork = errors.New("wallet is on the wrong network")
	ErrMintFailed   = errors.New("mint failed")

	ErrBusy              = errors.New("a mint is already in progress")
	ErrNotConnected      = errors.New("wallet not connected")
	ErrConnectInProgress = errors.New("wallet connection already in progress")
	ErrClosed            = errors.New("session closed")
)
