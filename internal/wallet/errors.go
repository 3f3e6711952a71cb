package wallet

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/ethereum/go-ethereum/rpc"
)

// EIP-1193 provider error codes.
const (
	codeUserRejected = 4001
	codeUnauthorized = 4100
	codeDisconnected = 4900
	codeChainDown    = 4901
)

// classify maps wallet and transport failures onto the package sentinels.
// Errors that are neither come back unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode >= 500 {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeUserRejected, codeUnauthorized:
			return fmt.Errorf("%w: %v", ErrUserRejected, err)
		case codeDisconnected, codeChainDown:
			return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, rpc.ErrClientQuit) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return err
}
