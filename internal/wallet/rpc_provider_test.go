package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

type providerError struct {
	code int
	msg  string
}

func (e *providerError) Error() string  { return e.msg }
func (e *providerError) ErrorCode() int { return e.code }

// walletService answers the eth_ namespace the way a browser wallet bridge would.
type walletService struct {
	granted  []common.Address
	approve  []common.Address
	reject   bool
	chainID  string
	lastSend *sendTxArgs
}

func (s *walletService) Accounts() []common.Address {
	return s.granted
}

func (s *walletService) RequestAccounts() ([]common.Address, error) {
	if s.reject {
		return nil, &providerError{code: codeUserRejected, msg: "User rejected the request."}
	}
	s.granted = s.approve
	return s.granted, nil
}

func (s *walletService) ChainId() string {
	return s.chainID
}

func (s *walletService) SendTransaction(args sendTxArgs) (common.Hash, error) {
	if s.reject {
		return common.Hash{}, &providerError{code: codeUserRejected, msg: "User denied transaction signature."}
	}
	s.lastSend = &args
	return common.HexToHash("0xabc1"), nil
}

func newTestProvider(t *testing.T, svc *walletService) *RPCProvider {
	t.Helper()
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", svc))
	t.Cleanup(srv.Stop)

	cli := rpc.DialInProc(srv)
	t.Cleanup(cli.Close)
	return NewRPCProvider(cli)
}

func TestRPCProviderAccountFlow(t *testing.T) {
	ctx := context.Background()
	user := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	svc := &walletService{approve: []common.Address{user}, chainID: "0x5"}
	p := newTestProvider(t, svc)

	require.True(t, p.HasWallet())

	accounts, err := p.AuthorizedAccounts(ctx)
	require.NoError(t, err)
	require.Empty(t, accounts)

	accounts, err = p.RequestAccounts(ctx)
	require.NoError(t, err)
	require.Equal(t, []common.Address{user}, accounts)

	accounts, err = p.AuthorizedAccounts(ctx)
	require.NoError(t, err)
	require.Equal(t, []common.Address{user}, accounts)

	chainID, err := p.ChainID(ctx)
	require.NoError(t, err)
	require.Equal(t, "0x5", chainID)
}

func TestRPCProviderUserRejected(t *testing.T) {
	p := newTestProvider(t, &walletService{reject: true, chainID: "0x5"})

	_, err := p.RequestAccounts(context.Background())
	require.ErrorIs(t, err, ErrUserRejected)

	_, err = p.SendTransaction(context.Background(), Call{})
	require.ErrorIs(t, err, ErrUserRejected)
}

func TestRPCProviderSendTransaction(t *testing.T) {
	svc := &walletService{chainID: "0x5"}
	p := newTestProvider(t, svc)

	from := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	to := common.HexToAddress("0x58aC93C4292191A664CA39e01F9E79fdAc3CcB93")
	hash, err := p.SendTransaction(context.Background(), Call{
		From:  from,
		To:    to,
		Data:  []byte{0x12, 0x49, 0xc5, 0x8b},
		Value: big.NewInt(0),
	})
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0xabc1"), hash)

	require.NotNil(t, svc.lastSend)
	require.Equal(t, from, svc.lastSend.From)
	require.Equal(t, to, svc.lastSend.To)
	require.Equal(t, hexutil.Bytes{0x12, 0x49, 0xc5, 0x8b}, svc.lastSend.Data)
	require.Nil(t, svc.lastSend.Value)
}

func TestRPCProviderUnavailable(t *testing.T) {
	p, err := Dial(context.Background(), "http://127.0.0.1:1")
	require.NoError(t, err)
	defer p.Close()

	_, err = p.AuthorizedAccounts(context.Background())
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestClassify(t *testing.T) {
	require.NoError(t, classify(nil))
	require.ErrorIs(t, classify(&providerError{code: codeUnauthorized}), ErrUserRejected)
	require.ErrorIs(t, classify(&providerError{code: codeDisconnected}), ErrProviderUnavailable)
	require.ErrorIs(t, classify(rpc.HTTPError{StatusCode: 502}), ErrProviderUnavailable)

	other := errors.New("execution reverted")
	require.Equal(t, other, classify(other))
}

func TestAbsentProvider(t *testing.T) {
	var p Provider = Absent{}
	require.False(t, p.HasWallet())

	_, err := p.RequestAccounts(context.Background())
	require.ErrorIs(t, err, ErrNoWallet)

	_, err = p.Backend().BlockNumber(context.Background())
	require.ErrorIs(t, err, ErrNoWallet)
}
