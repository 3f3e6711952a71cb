package wallet

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// Hardhat's first development key.
const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestParsePrivateKey(t *testing.T) {
	pk, err := parsePrivateKey(devKey)
	require.NoError(t, err)
	require.Equal(t,
		common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		crypto.PubkeyToAddress(pk.PublicKey),
	)

	_, err = parsePrivateKey("0xnothex")
	require.Error(t, err)
}

func TestKeyedProviderConfirm(t *testing.T) {
	pk, err := parsePrivateKey(devKey)
	require.NoError(t, err)

	var prompts []Prompt
	allow := false
	p := &KeyedProvider{
		key:     pk,
		address: crypto.PubkeyToAddress(pk.PublicKey),
		confirm: func(_ context.Context, pr Prompt) bool {
			prompts = append(prompts, pr)
			return allow
		},
	}
	ctx := context.Background()

	accounts, err := p.AuthorizedAccounts(ctx)
	require.NoError(t, err)
	require.Empty(t, accounts)

	_, err = p.RequestAccounts(ctx)
	require.ErrorIs(t, err, ErrUserRejected)

	allow = true
	accounts, err = p.RequestAccounts(ctx)
	require.NoError(t, err)
	require.Equal(t, []common.Address{p.address}, accounts)

	accounts, err = p.AuthorizedAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	require.Len(t, prompts, 2)
	require.Equal(t, PromptAccounts, prompts[1].Kind)
}

func TestKeyedProviderRejectsForeignSender(t *testing.T) {
	pk, err := parsePrivateKey(devKey)
	require.NoError(t, err)
	p := &KeyedProvider{key: pk, address: crypto.PubkeyToAddress(pk.PublicKey)}

	_, err = p.SendTransaction(context.Background(), Call{From: common.HexToAddress("0x01")})
	require.ErrorIs(t, err, ErrUserRejected)
}
