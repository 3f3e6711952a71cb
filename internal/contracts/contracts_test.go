package contracts

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestParseMintableNFT(t *testing.T) {
	parsed, err := ParseMintableNFT()
	require.NoError(t, err)

	require.Contains(t, parsed.Methods, MethodMint)
	require.Contains(t, parsed.Methods, MethodTotalSupply)
	require.True(t, parsed.Methods[MethodTotalSupply].IsConstant())

	ev, ok := parsed.Events[EventMinted]
	require.True(t, ok)
	require.Equal(t, crypto.Keccak256Hash([]byte("Minted(address,uint256)")), ev.ID)
	require.True(t, ev.Inputs[0].Indexed)
	require.False(t, ev.Inputs[1].Indexed)
}
