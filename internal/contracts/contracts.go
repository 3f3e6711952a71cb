// Package contracts holds the ABI of the collection contract the dapp talks to.
package contracts

import (
	_ "embed"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed MintableNFT.abi.json
var MintableNFTABI []byte

const (
	MethodMint        = "mint"
	MethodTotalSupply = "totalSupply"
	EventMinted       = "Minted"
)

// ParseMintableNFT parses the embedded ABI.
func ParseMintableNFT() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(string(MintableNFTABI)))
}
