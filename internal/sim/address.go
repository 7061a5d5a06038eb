package sim

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Address derives a stable account address from a label, so scenarios can
// refer to participants and tokens by name.
func Address(label string) common.Address {
	if common.IsHexAddress(label) {
		return common.HexToAddress(label)
	}
	hash := crypto.Keccak256([]byte(strings.ToLower(strings.TrimSpace(label))))
	return common.BytesToAddress(hash[12:])
}
