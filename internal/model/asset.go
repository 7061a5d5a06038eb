package model

import "github.com/ethereum/go-ethereum/common"

// Asset pairs a held token with the price feed that values it.
type Asset struct {
	Token common.Address `json:"token"`
	Feed  common.Address `json:"feed"`
}
