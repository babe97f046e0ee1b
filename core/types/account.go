package types

import (
	"strings"

	"github.com/holiman/uint256"
)

// Asset names one side of the market.
type Asset string

const (
	AssetNative  Asset = "native"
	AssetForeign Asset = "foreign"
)

// ParseAsset normalises an asset name; ok is false for unknown assets.
func ParseAsset(raw string) (Asset, bool) {
	switch Asset(strings.ToLower(strings.TrimSpace(raw))) {
	case AssetNative:
		return AssetNative, true
	case AssetForeign:
		return AssetForeign, true
	default:
		return "", false
	}
}

// Account is a snapshot of one account's balances.
type Account struct {
	ID      string       `json:"id"`
	Native  *uint256.Int `json:"native"`
	Foreign *uint256.Int `json:"foreign"`
}

// NormalizeAccount canonicalises account identifiers for consistent lookups.
func NormalizeAccount(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
