package tracker

import (
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

var symbolPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidEVMAddress reports whether s is a hex-encoded 20-byte address.
func ValidEVMAddress(s string) bool {
	return common.IsHexAddress(s)
}

// ValidSolanaAddress reports whether s is a base58 string of plausible
// public-key length.
func ValidSolanaAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	_, err := base58.Decode(s)
	return err == nil
}

// ValidMagicEdenIdentifier accepts either a Solana address or a
// Magic Eden collection symbol. Symbols are lowercase slug-style
// identifiers of moderate length.
func ValidMagicEdenIdentifier(s string) bool {
	if ValidSolanaAddress(s) {
		return true
	}
	if len(s) == 0 || len(s) > 64 {
		return false
	}
	return symbolPattern.MatchString(s)
}
