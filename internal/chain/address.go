package chain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gagliardetto/solana-go"
)

var addressPattern = regexp.MustCompile(`[1-9A-HJ-NP-Za-km-z]{32,44}`)

// ParseAddress validates a base58 Solana public key.
func ParseAddress(s string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(s))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid solana address %q: %w", s, err)
	}
	return pk, nil
}

func IsAddress(s string) bool {
	_, err := ParseAddress(s)
	return err == nil
}

// ExtractAddress finds the first valid wallet address inside free text.
func ExtractAddress(text string) (string, bool) {
	for _, m := range addressPattern.FindAllString(text, -1) {
		if IsAddress(m) {
			return m, true
		}
	}
	return "", false
}

// ParseSignature validates a base58 transaction signature.
func ParseSignature(s string) (solana.Signature, error) {
	sig, err := solana.SignatureFromBase58(strings.TrimSpace(s))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid transaction signature: %w", err)
	}
	return sig, nil
}

func ExplorerTxURL(signature string) string {
	return "https://orbmarkets.io/tx/" + signature
}
