package models

import "strings"

type Token string

const (
	TokenSOL  Token = "SOL"
	TokenUSDC Token = "USDC"
)

const (
	MintWrappedSOL = "So11111111111111111111111111111111111111112"
	MintUSDC       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

var supportedTokens = map[Token]struct {
	decimals int32
	mint     string
}{
	TokenSOL:  {decimals: 9, mint: MintWrappedSOL},
	TokenUSDC: {decimals: 6, mint: MintUSDC},
}

// ParseToken accepts a case-insensitive symbol and reports whether it is supported.
func ParseToken(s string) (Token, bool) {
	t := Token(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := supportedTokens[t]
	return t, ok
}

func (t Token) Valid() bool {
	_, ok := supportedTokens[t]
	return ok
}

// Decimals is the number of minor-unit digits (lamports for SOL).
func (t Token) Decimals() int32 {
	return supportedTokens[t].decimals
}

func (t Token) Mint() string {
	return supportedTokens[t].mint
}

func TokenByMint(mint string) (Token, bool) {
	for t, info := range supportedTokens {
		if info.mint == mint {
			return t, true
		}
	}
	return "", false
}
