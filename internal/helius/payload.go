// Package helius decodes Helius enhanced-transaction webhooks into the
// SOL and USDC transfers they carry.
package helius

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/solana-agent/backend/internal/models"
)

var ErrMalformed = errors.New("malformed webhook payload")

type NativeTransfer struct {
	FromUserAccount *string     `json:"fromUserAccount"`
	ToUserAccount   *string     `json:"toUserAccount"`
	Amount          json.Number `json:"amount"`
}

type RawTokenAmount struct {
	TokenAmount string `json:"tokenAmount"`
	Decimals    int32  `json:"decimals"`
}

type TokenTransfer struct {
	FromUserAccount *string         `json:"fromUserAccount"`
	ToUserAccount   *string         `json:"toUserAccount"`
	Mint            string          `json:"mint"`
	TokenAmount     json.Number     `json:"tokenAmount"`
	RawTokenAmount  *RawTokenAmount `json:"rawTokenAmount,omitempty"`
}

// Transaction is one enhanced transaction. Only the fields we act on are kept.
type Transaction struct {
	Signature       string           `json:"signature"`
	Type            string           `json:"type"`
	Timestamp       int64            `json:"timestamp"`
	FeePayer        string           `json:"feePayer"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
	TokenTransfers  []TokenTransfer  `json:"tokenTransfers"`
}

// Transfer is one supported-token movement extracted from a transaction.
// Index is its position among the transaction's supported transfers.
type Transfer struct {
	Signature string
	Index     int
	Token     models.Token
	Amount    int64
	From      string
	To        string
}

// Decode accepts either a JSON array of transactions or a single transaction
// object. Anything else, or a transaction without a signature, is rejected.
func Decode(body []byte) ([]Transaction, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}

	var txs []Transaction
	switch body[0] {
	case '[':
		if err := decodeNumbers(body, &txs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	case '{':
		var tx Transaction
		if err := decodeNumbers(body, &tx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		txs = []Transaction{tx}
	default:
		return nil, fmt.Errorf("%w: expected array or object", ErrMalformed)
	}

	if len(txs) == 0 {
		return nil, fmt.Errorf("%w: no transactions", ErrMalformed)
	}
	for i, tx := range txs {
		if strings.TrimSpace(tx.Signature) == "" {
			return nil, fmt.Errorf("%w: transaction %d has no signature", ErrMalformed, i)
		}
	}
	return txs, nil
}

func decodeNumbers(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}

// Transfers extracts SOL transfers from nativeTransfers and USDC transfers
// from tokenTransfers. Entries with a missing side or another mint are skipped;
// an amount that is not a valid non-negative number fails the whole transaction.
func (tx *Transaction) Transfers() ([]Transfer, error) {
	var out []Transfer
	for _, nt := range tx.NativeTransfers {
		from, to := deref(nt.FromUserAccount), deref(nt.ToUserAccount)
		if from == "" || to == "" {
			continue
		}
		lamports, err := nt.Amount.Int64()
		if err != nil || lamports < 0 {
			return nil, fmt.Errorf("%w: native amount %q", ErrMalformed, nt.Amount.String())
		}
		if lamports == 0 {
			continue
		}
		out = append(out, Transfer{Token: models.TokenSOL, Amount: lamports, From: from, To: to})
	}

	for _, tt := range tx.TokenTransfers {
		tok, ok := models.TokenByMint(tt.Mint)
		if !ok || tok != models.TokenUSDC {
			continue
		}
		from, to := deref(tt.FromUserAccount), deref(tt.ToUserAccount)
		if from == "" || to == "" {
			continue
		}
		amount, err := tokenMinorUnits(tt, tok)
		if err != nil {
			return nil, err
		}
		if amount == 0 {
			continue
		}
		out = append(out, Transfer{Token: tok, Amount: amount, From: from, To: to})
	}

	for i := range out {
		out[i].Signature = tx.Signature
		out[i].Index = i
	}
	return out, nil
}

func tokenMinorUnits(tt TokenTransfer, tok models.Token) (int64, error) {
	if tt.RawTokenAmount != nil && tt.RawTokenAmount.TokenAmount != "" {
		raw, err := decimal.NewFromString(tt.RawTokenAmount.TokenAmount)
		if err != nil || raw.IsNegative() || !raw.IsInteger() {
			return 0, fmt.Errorf("%w: raw token amount %q", ErrMalformed, tt.RawTokenAmount.TokenAmount)
		}
		if tt.RawTokenAmount.Decimals != tok.Decimals() {
			return 0, fmt.Errorf("%w: %s decimals %d", ErrMalformed, tok, tt.RawTokenAmount.Decimals)
		}
		return raw.IntPart(), nil
	}

	ui, err := decimal.NewFromString(tt.TokenAmount.String())
	if err != nil || ui.IsNegative() {
		return 0, fmt.Errorf("%w: token amount %q", ErrMalformed, tt.TokenAmount.String())
	}
	minor := ui.Shift(tok.Decimals())
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: token amount %q exceeds %s precision", ErrMalformed, tt.TokenAmount.String(), tok)
	}
	return minor.IntPart(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
