package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/solana-agent/backend/internal/models"
	"go.uber.org/zap"
)

type Submitter interface {
	SignAndSubmit(ctx context.Context, walletID string, txBytes []byte, idemKey string) (string, error)
}

// PublicTransfer is a built, fee-payer-signed transaction waiting for the
// sender's custody signature. Signature is known before submission because
// the fee payer signs first.
type PublicTransfer struct {
	Tx        *solana.Transaction
	Signature string
}

type SignatureState int

const (
	SignatureUnknown SignatureState = iota
	SignatureConfirmed
	SignatureFailed
)

// PublicAdapter settles plain on-chain SOL and USDC transfers. The configured
// fee payer covers network fees so user wallets need no SOL for gas.
type PublicAdapter struct {
	rpc      *rpc.Client
	custody  Submitter
	feePayer solana.PrivateKey
	log      *zap.Logger
}

func NewPublicAdapter(rpcURL, feePayerKey string, custody Submitter, log *zap.Logger) (*PublicAdapter, error) {
	a := &PublicAdapter{
		rpc:     rpc.New(rpcURL),
		custody: custody,
		log:     log,
	}
	if feePayerKey != "" {
		key, err := solana.PrivateKeyFromBase58(feePayerKey)
		if err != nil {
			return nil, fmt.Errorf("parse fee payer key: %w", err)
		}
		a.feePayer = key
	}
	return a, nil
}

// FeePayerAddress is empty when no fee payer is configured.
func (a *PublicAdapter) FeePayerAddress() string {
	if a.feePayer == nil {
		return ""
	}
	return a.feePayer.PublicKey().String()
}

// Build assembles and fee-payer-signs a transfer of amount minor units.
func (a *PublicAdapter) Build(ctx context.Context, tok models.Token, amount int64, from, to string) (*PublicTransfer, error) {
	if a.feePayer == nil {
		return nil, fmt.Errorf("%w: fee payer not configured", ErrRejected)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrRejected)
	}
	fromKey, err := solana.PublicKeyFromBase58(from)
	if err != nil {
		return nil, fmt.Errorf("%w: sender address: %v", ErrRejected, err)
	}
	toKey, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return nil, fmt.Errorf("%w: payee address: %v", ErrRejected, err)
	}
	payer := a.feePayer.PublicKey()

	createATA := false
	if tok == models.TokenUSDC {
		ata, _, err := solana.FindAssociatedTokenAddress(toKey, solana.MustPublicKeyFromBase58(models.MintUSDC))
		if err != nil {
			return nil, err
		}
		if _, err := a.rpc.GetAccountInfo(ctx, ata); err != nil {
			if !errors.Is(err, rpc.ErrNotFound) {
				return nil, fmt.Errorf("lookup payee token account: %w", err)
			}
			createATA = true
		}
	}

	instrs, err := transferInstructions(tok, uint64(amount), fromKey, toKey, payer, createATA)
	if err != nil {
		return nil, err
	}

	bh, err := a.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("get blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instrs, bh.Value.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &a.feePayer
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("fee payer sign: %w", err)
	}
	return &PublicTransfer{Tx: tx, Signature: tx.Signatures[0].String()}, nil
}

// transferInstructions returns the instruction list for one transfer. USDC
// moves between associated token accounts, creating the payee's when missing.
func transferInstructions(tok models.Token, amount uint64, from, to, payer solana.PublicKey, createATA bool) ([]solana.Instruction, error) {
	switch tok {
	case models.TokenSOL:
		return []solana.Instruction{
			system.NewTransferInstruction(amount, from, to).Build(),
		}, nil
	case models.TokenUSDC:
		mint := solana.MustPublicKeyFromBase58(models.MintUSDC)
		src, _, err := solana.FindAssociatedTokenAddress(from, mint)
		if err != nil {
			return nil, err
		}
		dst, _, err := solana.FindAssociatedTokenAddress(to, mint)
		if err != nil {
			return nil, err
		}
		var out []solana.Instruction
		if createATA {
			out = append(out, associatedtokenaccount.NewCreateInstruction(payer, to, mint).Build())
		}
		out = append(out, token.NewTransferCheckedInstruction(
			amount, uint8(tok.Decimals()), src, mint, dst, from, nil,
		).Build())
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported token %q", ErrRejected, tok)
	}
}

// Submit has the custody provider add the sender's signature and broadcast.
func (a *PublicAdapter) Submit(ctx context.Context, custodyWalletID string, pt *PublicTransfer, idemKey string) (string, error) {
	raw, err := pt.Tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}
	sig, err := a.custody.SignAndSubmit(ctx, custodyWalletID, raw, idemKey)
	if err != nil {
		return "", err
	}
	if sig != pt.Signature {
		a.log.Warn("custody returned unexpected signature",
			zap.String("expected", pt.Signature),
			zap.String("got", sig),
		)
	}
	return sig, nil
}

// Status reports whether sig has landed at confirmed commitment or better.
func (a *PublicAdapter) Status(ctx context.Context, sig string) (SignatureState, error) {
	s, err := solana.SignatureFromBase58(sig)
	if err != nil {
		return SignatureUnknown, fmt.Errorf("parse signature: %w", err)
	}
	res, err := a.rpc.GetSignatureStatuses(ctx, true, s)
	if err != nil {
		return SignatureUnknown, fmt.Errorf("get signature status: %w", err)
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return SignatureUnknown, nil
	}
	st := res.Value[0]
	if st.Err != nil {
		return SignatureFailed, nil
	}
	switch st.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return SignatureConfirmed, nil
	default:
		return SignatureUnknown, nil
	}
}
