package settlement

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// SolanaMainnetCAIP2 identifies Solana mainnet in custody RPC calls.
const SolanaMainnetCAIP2 = "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"

// CustodyClient talks to the Privy wallet API. Private keys never leave the
// provider; we only ask it to create wallets and sign transactions.
type CustodyClient struct {
	baseURL   string
	appID     string
	appSecret string
	retrier   *Retrier
	log       *zap.Logger
}

func NewCustodyClient(baseURL, appID, appSecret string, retrier *Retrier, log *zap.Logger) *CustodyClient {
	return &CustodyClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		appID:     appID,
		appSecret: appSecret,
		retrier:   retrier,
		log:       log,
	}
}

type CustodyWallet struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	ChainType string `json:"chain_type"`
}

func (c *CustodyClient) headers(idemKey string) map[string]string {
	auth := base64.StdEncoding.EncodeToString([]byte(c.appID + ":" + c.appSecret))
	h := map[string]string{
		"Authorization": "Basic " + auth,
		"privy-app-id":  c.appID,
	}
	if idemKey != "" {
		h["privy-idempotency-key"] = idemKey
	}
	return h
}

// CreateWallet provisions a Solana wallet. The provider deduplicates on
// idemKey, so repeating the call returns the same wallet.
func (c *CustodyClient) CreateWallet(ctx context.Context, ownerKey, idemKey string) (*CustodyWallet, error) {
	var w CustodyWallet
	err := c.retrier.do(ctx, call{
		method:         "POST",
		url:            c.baseURL + "/v1/wallets",
		headers:        c.headers(idemKey),
		body:           map[string]any{"chain_type": "solana", "external_id": ownerKey},
		idempotencyKey: idemKey,
		mutating:       true,
	}, &w)
	if err != nil {
		return nil, fmt.Errorf("create custody wallet: %w", err)
	}
	if w.ID == "" || w.Address == "" {
		return nil, fmt.Errorf("create custody wallet: %w: empty wallet in response", ErrRejected)
	}
	return &w, nil
}

type rpcRequest struct {
	Method string         `json:"method"`
	CAIP2  string         `json:"caip2,omitempty"`
	Params map[string]any `json:"params"`
}

type rpcResponse struct {
	Method string `json:"method"`
	Data   struct {
		Hash              string `json:"hash"`
		SignedTransaction string `json:"signed_transaction"`
	} `json:"data"`
}

// SignAndSubmit has the provider co-sign txBytes with the wallet key and
// broadcast it. Returns the transaction signature.
func (c *CustodyClient) SignAndSubmit(ctx context.Context, walletID string, txBytes []byte, idemKey string) (string, error) {
	var resp rpcResponse
	err := c.retrier.do(ctx, call{
		method:  "POST",
		url:     fmt.Sprintf("%s/v1/wallets/%s/rpc", c.baseURL, walletID),
		headers: c.headers(idemKey),
		body: rpcRequest{
			Method: "signAndSendTransaction",
			CAIP2:  SolanaMainnetCAIP2,
			Params: map[string]any{
				"transaction": base64.StdEncoding.EncodeToString(txBytes),
				"encoding":    "base64",
			},
		},
		idempotencyKey: idemKey,
		mutating:       true,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("sign and submit: %w", err)
	}
	if resp.Data.Hash == "" {
		return "", fmt.Errorf("sign and submit: %w: no signature in response", ErrAmbiguousOutcome)
	}
	return resp.Data.Hash, nil
}

// SignTransaction returns the wallet-signed transaction without broadcasting.
func (c *CustodyClient) SignTransaction(ctx context.Context, walletID string, txBytes []byte) ([]byte, error) {
	var resp rpcResponse
	err := c.retrier.do(ctx, call{
		method:  "POST",
		url:     fmt.Sprintf("%s/v1/wallets/%s/rpc", c.baseURL, walletID),
		headers: c.headers(""),
		body: rpcRequest{
			Method: "signTransaction",
			Params: map[string]any{
				"transaction": base64.StdEncoding.EncodeToString(txBytes),
				"encoding":    "base64",
			},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	signed, err := base64.StdEncoding.DecodeString(resp.Data.SignedTransaction)
	if err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}
	return signed, nil
}
