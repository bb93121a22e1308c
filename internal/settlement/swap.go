package settlement

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

type Signer interface {
	SignTransaction(ctx context.Context, walletID string, txBytes []byte) ([]byte, error)
}

type SwapRequest struct {
	InputMint       string
	OutputMint      string
	Amount          int64
	TakerAddress    string
	CustodyWalletID string
}

type SwapReceipt struct {
	RequestID string `json:"request_id"`
	Signature string `json:"signature"`
	InAmount  int64  `json:"in_amount"`
	OutAmount int64  `json:"out_amount"`
}

// SwapClient executes token swaps through Jupiter Ultra.
type SwapClient struct {
	baseURL string
	apiKey  string
	signer  Signer
	retrier *Retrier
	log     *zap.Logger
}

func NewSwapClient(baseURL, apiKey string, signer Signer, retrier *Retrier, log *zap.Logger) *SwapClient {
	return &SwapClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		signer:  signer,
		retrier: retrier,
		log:     log,
	}
}

type Order struct {
	RequestID   string `json:"requestId"`
	Transaction string `json:"transaction"`
	InAmount    string `json:"inAmount"`
	OutAmount   string `json:"outAmount"`
	ErrorMsg    string `json:"errorMessage"`
}

type ultraExecute struct {
	Status    string `json:"status"`
	Signature string `json:"signature"`
	Error     string `json:"error"`
}

func (c *SwapClient) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"x-api-key": c.apiKey}
}

// Quote fetches an order without executing it.
func (c *SwapClient) Quote(ctx context.Context, req SwapRequest) (*Order, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrRejected)
	}
	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatInt(req.Amount, 10))
	q.Set("taker", req.TakerAddress)

	var order Order
	if err := c.retrier.do(ctx, call{
		method:  "GET",
		url:     c.baseURL + "/ultra/v1/order?" + q.Encode(),
		headers: c.headers(),
	}, &order); err != nil {
		return nil, fmt.Errorf("swap quote: %w", err)
	}
	if order.Transaction == "" || order.RequestID == "" {
		msg := order.ErrorMsg
		if msg == "" {
			msg = "no route"
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return &order, nil
}

// SubmitSwap quotes, signs with the custody wallet and executes. The order's
// request id keys the execute call, so retrying it cannot swap twice.
func (c *SwapClient) SubmitSwap(ctx context.Context, req SwapRequest) (*SwapReceipt, error) {
	order, err := c.Quote(ctx, req)
	if err != nil {
		return nil, err
	}
	unsigned, err := base64.StdEncoding.DecodeString(order.Transaction)
	if err != nil {
		return nil, fmt.Errorf("%w: bad order transaction: %v", ErrRejected, err)
	}
	signed, err := c.signer.SignTransaction(ctx, req.CustodyWalletID, unsigned)
	if err != nil {
		return nil, err
	}

	var res ultraExecute
	if err := c.retrier.do(ctx, call{
		method:  "POST",
		url:     c.baseURL + "/ultra/v1/execute",
		headers: c.headers(),
		body: map[string]string{
			"signedTransaction": base64.StdEncoding.EncodeToString(signed),
			"requestId":         order.RequestID,
		},
		idempotencyKey: order.RequestID,
		mutating:       true,
	}, &res); err != nil {
		return nil, fmt.Errorf("swap execute: %w", err)
	}
	if res.Status != "Success" {
		return nil, fmt.Errorf("%w: swap %s: %s", ErrRejected, strings.ToLower(res.Status), res.Error)
	}

	in, _ := strconv.ParseInt(order.InAmount, 10, 64)
	out, _ := strconv.ParseInt(order.OutAmount, 10, 64)
	c.log.Info("swap executed",
		zap.String("request_id", order.RequestID),
		zap.String("signature", res.Signature),
	)
	return &SwapReceipt{RequestID: order.RequestID, Signature: res.Signature, InAmount: in, OutAmount: out}, nil
}
