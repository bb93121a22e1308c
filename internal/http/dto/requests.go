package dto

type AuthTelegramRequest struct {
	InitData string `json:"init_data"`
}

// TransferRequest amounts are decimal strings in the token's display units,
// e.g. "1.5" SOL.
type TransferRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
	Payee  string `json:"payee"`
}

type SwapRequest struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	Amount string `json:"amount"`
}

type CreatePaymentRequest struct {
	Token   string `json:"token"`
	Amount  string `json:"amount"`
	Private *bool  `json:"private,omitempty"`
}

// ShieldRequest moves funds in or out of the shielded pool. To is only used
// by withdrawals and defaults to the caller's own wallet.
type ShieldRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
	To     string `json:"to,omitempty"`
}
