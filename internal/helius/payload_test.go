package helius

import (
	"errors"
	"testing"

	"github.com/solana-agent/backend/internal/models"
)

const usdcTransfer = `[{
	"signature": "5sig",
	"type": "TRANSFER",
	"timestamp": 1700000000,
	"feePayer": "FeePayer111",
	"nativeTransfers": [],
	"tokenTransfers": [{
		"fromUserAccount": "AddrA",
		"toUserAccount": "AddrB",
		"mint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		"tokenAmount": 10
	}]
}]`

func TestDecode_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantN   int
		wantErr bool
	}{
		{"array", usdcTransfer, 1, false},
		{"single object", `{"signature":"s1","type":"TRANSFER"}`, 1, false},
		{"multiple", `[{"signature":"sig1","type":"SWAP"},{"signature":"sig2","type":"TRANSFER"}]`, 2, false},
		{"empty array", `[]`, 0, true},
		{"missing signature", `[{"type":"TRANSFER"}]`, 0, true},
		{"scalar", `"hello"`, 0, true},
		{"garbage", `{not json`, 0, true},
		{"empty", ``, 0, true},
		{"wrong field type", `[{"signature":"s","nativeTransfers":"nope"}]`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs, err := Decode([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(txs) != tt.wantN {
				t.Errorf("got %d transactions, want %d", len(txs), tt.wantN)
			}
		})
	}
}

func TestTransfers_USDC(t *testing.T) {
	txs, err := Decode([]byte(usdcTransfer))
	if err != nil {
		t.Fatal(err)
	}
	trs, err := txs[0].Transfers()
	if err != nil {
		t.Fatal(err)
	}
	if len(trs) != 1 {
		t.Fatalf("got %d transfers, want 1", len(trs))
	}
	got := trs[0]
	if got.Token != models.TokenUSDC || got.Amount != 10_000_000 || got.From != "AddrA" || got.To != "AddrB" {
		t.Errorf("unexpected transfer %+v", got)
	}
	if got.Signature != "5sig" || got.Index != 0 {
		t.Errorf("unexpected identity %s/%d", got.Signature, got.Index)
	}
}

func TestTransfers_NativeAndRaw(t *testing.T) {
	body := `{"signature":"s","nativeTransfers":[
		{"fromUserAccount":"A","toUserAccount":"B","amount":1500000000},
		{"fromUserAccount":null,"toUserAccount":"B","amount":5}
	],"tokenTransfers":[
		{"fromUserAccount":"A","toUserAccount":"B","mint":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","tokenAmount":1.5,
		 "rawTokenAmount":{"tokenAmount":"1500000","decimals":6}},
		{"fromUserAccount":"A","toUserAccount":"B","mint":"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263","tokenAmount":100}
	]}`
	txs, err := Decode([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	trs, err := txs[0].Transfers()
	if err != nil {
		t.Fatal(err)
	}
	if len(trs) != 2 {
		t.Fatalf("got %d transfers, want 2 (null side and foreign mint skipped)", len(trs))
	}
	if trs[0].Token != models.TokenSOL || trs[0].Amount != 1_500_000_000 {
		t.Errorf("unexpected SOL transfer %+v", trs[0])
	}
	if trs[1].Token != models.TokenUSDC || trs[1].Amount != 1_500_000 || trs[1].Index != 1 {
		t.Errorf("unexpected USDC transfer %+v", trs[1])
	}
}

func TestTransfers_RejectsBadAmounts(t *testing.T) {
	bodies := []string{
		`{"signature":"s","nativeTransfers":[{"fromUserAccount":"A","toUserAccount":"B","amount":1.5}]}`,
		`{"signature":"s","nativeTransfers":[{"fromUserAccount":"A","toUserAccount":"B","amount":-1}]}`,
		`{"signature":"s","tokenTransfers":[{"fromUserAccount":"A","toUserAccount":"B","mint":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","tokenAmount":0.0000001}]}`,
		`{"signature":"s","tokenTransfers":[{"fromUserAccount":"A","toUserAccount":"B","mint":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","tokenAmount":1,"rawTokenAmount":{"tokenAmount":"1","decimals":9}}]}`,
	}
	for _, b := range bodies {
		txs, err := Decode([]byte(b))
		if err != nil {
			t.Fatalf("decode %s: %v", b, err)
		}
		if _, err := txs[0].Transfers(); !errors.Is(err, ErrMalformed) {
			t.Errorf("expected ErrMalformed for %s, got %v", b, err)
		}
	}
}
