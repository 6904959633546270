package solana

import (
	"testing"

	"github.com/CedrosPay/server/pkg/x402"
)

const (
	testMint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testPayer  = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
	testPayee  = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
)

func txWithBalances(pre, post []TokenBalance) *TransactionRecord {
	return &TransactionRecord{
		AccountKeys:       []string{testPayer, testPayee},
		PreTokenBalances:  pre,
		PostTokenBalances: post,
	}
}

func TestParseTransfers_SimpleTransfer(t *testing.T) {
	tx := txWithBalances(
		[]TokenBalance{{AccountIndex: 0, Mint: testMint, Owner: testPayer, Amount: "1000000"}},
		[]TokenBalance{
			{AccountIndex: 0, Mint: testMint, Owner: testPayer, Amount: "0"},
			{AccountIndex: 1, Mint: testMint, Owner: testPayee, Amount: "1000000"},
		},
	)

	transfers, err := ParseTransfers(tx)
	if err != nil {
		t.Fatalf("ParseTransfers() error = %v", err)
	}
	if len(transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(transfers))
	}
	got := transfers[0]
	if got.Destination != testPayee || got.Amount != 1000000 || got.Mint != testMint {
		t.Errorf("unexpected transfer: %+v", got)
	}
}

func TestParseTransfers_FailedTransaction(t *testing.T) {
	tx := &TransactionRecord{Failed: true}
	_, err := ParseTransfers(tx)
	if x402.KindOf(err) != x402.ErrTxFailed {
		t.Fatalf("expected ErrTxFailed, got %v", err)
	}
}

func TestParseTransfers_NoTokenTransfer(t *testing.T) {
	tx := txWithBalances(nil, nil)
	_, err := ParseTransfers(tx)
	if x402.KindOf(err) != x402.ErrNoTokenTransfer {
		t.Fatalf("expected ErrNoTokenTransfer, got %v", err)
	}
}

func TestParseTransfers_WithinPairingTolerance(t *testing.T) {
	// A 50 base-unit asymmetry (e.g. a fee-bearing asset) still pairs.
	tx := txWithBalances(
		[]TokenBalance{{AccountIndex: 0, Mint: testMint, Owner: testPayer, Amount: "1000050"}},
		[]TokenBalance{
			{AccountIndex: 0, Mint: testMint, Owner: testPayer, Amount: "0"},
			{AccountIndex: 1, Mint: testMint, Owner: testPayee, Amount: "1000000"},
		},
	)

	transfers, err := ParseTransfers(tx)
	if err != nil {
		t.Fatalf("ParseTransfers() error = %v", err)
	}
	if len(transfers) != 1 {
		t.Fatalf("expected 1 transfer within tolerance, got %d", len(transfers))
	}
}
