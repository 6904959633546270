package solana

import (
	"context"
	"testing"
	"time"

	"github.com/CedrosPay/server/internal/replay"
	"github.com/CedrosPay/server/pkg/x402"
)

func testRequirement() x402.PaymentRequirement {
	return x402.PaymentRequirement{
		Scheme:            x402.SchemeExact,
		Network:           "solana",
		MaxAmountRequired: "1000000",
		Resource:          "/premium-article",
		PayTo:             testPayee,
		Asset:             testMint,
		MaxTimeoutSeconds: 300,
	}
}

func newTestVerifier(ledger Ledger) *TransferVerifier {
	return NewTransferVerifier(ledger, replay.NewMemoryCache(0, time.Minute), "solana")
}

func TestTransferVerifier_Success(t *testing.T) {
	ledger := newFakeLedger()
	now := time.Now().Unix()
	ledger.transactions["sig1"] = &TransactionRecord{
		AccountKeys: []string{testPayer, testPayee},
		PreTokenBalances: []TokenBalance{
			{AccountIndex: 0, Mint: testMint, Owner: testPayer, Amount: "1000000"},
		},
		PostTokenBalances: []TokenBalance{
			{AccountIndex: 0, Mint: testMint, Owner: testPayer, Amount: "0"},
			{AccountIndex: 1, Mint: testMint, Owner: testPayee, Amount: "1000000"},
		},
		BlockTime: &now,
	}

	v := newTestVerifier(ledger)
	proof := &x402.PaymentProof{Scheme: x402.SchemeExact, Exact: &x402.ExactPayload{Signature: "sig1"}}

	requirement := testRequirement()
	result := v.Verify(context.Background(), proof, requirement, x402.DefaultVerifyOptions(requirement))
	if !result.Valid {
		t.Fatalf("expected valid result, got error kind %s detail %s", result.ErrorKind, result.ErrorDetail)
	}
	if result.Amount != 1000000 {
		t.Errorf("amount = %d, want 1000000", result.Amount)
	}
}

func TestTransferVerifier_ReplayRejected(t *testing.T) {
	ledger := newFakeLedger()
	now := time.Now().Unix()
	ledger.transactions["sig1"] = &TransactionRecord{
		AccountKeys: []string{testPayer, testPayee},
		PreTokenBalances: []TokenBalance{
			{AccountIndex: 0, Mint: testMint, Owner: testPayer, Amount: "1000000"},
		},
		PostTokenBalances: []TokenBalance{
			{AccountIndex: 0, Mint: testMint, Owner: testPayer, Amount: "0"},
			{AccountIndex: 1, Mint: testMint, Owner: testPayee, Amount: "1000000"},
		},
		BlockTime: &now,
	}

	v := newTestVerifier(ledger)
	proof := &x402.PaymentProof{Scheme: x402.SchemeExact, Exact: &x402.ExactPayload{Signature: "sig1"}}

	requirement := testRequirement()
	first := v.Verify(context.Background(), proof, requirement, x402.DefaultVerifyOptions(requirement))
	if !first.Valid {
		t.Fatalf("first verification should succeed, got %s", first.ErrorKind)
	}

	second := v.Verify(context.Background(), proof, requirement, x402.DefaultVerifyOptions(requirement))
	if second.Valid || second.ErrorKind != x402.ErrReplayAttack {
		t.Fatalf("second verification should be ErrReplayAttack, got valid=%v kind=%s", second.Valid, second.ErrorKind)
	}
}

func TestTransferVerifier_TxNotFound(t *testing.T) {
	v := newTestVerifier(newFakeLedger())
	proof := &x402.PaymentProof{Scheme: x402.SchemeExact, Exact: &x402.ExactPayload{Signature: "missing"}}

	requirement := testRequirement()
	result := v.Verify(context.Background(), proof, requirement, x402.DefaultVerifyOptions(requirement))
	if result.Valid || result.ErrorKind != x402.ErrTxNotFound {
		t.Fatalf("expected ErrTxNotFound, got valid=%v kind=%s", result.Valid, result.ErrorKind)
	}
}

func TestTransferVerifier_AmountMismatch(t *testing.T) {
	ledger := newFakeLedger()
	now := time.Now().Unix()
	ledger.transactions["sig1"] = &TransactionRecord{
		AccountKeys: []string{testPayer, testPayee},
		PreTokenBalances: []TokenBalance{
			{AccountIndex: 0, Mint: testMint, Owner: testPayer, Amount: "500000"},
		},
		PostTokenBalances: []TokenBalance{
			{AccountIndex: 0, Mint: testMint, Owner: testPayer, Amount: "0"},
			{AccountIndex: 1, Mint: testMint, Owner: testPayee, Amount: "500000"},
		},
		BlockTime: &now,
	}

	v := newTestVerifier(ledger)
	proof := &x402.PaymentProof{Scheme: x402.SchemeExact, Exact: &x402.ExactPayload{Signature: "sig1"}}

	requirement := testRequirement()
	result := v.Verify(context.Background(), proof, requirement, x402.DefaultVerifyOptions(requirement))
	if result.Valid || result.ErrorKind != x402.ErrTransferMismatch {
		t.Fatalf("expected ErrTransferMismatch, got valid=%v kind=%s", result.Valid, result.ErrorKind)
	}
}

func TestTransferVerifier_Expired(t *testing.T) {
	ledger := newFakeLedger()
	stale := time.Now().Add(-time.Hour).Unix()
	ledger.transactions["sig1"] = &TransactionRecord{
		AccountKeys: []string{testPayer, testPayee},
		PreTokenBalances: []TokenBalance{
			{AccountIndex: 0, Mint: testMint, Owner: testPayer, Amount: "1000000"},
		},
		PostTokenBalances: []TokenBalance{
			{AccountIndex: 0, Mint: testMint, Owner: testPayer, Amount: "0"},
			{AccountIndex: 1, Mint: testMint, Owner: testPayee, Amount: "1000000"},
		},
		BlockTime: &stale,
	}

	v := newTestVerifier(ledger)
	req := testRequirement()
	req.MaxTimeoutSeconds = 60
	proof := &x402.PaymentProof{Scheme: x402.SchemeExact, Exact: &x402.ExactPayload{Signature: "sig1"}}

	result := v.Verify(context.Background(), proof, req, x402.DefaultVerifyOptions(req))
	if result.Valid || result.ErrorKind != x402.ErrTxExpired {
		t.Fatalf("expected ErrTxExpired, got valid=%v kind=%s", result.Valid, result.ErrorKind)
	}
}
