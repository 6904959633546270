package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"strconv"
	"testing"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"

	"github.com/CedrosPay/server/pkg/x402"
)

// buildChannelAccountData encodes an onChainChannelRecord the same way the
// channel program would, for tests to plant fake account state.
func buildChannelAccountData(t *testing.T, rec onChainChannelRecord) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := bin.NewBinEncoder(&buf).Encode(rec); err != nil {
		t.Fatalf("encode channel record: %v", err)
	}
	return buf.Bytes()
}

func TestChannelVerifier_Success(t *testing.T) {
	client := solanago.NewWallet()
	server, err := solanago.PublicKeyFromBase58(testPayee)
	if err != nil {
		t.Fatalf("parse server pubkey: %v", err)
	}

	var channelID [32]byte
	copy(channelID[:], []byte("test-channel-0123456789abcdefXY"))

	rec := onChainChannelRecord{
		ChannelID:     channelID,
		Client:        client.PublicKey(),
		Server:        server,
		ClientDeposit: 5_000_000,
		ServerClaimed: 1_000_000,
		Nonce:         3,
		Status:        uint8(x402.ChannelOpen),
		CreditLimit:   0,
	}

	ledger := newFakeLedger()
	ledger.accounts["channel-addr"] = &AccountInfo{Data: buildChannelAccountData(t, rec)}

	amount := uint64(2_000_000)
	nonce := uint64(4)
	var expiry uint64
	message := channelClaimMessage(channelID, server, amount, nonce, expiry)
	sig, err := client.PrivateKey.Sign(message)
	if err != nil {
		t.Fatalf("sign claim: %v", err)
	}

	v := NewChannelVerifier(ledger, func(string) (string, error) { return "channel-addr", nil }, "solana")
	proof := &x402.PaymentProof{
		Scheme: x402.SchemeChannel,
		Channel: &x402.ChannelPayload{
			ChannelID: base64.StdEncoding.EncodeToString(channelID[:]),
			Amount:    strconv.FormatUint(amount, 10),
			Nonce:     strconv.FormatUint(nonce, 10),
			Signature: base64.StdEncoding.EncodeToString(sig[:]),
		},
	}
	requirement := x402.PaymentRequirement{Scheme: x402.SchemeChannel, PayTo: testPayee}

	result := v.Verify(context.Background(), proof, requirement, x402.DefaultVerifyOptions(requirement))
	if !result.Valid {
		t.Fatalf("expected valid result, got kind=%s detail=%s", result.ErrorKind, result.ErrorDetail)
	}
	if result.Amount != 1_000_000 {
		t.Errorf("incremental amount = %d, want 1000000", result.Amount)
	}
}

func TestChannelVerifier_NonceNotAdvancing(t *testing.T) {
	client := solanago.NewWallet()
	server, _ := solanago.PublicKeyFromBase58(testPayee)
	var channelID [32]byte

	rec := onChainChannelRecord{
		ChannelID: channelID,
		Client:    client.PublicKey(),
		Server:    server,
		Nonce:     5,
		Status:    uint8(x402.ChannelOpen),
	}
	ledger := newFakeLedger()
	ledger.accounts["channel-addr"] = &AccountInfo{Data: buildChannelAccountData(t, rec)}

	message := channelClaimMessage(channelID, server, 1000, 5, 0)
	sig, _ := client.PrivateKey.Sign(message)

	v := NewChannelVerifier(ledger, func(string) (string, error) { return "channel-addr", nil }, "solana")
	proof := &x402.PaymentProof{
		Scheme: x402.SchemeChannel,
		Channel: &x402.ChannelPayload{
			ChannelID: base64.StdEncoding.EncodeToString(channelID[:]),
			Amount:    "1000",
			Nonce:     "5",
			Signature: base64.StdEncoding.EncodeToString(sig[:]),
		},
	}

	requirement := x402.PaymentRequirement{PayTo: testPayee}
	result := v.Verify(context.Background(), proof, requirement, x402.DefaultVerifyOptions(requirement))
	if result.Valid || result.ErrorKind != x402.ErrChannelInvalidNonce {
		t.Fatalf("expected ErrChannelInvalidNonce, got valid=%v kind=%s", result.Valid, result.ErrorKind)
	}
}

func TestChannelVerifier_BadSignature(t *testing.T) {
	client := solanago.NewWallet()
	impostor := solanago.NewWallet()
	server, _ := solanago.PublicKeyFromBase58(testPayee)
	var channelID [32]byte

	rec := onChainChannelRecord{
		ChannelID:     channelID,
		Client:        client.PublicKey(),
		Server:        server,
		ClientDeposit: 5_000,
		Nonce:         1,
		Status:        uint8(x402.ChannelOpen),
	}
	ledger := newFakeLedger()
	ledger.accounts["channel-addr"] = &AccountInfo{Data: buildChannelAccountData(t, rec)}

	message := channelClaimMessage(channelID, server, 1000, 2, 0)
	sig, _ := impostor.PrivateKey.Sign(message) // signed by the wrong key

	v := NewChannelVerifier(ledger, func(string) (string, error) { return "channel-addr", nil }, "solana")
	proof := &x402.PaymentProof{
		Scheme: x402.SchemeChannel,
		Channel: &x402.ChannelPayload{
			ChannelID: base64.StdEncoding.EncodeToString(channelID[:]),
			Amount:    "1000",
			Nonce:     "2",
			Signature: base64.StdEncoding.EncodeToString(sig[:]),
		},
	}

	requirement := x402.PaymentRequirement{PayTo: testPayee}
	result := v.Verify(context.Background(), proof, requirement, x402.DefaultVerifyOptions(requirement))
	if result.Valid || result.ErrorKind != x402.ErrChannelInvalidSignature {
		t.Fatalf("expected ErrChannelInvalidSignature, got valid=%v kind=%s", result.Valid, result.ErrorKind)
	}
}
