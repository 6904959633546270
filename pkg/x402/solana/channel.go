package solana

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/CedrosPay/server/internal/auth"
	"github.com/CedrosPay/server/internal/logger"
	"github.com/CedrosPay/server/internal/metrics"
	"github.com/CedrosPay/server/pkg/x402"
)

// channelDomain is the 21-byte domain-separation prefix of every signed
// claim message: a 5-byte protocol tag followed by the ASCII tag
// "channel-claim-v1", so a claim signature can never be replayed against
// an unrelated message format.
var channelDomain = append([]byte{0, 0, 0, 0, byte(x402.ProtocolVersion)}, []byte("channel-claim-v1")...)

// onChainChannelRecord mirrors the 170-byte settlement-channel account
// layout byte-for-byte; gagliardetto/binary decodes it with a single
// typed struct read rather than hand-rolled offset arithmetic.
type onChainChannelRecord struct {
	Discriminator [8]byte
	ChannelID     [32]byte
	Client        solanago.PublicKey
	Server        solanago.PublicKey
	ClientDeposit uint64
	ServerClaimed uint64
	Nonce         uint64
	Expiry        int64
	Status        uint8
	CreatedAt     int64
	LastUpdate    int64
	DebtOwed      uint64
	CreditLimit   uint64
	Bump          uint8
}

const channelRecordSize = 170

// decodeChannelRecord parses the 170-byte account layout into a
// ChannelRecord.
func decodeChannelRecord(address string, data []byte) (*x402.ChannelRecord, error) {
	if len(data) < channelRecordSize {
		return nil, fmt.Errorf("x402 solana: channel account too short: %d bytes", len(data))
	}

	var raw onChainChannelRecord
	decoder := bin.NewBinDecoder(data)
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("x402 solana: decode channel record: %w", err)
	}

	return &x402.ChannelRecord{
		Address:       address,
		Client:        raw.Client.String(),
		Server:        raw.Server.String(),
		ClientDeposit: raw.ClientDeposit,
		ServerClaimed: raw.ServerClaimed,
		CreditLimit:   raw.CreditLimit,
		Nonce:         raw.Nonce,
		Status:        x402.ChannelStatus(raw.Status),
		ChannelExpiry: raw.Expiry,
	}, nil
}

// channelClaimMessage reconstructs the exact 109-byte canonical message a
// client signs for a channel claim.
func channelClaimMessage(channelID [32]byte, server solanago.PublicKey, amount, nonce, expiry uint64) []byte {
	msg := make([]byte, 0, 109)
	msg = append(msg, channelDomain...)
	msg = append(msg, channelID[:]...)
	msg = append(msg, server.Bytes()...)

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], amount)
	msg = append(msg, buf[:]...)
	binary.LittleEndian.PutUint64(buf[:], nonce)
	msg = append(msg, buf[:]...)
	binary.LittleEndian.PutUint64(buf[:], expiry)
	msg = append(msg, buf[:]...)

	return msg
}

// ChannelVerifier implements the channel-scheme verification procedure
// (C6): ten ordered checks against on-chain channel state, ending in an
// Ed25519 signature verification over the canonical claim message. The
// replay cache is never consulted here — the on-chain nonce already
// enforces monotonicity.
type ChannelVerifier struct {
	ledger        Ledger
	deriveChannel func(channelID string) (string, error)
	clock         func() time.Time
	metrics       *metrics.Metrics
	network       string
}

// NewChannelVerifier builds a C6 verifier. deriveChannel maps a claim's
// channelId to the program-derived account address holding its
// ChannelRecord; in production this is the channel program's PDA
// derivation, in tests a simple lookup table.
func NewChannelVerifier(ledger Ledger, deriveChannel func(channelID string) (string, error), network string) *ChannelVerifier {
	return &ChannelVerifier{
		ledger:        ledger,
		deriveChannel: deriveChannel,
		clock:         time.Now,
		network:       network,
	}
}

func (v *ChannelVerifier) WithMetrics(m *metrics.Metrics) *ChannelVerifier {
	v.metrics = m
	return v
}

// parsedClaim holds a channel claim's fields after structural validation
// and decoding, shared by CheckShape and the full Verify procedure.
type parsedClaim struct {
	amount    uint64
	nonce     uint64
	expiry    uint64
	signature []byte
	channelID [32]byte
}

// parseChannelClaim performs the structural payload check (step 1 of the
// full procedure): field presence, integer parsing, and signature/channelId
// decoding. It touches neither the ledger nor the replay cache.
func parseChannelClaim(proof *x402.PaymentProof) (parsedClaim, x402.VerificationResult) {
	claim := proof.Channel
	if claim == nil {
		return parsedClaim{}, failure(x402.ErrChannelInvalidPayload, "missing channel payload")
	}
	amount, err := strconv.ParseUint(claim.Amount, 10, 64)
	if err != nil {
		return parsedClaim{}, failure(x402.ErrChannelInvalidPayload, "malformed amount")
	}
	nonce, err := strconv.ParseUint(claim.Nonce, 10, 64)
	if err != nil {
		return parsedClaim{}, failure(x402.ErrChannelInvalidPayload, "malformed nonce")
	}
	var expiry uint64
	if claim.Expiry != "" {
		expiry, err = strconv.ParseUint(claim.Expiry, 10, 64)
		if err != nil {
			return parsedClaim{}, failure(x402.ErrChannelInvalidPayload, "malformed expiry")
		}
	}
	sigBytes, err := decodeBytesLenient(claim.Signature)
	if err != nil || len(sigBytes) != 64 {
		return parsedClaim{}, failure(x402.ErrChannelInvalidPayload, "signature must decode to 64 bytes")
	}
	channelIDBytes, err := decodeBytesLenient(claim.ChannelID)
	if err != nil || len(channelIDBytes) != 32 {
		return parsedClaim{}, failure(x402.ErrChannelInvalidPayload, "channelId must decode to 32 bytes")
	}
	var channelID [32]byte
	copy(channelID[:], channelIDBytes)

	return parsedClaim{
		amount:    amount,
		nonce:     nonce,
		expiry:    expiry,
		signature: sigBytes,
		channelID: channelID,
	}, x402.VerificationResult{Valid: true}
}

// CheckShape performs the structural payload check only: no channel-record
// fetch, no signature verification. This is the fast path a gateway uses
// to pre-screen a claim before committing to the full Verify call.
func (v *ChannelVerifier) CheckShape(proof *x402.PaymentProof) x402.VerificationResult {
	_, result := parseChannelClaim(proof)
	if !result.Valid {
		return result
	}
	return x402.VerificationResult{Valid: true, Signature: proof.Channel.Signature}
}

// Verify runs the full channel-claim validation order. opts tunes the
// call, notably the minimum accepted claim increment (opts.MinClaimIncrement).
func (v *ChannelVerifier) Verify(ctx context.Context, proof *x402.PaymentProof, requirement x402.PaymentRequirement, opts x402.VerifyOptions) x402.VerificationResult {
	log := logger.FromContext(ctx)

	// Step 1: structural payload check.
	claim := proof.Channel
	parsed, result := parseChannelClaim(proof)
	if !result.Valid {
		return result
	}
	amount, nonce, expiry, sigBytes, channelID := parsed.amount, parsed.nonce, parsed.expiry, parsed.signature, parsed.channelID

	// Step 2: fetch the channel record.
	address, err := v.deriveChannel(claim.ChannelID)
	if err != nil {
		return failure(x402.ErrChannelNotFound, err.Error())
	}
	rpcStart := time.Now()
	account, err := v.ledger.GetAccountInfo(ctx, address)
	if v.metrics != nil {
		v.metrics.ObserveRPCCall("GetAccountInfo", v.network, time.Since(rpcStart), err)
	}
	if err != nil {
		return failure(x402.ErrRpcError, err.Error())
	}
	if account == nil {
		return failure(x402.ErrChannelNotFound, address)
	}
	channel, err := decodeChannelRecord(address, account.Data)
	if err != nil {
		return failure(x402.ErrChannelNotFound, err.Error())
	}

	// Step 3: channel must be open.
	if channel.Status != x402.ChannelOpen {
		return failure(x402.ErrChannelNotOpen, channel.Status.String())
	}

	// Step 4: server identity must match the requirement's payTo.
	if !pubkeysEqual(channel.Server, requirement.PayTo) {
		return failure(x402.ErrChannelWrongServer, channel.Server)
	}

	// Step 5: nonce must strictly advance.
	if nonce <= channel.Nonce {
		return failure(x402.ErrChannelInvalidNonce, fmt.Sprintf("claim nonce %d <= channel nonce %d", nonce, channel.Nonce))
	}

	// Step 6: cumulative claim amount must not move backwards.
	if amount < channel.ServerClaimed {
		return failure(x402.ErrChannelAmountBackwards, fmt.Sprintf("claim amount %d < already-claimed %d", amount, channel.ServerClaimed))
	}

	// Step 7: claim amount must stay within the funded balance.
	ceiling := channel.ClientDeposit + channel.CreditLimit
	if amount > ceiling {
		return failure(x402.ErrChannelInsufficientBalance, fmt.Sprintf("claim amount %d exceeds deposit+credit %d", amount, ceiling))
	}

	// Step 8: optional minimum-increment check.
	increment := amount - channel.ServerClaimed
	if opts.MinClaimIncrement > 0 && increment < opts.MinClaimIncrement {
		return failure(x402.ErrChannelInsufficientBalance, fmt.Sprintf("increment %d below minimum %d", increment, opts.MinClaimIncrement))
	}

	// Step 9: expiry, if the claim carries one.
	if expiry != 0 && uint64(v.clock().Unix()) > expiry {
		return failure(x402.ErrChannelClaimExpired, fmt.Sprintf("expiry %d has passed", expiry))
	}

	// Step 10: reconstruct the canonical message and verify the signature.
	server, err := solanago.PublicKeyFromBase58(channel.Server)
	if err != nil {
		return failure(x402.ErrInternal, err.Error())
	}
	message := channelClaimMessage(channelID, server, amount, nonce, expiry)
	client, err := solanago.PublicKeyFromBase58(channel.Client)
	if err != nil {
		return failure(x402.ErrInternal, err.Error())
	}
	if !auth.VerifySignature(client, message, sigBytes) {
		return failure(x402.ErrChannelInvalidSignature, "")
	}

	log.Info().
		Str("channel", logger.TruncateAddress(address)).
		Str("client", logger.TruncateAddress(channel.Client)).
		Uint64("nonce", nonce).
		Uint64("increment", increment).
		Msg("channel_claim.verified")

	blockTime := v.clock().Unix()
	return x402.VerificationResult{
		Valid:     true,
		Signature: claim.Signature,
		Amount:    int64(increment),
		Payer:     channel.Client,
		BlockTime: &blockTime,
	}
}

// decodeBytesLenient accepts base64 (standard or raw/url) or base58, since
// clients disagree on the encoding of signature/channelId fields. Base58
// is tried first because every base58 string is also valid base64.
func decodeBytesLenient(s string) ([]byte, error) {
	if data, err := base58.Decode(s); err == nil {
		return data, nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("x402 solana: cannot decode %q as base64 or base58", s)
}
