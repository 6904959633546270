package x402

import "time"

// PaymentRequirement is what an origin demands before serving a resource.
type PaymentRequirement struct {
	Scheme            string            `json:"scheme"`
	Network           string            `json:"network"`
	MaxAmountRequired string            `json:"maxAmountRequired"` // decimal string, smallest unit
	Resource          string            `json:"resource"`
	PayTo             string            `json:"payTo"`
	Asset             string            `json:"asset"`
	MaxTimeoutSeconds int               `json:"maxTimeoutSeconds"`
	Description       string            `json:"description,omitempty"`
	MimeType          string            `json:"mimeType,omitempty"`
	OutputSchema      map[string]any    `json:"outputSchema,omitempty"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// PaymentRequirementsDocument is the full 402 response body.
type PaymentRequirementsDocument struct {
	ProtocolVersion int                  `json:"protocolVersion"`
	Accepts         []PaymentRequirement `json:"accepts"`
	Error           string               `json:"error,omitempty"`
}

// ExactPayload is the scheme-specific payload for scheme="exact".
type ExactPayload struct {
	Signature string `json:"signature"`
}

// ChannelPayload is the scheme-specific payload for scheme="channel".
type ChannelPayload struct {
	ChannelID string `json:"channelId"`
	Amount    string `json:"amount"` // decimal string, smallest unit
	Nonce     string `json:"nonce"`  // decimal string
	Expiry    string `json:"expiry,omitempty"`
	Signature string `json:"signature"` // base64, 64-byte Ed25519
}

// PaymentProof is the decoded X-PAYMENT header. Exactly one of Exact/Channel
// is populated, chosen by Scheme.
type PaymentProof struct {
	ProtocolVersion int             `json:"x402Version"`
	Scheme          string          `json:"scheme"`
	Network         string          `json:"network"`
	Exact           *ExactPayload   `json:"-"`
	Channel         *ChannelPayload `json:"-"`
}

// TransferRecord is the balance-delta parser's (C3) output: one matched
// credit/debit pair from a parsed transaction.
type TransferRecord struct {
	Source      string
	Destination string
	Authority   string
	Amount      int64
	Mint        string
}

// ChannelStatus is the on-chain lifecycle state of a settlement channel.
type ChannelStatus uint8

const (
	ChannelOpen ChannelStatus = iota
	ChannelClosed
	ChannelDisputed
)

func (s ChannelStatus) String() string {
	switch s {
	case ChannelOpen:
		return "Open"
	case ChannelClosed:
		return "Closed"
	case ChannelDisputed:
		return "Disputed"
	default:
		return "Unknown"
	}
}

// ChannelRecord is on-chain settlement-channel state as read from a
// program-derived account; byte layout is fixed (see pkg/x402/solana's
// channel decoder and §6's 170-byte layout).
type ChannelRecord struct {
	Address       string
	Client        string
	Server        string
	ClientDeposit uint64
	ServerClaimed uint64
	CreditLimit   uint64
	Nonce         uint64
	Status        ChannelStatus
	ChannelExpiry int64
}

// VerificationResult is the outcome of a verification attempt.
type VerificationResult struct {
	Valid       bool
	ErrorKind   ErrorKind
	ErrorDetail string
	Transfer    *TransferRecord
	Signature   string
	Amount      int64 // base units actually credited toward the requirement
	Payer       string
	BlockTime   *int64
	Slot        *uint64
	Debug       map[string]any
}

// PaymentInfo is attached to the request context by the payment middleware
// (C8) on a successful verification, for the downstream handler to inspect.
type PaymentInfo struct {
	Signature string
	Amount    int64
	Payer     string
	BlockTime *int64
	Slot      *uint64
}

// PaymentReceipt is emitted (base64-JSON) in the X-PAYMENT-RESPONSE header
// and, for the facilitator, persisted to the receipt archive.
type PaymentReceipt struct {
	Signature string  `json:"signature"`
	Network   string  `json:"network"`
	Amount    int64   `json:"amount"`
	Timestamp int64   `json:"timestamp"` // milliseconds since epoch
	Status    string  `json:"status"`    // always "verified"
	BlockTime *int64  `json:"blockTime,omitempty"`
	Slot      *uint64 `json:"slot,omitempty"`
}

// VerifyOptions tunes a single verification call.
type VerifyOptions struct {
	MaxAgeMs          int64
	SkipReplayCheck   bool
	MinClaimIncrement uint64
	Resource          string
}

// DefaultVerifyOptions returns the options implied by a requirement's own
// maxTimeoutSeconds, per §4.3/§4.4's TTL policy.
func DefaultVerifyOptions(requirement PaymentRequirement) VerifyOptions {
	timeout := requirement.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultMaxTimeoutSeconds
	}
	return VerifyOptions{
		MaxAgeMs: int64(timeout) * int64(time.Second/time.Millisecond),
		Resource: requirement.Resource,
	}
}

// ReplayTTL computes the TTL a replay entry must carry for a given
// requirement, per §4.4: never below MinReplayTTL.
func ReplayTTL(requirement PaymentRequirement) time.Duration {
	timeout := requirement.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultMaxTimeoutSeconds
	}
	ttl := time.Duration(timeout) * time.Second
	if ttl < MinReplayTTL {
		return MinReplayTTL
	}
	return ttl
}
