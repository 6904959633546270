package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// wireProof mirrors PaymentProof on the wire, where the scheme-specific
// payload is an untyped object until Scheme tells us how to decode it.
type wireProof struct {
	ProtocolVersion int             `json:"x402Version"`
	Scheme          string          `json:"scheme"`
	Network         string          `json:"network"`
	Payload         json.RawMessage `json:"payload"`
}

// DecodeProof decodes a raw X-PAYMENT header value into a PaymentProof.
// It accepts both standard and raw (unpadded) base64, per clients that
// strip padding; any other structural failure is ErrInvalidHeader.
func DecodeProof(header string) (*PaymentProof, error) {
	if header == "" {
		return nil, NewVerificationError(ErrInvalidHeader, fmt.Errorf("empty X-PAYMENT header"))
	}

	data, err := decodeBase64Lenient(header)
	if err != nil {
		return nil, NewVerificationError(ErrInvalidHeader, fmt.Errorf("decode base64: %w", err))
	}

	var wire wireProof
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, NewVerificationError(ErrInvalidHeader, fmt.Errorf("decode json: %w", err))
	}

	if wire.ProtocolVersion != ProtocolVersion {
		return nil, NewVerificationError(ErrUnsupportedProtocolVersion,
			fmt.Errorf("x402Version %d unsupported", wire.ProtocolVersion))
	}

	proof := &PaymentProof{
		ProtocolVersion: wire.ProtocolVersion,
		Scheme:          wire.Scheme,
		Network:         wire.Network,
	}

	switch wire.Scheme {
	case SchemeExact:
		var p ExactPayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil || p.Signature == "" {
			return nil, NewVerificationError(ErrInvalidHeader, fmt.Errorf("malformed exact payload"))
		}
		proof.Exact = &p
	case SchemeChannel:
		var p ChannelPayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil ||
			p.ChannelID == "" || p.Amount == "" || p.Nonce == "" || p.Signature == "" {
			return nil, NewVerificationError(ErrInvalidHeader, fmt.Errorf("malformed channel payload"))
		}
		proof.Channel = &p
	default:
		return nil, NewVerificationError(ErrUnsupportedScheme, fmt.Errorf("scheme %q unsupported", wire.Scheme))
	}

	return proof, nil
}

// decodeBase64Lenient tries standard then raw (no-padding) base64, both
// standard and URL alphabets, since clients disagree on which to emit.
func decodeBase64Lenient(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		} else {
			lastErr = err
		}
	}
	return nil, lastErr
}

// EncodeRequirementsDocument serializes a PaymentRequirementsDocument for
// a 402 response body.
func EncodeRequirementsDocument(doc PaymentRequirementsDocument) ([]byte, error) {
	doc.ProtocolVersion = ProtocolVersion
	return json.Marshal(doc)
}

// EncodeReceipt base64-encodes a PaymentReceipt for the X-PAYMENT-RESPONSE
// header, using unpadded URL-safe base64 (the canonical encode direction;
// decode stays lenient for interop).
func EncodeReceipt(receipt PaymentReceipt) (string, error) {
	data, err := json.Marshal(receipt)
	if err != nil {
		return "", fmt.Errorf("x402: marshal receipt: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}
