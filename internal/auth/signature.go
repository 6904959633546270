// Package auth holds the raw Ed25519 signature-verification primitive
// shared by anything in this service that checks a client-supplied
// signature against a Solana public key — currently the channel-claim
// verifier (C6).
package auth

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// VerifySignature reports whether signature is a valid Ed25519 signature
// of message under signer, all three already decoded to their native
// forms (base58 pubkey, raw message bytes, raw 64-byte signature).
func VerifySignature(signer solana.PublicKey, message []byte, signatureBytes []byte) bool {
	if len(signatureBytes) != 64 {
		return false
	}
	sig := solana.SignatureFromBytes(signatureBytes)
	return sig.Verify(signer, message)
}

// VerifySignatureBase58 is a convenience wrapper taking a base58-encoded
// signer address, used by callers that haven't already parsed the pubkey.
func VerifySignatureBase58(signerBase58 string, message []byte, signatureBytes []byte) (bool, error) {
	signer, err := solana.PublicKeyFromBase58(signerBase58)
	if err != nil {
		return false, fmt.Errorf("auth: invalid signer address: %w", err)
	}
	return VerifySignature(signer, message, signatureBytes), nil
}
