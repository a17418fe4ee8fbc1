package crypto

import "github.com/ai-aas/shared-go/trustfabric"

// HashIdentifier returns the hex-encoded SHA-256 digest of s. Used for
// client_id and client_secret storage, and for refresh-token-record lookup
// keys, so the raw values never need to be persisted.
func HashIdentifier(s string) string {
	return trustfabric.HashIdentifier(s)
}

// CanonicalPayload builds the deterministic byte sequence both the signer and
// the verifier compute an HMAC over. See trustfabric.CanonicalPayload.
func CanonicalPayload(method, path, timestamp string, body map[string]any) []byte {
	return trustfabric.CanonicalPayload(method, path, timestamp, body)
}

// SignHMAC computes the hex HMAC-SHA256 of payload keyed by secretHash.
// secretHash is always SHA256(client_secret), never the raw secret: see
// the canonical key-convention decision recorded in DESIGN.md.
func SignHMAC(secretHash string, payload []byte) string {
	return trustfabric.SignHMAC(secretHash, payload)
}

// VerifyHMAC reports whether signature is the correct HMAC-SHA256 of payload
// under secretHash, using a constant-time comparison.
func VerifyHMAC(secretHash string, payload []byte, signature string) bool {
	return trustfabric.VerifyHMAC(secretHash, payload, signature)
}
