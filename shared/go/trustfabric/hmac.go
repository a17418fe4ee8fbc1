// Package trustfabric implements the request-signing and token primitives
// every service's HMAC and bearer gates verify against: canonical request
// signing, HMAC verification, and the compact signed-token format used for
// user access/refresh tokens. It has no dependency on any one service's
// storage layer, so identity-service, content-service, and rag-service all
// import it rather than each re-implementing signature verification.
package trustfabric

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
)

// HashIdentifier returns the hex-encoded SHA-256 digest of s. Used for
// client_id and client_secret storage, and for refresh-token-record lookup
// keys, so the raw values never need to be persisted.
func HashIdentifier(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// CanonicalPayload builds the deterministic byte sequence both the signer and
// the verifier compute an HMAC over: JSON({method, path, timestamp, body}).
// body is normalized to an empty object when nil so "no body" always signs
// identically regardless of whether the caller passed nil or map[string]any{}.
func CanonicalPayload(method, path, timestamp string, body map[string]any) []byte {
	if body == nil {
		body = map[string]any{}
	}
	payload := struct {
		Method    string         `json:"method"`
		Path      string         `json:"path"`
		Timestamp string         `json:"timestamp"`
		Body      map[string]any `json:"body"`
	}{
		Method:    method,
		Path:      path,
		Timestamp: timestamp,
		Body:      body,
	}
	// encoding/json sorts map keys when marshaling, so nested body keys are
	// already canonical; only the top-level struct field order matters and
	// that's fixed by the struct definition above.
	encoded, _ := json.Marshal(payload)
	return encoded
}

// SignHMAC computes the hex HMAC-SHA256 of payload keyed by secretHash.
// secretHash is always SHA256(client_secret), never the raw secret - every
// signer and verifier across services agrees on this key convention.
func SignHMAC(secretHash string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secretHash))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC reports whether signature is the correct HMAC-SHA256 of payload
// under secretHash, using a constant-time comparison.
func VerifyHMAC(secretHash string, payload []byte, signature string) bool {
	expected := SignHMAC(secretHash, payload)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
