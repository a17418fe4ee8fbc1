package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/google/uuid"
)

func newBodyReader(body []byte) io.Reader {
	return bytes.NewReader(body)
}

// decodeBody parses an HTTP body as the JSON object the signer canonicalized
// it as. A non-object or empty body canonicalizes to an empty object, which
// matches what internal/crypto.CanonicalPayload does for a nil body.
func decodeBody(body []byte) map[string]any {
	if len(body) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil
	}
	return m
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
