package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignatureHeader carries the HMAC of the raw webhook body.
const SignatureHeader = "X-Line-Signature"

// ValidateSignature checks the base64 HMAC-SHA256 of body keyed by the channel secret.
func ValidateSignature(channelSecret string, body []byte, signature string) bool {
	if signature == "" || channelSecret == "" {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	return hmac.Equal(decoded, mac.Sum(nil))
}

// Sign computes the signature LINE would send for body. Used by tests and local tooling.
func Sign(channelSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
