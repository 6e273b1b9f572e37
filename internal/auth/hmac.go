package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// Header names used by the HMAC-nonce scheme (Kraken wire format).
const (
	headerAPIKey  = "API-Key"
	headerAPISign = "API-Sign"
)

// HMACSigner implements the HMAC-nonce scheme: each private request carries a
// strictly increasing nonce and the signature
//
//	Base64(HMAC-SHA512(secret, path || SHA256(nonce || urlEncodedBody)))
//
// where secret is the base64-decoded API secret, never the raw UTF-8 string.
type HMACSigner struct {
	apiKey string
	secret []byte
	nonces NonceSource
}

// NewHMACSigner decodes the base64 API secret up front; a malformed secret
// fails construction rather than every request.
func NewHMACSigner(apiKey, apiSecret string, nonces NonceSource) (*HMACSigner, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, errors.New("hmac signer requires api key and secret")
	}
	secret, err := base64.StdEncoding.DecodeString(apiSecret)
	if err != nil {
		return nil, errors.Wrap(err, "api secret is not valid base64")
	}
	if nonces == nil {
		nonces = NewClockNonce()
	}
	return &HMACSigner{apiKey: apiKey, secret: secret, nonces: nonces}, nil
}

// Nonce draws the next strictly increasing nonce. The connector places it in
// the form body before signing so the signed payload and the sent payload
// cannot diverge.
func (s *HMACSigner) Nonce() (string, error) {
	return s.nonces.Next()
}

// Sign computes the signature over path and the encoded body. The body must
// already contain the nonce obtained from Nonce.
func (s *HMACSigner) Sign(req *http.Request, path string, body url.Values) error {
	nonce := body.Get("nonce")
	if nonce == "" {
		return errors.New("hmac signing requires a nonce in the request body")
	}

	sig := ComputeSignature(s.secret, path, nonce, body.Encode())
	req.Header.Set(headerAPIKey, s.apiKey)
	req.Header.Set(headerAPISign, sig)
	return nil
}

// ComputeSignature is the pure signing primitive, exposed for verification
// and known-answer testing.
func ComputeSignature(secret []byte, path, nonce, encodedBody string) string {
	inner := sha256.Sum256([]byte(nonce + encodedBody))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(inner[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares an expected signature in constant time.
func VerifySignature(secret []byte, path, nonce, encodedBody, signature string) bool {
	want, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	got, err := base64.StdEncoding.DecodeString(ComputeSignature(secret, path, nonce, encodedBody))
	if err != nil {
		return false
	}
	return hmac.Equal(want, got)
}
