// Package auth implements per-venue request authentication strategies.
// A connector composes a Signer so the signing scheme can change per venue
// without touching connector call sites.
package auth

import (
	"net/http"
	"net/url"
)

// Signer attaches venue authentication to an outgoing private request.
// path is the request path used in signature computation (some schemes sign
// the path, bearer schemes ignore it), body is the form payload about to be
// sent, already including any signer-provided fields such as the nonce.
type Signer interface {
	Sign(req *http.Request, path string, body url.Values) error
}

// None is used for public endpoints that need no authentication.
type None struct{}

func (None) Sign(*http.Request, string, url.Values) error { return nil }
