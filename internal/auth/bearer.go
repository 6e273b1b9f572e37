package auth

import (
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// BearerSigner attaches a previously obtained session token as an
// Authorization header. No per-request computation is performed; session
// refresh is delegated to the caller re-invoking Connect.
type BearerSigner struct {
	token string
}

func NewBearerSigner(token string) (*BearerSigner, error) {
	if token == "" {
		return nil, errors.New("bearer signer requires a session token")
	}
	return &BearerSigner{token: token}, nil
}

func (s *BearerSigner) Sign(req *http.Request, _ string, _ url.Values) error {
	req.Header.Set("Authorization", "Bearer "+s.token)
	return nil
}
