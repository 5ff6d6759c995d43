package auth

import (
	"net/http"
	"strings"
)

// AccessTokenQueryParam carries the token for clients that cannot set headers, such as EventSource.
const AccessTokenQueryParam = "access_token"

// TokenFromRequest extracts the bearer token from the Authorization header, falling back to
// the access_token query parameter.
func TokenFromRequest(r *http.Request) (string, error) {
	if r == nil {
		return "", ErrMissingSessionToken
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", ErrInvalidSessionToken
		}
		return strings.TrimSpace(parts[1]), nil
	}
	if token := strings.TrimSpace(r.URL.Query().Get(AccessTokenQueryParam)); token != "" {
		return token, nil
	}
	return "", ErrMissingSessionToken
}

// ValidateRequest extracts the request token and validates it.
func (i *TokenIssuer) ValidateRequest(r *http.Request) (SessionClaims, error) {
	token, err := TokenFromRequest(r)
	if err != nil {
		return SessionClaims{}, err
	}
	return i.ValidateToken(token)
}
