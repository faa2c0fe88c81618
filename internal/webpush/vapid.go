package webpush

import (
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Push services reject tokens that expire more than 24 hours out, so the
// requested lifetime is clamped rather than passed through.
const (
	DefaultTokenTTL = 24 * time.Hour
	maxTokenTTL     = 24 * time.Hour
)

// Token builds the signed VAPID bearer token for one delivery: an ES256
// JWT whose audience is the scheme+host of the recipient's relay endpoint.
// A fresh token is built per send; reuse inside the validity window is
// allowed by the relay but never needed here.
func (m *KeyManager) Token(endpoint string, ttl time.Duration) (string, error) {
	if !m.Available() {
		return "", ErrSignerUnavailable
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: bad endpoint %q", ErrSigning, endpoint)
	}

	if ttl <= 0 || ttl > maxTokenTTL {
		ttl = DefaultTokenTTL
	}

	claims := jwt.MapClaims{
		"aud": u.Scheme + "://" + u.Host,
		"exp": time.Now().Add(ttl).Unix(),
		"sub": m.subscriber,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(m.privateKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return signed, nil
}

// AuthorizationHeader formats the Authorization value the relay expects:
// the token plus the sender's public key for signature verification.
func (m *KeyManager) AuthorizationHeader(token string) string {
	return fmt.Sprintf("vapid t=%s, k=%s", token, m.publicKey)
}
