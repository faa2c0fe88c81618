// Package webpush implements the Web Push delivery primitives: the VAPID
// signing key, the signed delivery token (RFC 8292) and aes128gcm message
// encryption (RFC 8291).
package webpush

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

var (
	// ErrKeyLoad means the configured private key PEM could not be parsed
	// as a P-256 key. Fatal to the delivery subsystem, not to the process.
	ErrKeyLoad = errors.New("webpush: invalid VAPID private key")
	// ErrSignerUnavailable means no private key is configured. Callers
	// must check Available before starting a broadcast.
	ErrSignerUnavailable = errors.New("webpush: VAPID signer unavailable")
	// ErrSigning means token creation failed despite a loaded key.
	ErrSigning = errors.New("webpush: token signing failed")
	// ErrEncryption means the recipient's key material is malformed.
	// Per-recipient and non-retryable.
	ErrEncryption = errors.New("webpush: invalid recipient key material")
)

// KeyManager holds the sender's P-256 key pair and contact identifier.
// It is loaded once at startup and read-only thereafter, so a single
// instance is safe to share across concurrent dispatches.
type KeyManager struct {
	privateKey *ecdsa.PrivateKey
	publicKey  string // base64url, uncompressed point
	subscriber string
}

// NewKeyManager parses privatePEM (PKCS#8 or SEC1) into a P-256 signing
// key. An empty privatePEM yields a manager in degraded mode: Available
// reports false and every token request fails with ErrSignerUnavailable,
// but construction succeeds so the rest of the service can run.
func NewKeyManager(privatePEM, publicKey, subscriber string) (*KeyManager, error) {
	m := &KeyManager{publicKey: publicKey, subscriber: subscriber}
	if privatePEM == "" {
		return m, nil
	}

	block, _ := pem.Decode([]byte(privatePEM))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrKeyLoad)
	}

	key, err := parsePrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: curve %s, want P-256", ErrKeyLoad, key.Curve.Params().Name)
	}

	m.privateKey = key
	if m.publicKey == "" {
		pub, err := derivePublicKey(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
		}
		m.publicKey = pub
	}
	return m, nil
}

func parsePrivateKey(der []byte) (*ecdsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		ec, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("not an EC private key")
		}
		return ec, nil
	}
	return x509.ParseECPrivateKey(der)
}

func derivePublicKey(key *ecdsa.PrivateKey) (string, error) {
	ecdhKey, err := key.ECDH()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(ecdhKey.PublicKey().Bytes()), nil
}

// Available reports whether a signing key is loaded. When false the whole
// broadcast short-circuits with a delivery-disabled outcome instead of
// erroring per message.
func (m *KeyManager) Available() bool { return m.privateKey != nil }

// PublicKey returns the sender's raw public key, base64url encoded, as it
// appears in the Authorization header's k= parameter.
func (m *KeyManager) PublicKey() string { return m.publicKey }

// Subscriber returns the sender contact identifier used as the token's
// sub claim, e.g. "mailto:admin@schoolbus.ac.kr".
func (m *KeyManager) Subscriber() string { return m.subscriber }
