package webpush

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	saltLen       = 16
	cekLen        = 16 // AES-128
	nonceLen      = 12
	authSecretLen = 16
	recordSize    = 4096
)

// Encrypt seals plaintext for exactly one recipient using the aes128gcm
// content coding of RFC 8291. Every call generates a fresh ephemeral P-256
// key pair and a fresh 16-byte salt; reusing either across messages would
// break confidentiality, so nothing here is cached. The output is the
// self-describing blob the push relay forwards unread:
//
//	salt(16) || record-size(4, BE) || keylen(1) || ephemeral pub(65) || sealed record
//
// Malformed recipient material (bad base64url, wrong length, point not on
// the curve) fails with ErrEncryption before any network activity.
func Encrypt(plaintext []byte, p256dh, auth string) ([]byte, error) {
	uaPublic, err := decodeKeyParam(p256dh)
	if err != nil {
		return nil, fmt.Errorf("%w: p256dh: %v", ErrEncryption, err)
	}
	authSecret, err := decodeKeyParam(auth)
	if err != nil {
		return nil, fmt.Errorf("%w: auth: %v", ErrEncryption, err)
	}
	if len(authSecret) != authSecretLen {
		return nil, fmt.Errorf("%w: auth secret is %d bytes, want %d", ErrEncryption, len(authSecret), authSecretLen)
	}

	curve := ecdh.P256()
	recipient, err := curve.NewPublicKey(uaPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: p256dh: %v", ErrEncryption, err)
	}

	ephemeral, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("webpush: ephemeral key generation: %w", err)
	}
	sharedSecret, err := ephemeral.ECDH(recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: ECDH agreement: %v", ErrEncryption, err)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("webpush: salt generation: %w", err)
	}

	ephemeralPublic := ephemeral.PublicKey().Bytes()
	cek, nonce := deriveKeys(sharedSecret, authSecret, salt, uaPublic, ephemeralPublic)

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, fmt.Errorf("webpush: cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("webpush: cipher init: %w", err)
	}

	// Single record: plaintext plus the last-record padding delimiter.
	record := make([]byte, 0, len(plaintext)+1)
	record = append(record, plaintext...)
	record = append(record, 0x02)

	header := make([]byte, 0, saltLen+5+len(ephemeralPublic))
	header = append(header, salt...)
	header = binary.BigEndian.AppendUint32(header, recordSize)
	header = append(header, byte(len(ephemeralPublic)))
	header = append(header, ephemeralPublic...)

	return gcm.Seal(header, nonce, record, nil), nil
}

// deriveKeys runs the RFC 8291 key schedule: an auth-secret extract plus
// "WebPush: info" expand yields the input keying material, then the salt
// extract yields the content-encryption key and nonce.
func deriveKeys(sharedSecret, authSecret, salt, uaPublic, asPublic []byte) (cek, nonce []byte) {
	prkKey := hkdf.Extract(sha256.New, sharedSecret, authSecret)

	keyInfo := make([]byte, 0, 14+len(uaPublic)+len(asPublic))
	keyInfo = append(keyInfo, []byte("WebPush: info\x00")...)
	keyInfo = append(keyInfo, uaPublic...)
	keyInfo = append(keyInfo, asPublic...)
	ikm := expand(prkKey, keyInfo, sha256.Size)

	prk := hkdf.Extract(sha256.New, ikm, salt)
	cek = expand(prk, []byte("Content-Encoding: aes128gcm\x00"), cekLen)
	nonce = expand(prk, []byte("Content-Encoding: nonce\x00"), nonceLen)
	return cek, nonce
}

func expand(prk, info []byte, n int) []byte {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), out); err != nil {
		// Only reachable if n exceeds the HKDF output limit, which the
		// fixed lengths above never do.
		panic(err)
	}
	return out
}

// decodeKeyParam accepts both padded and unpadded base64url, since clients
// are inconsistent about stripping padding.
func decodeKeyParam(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
