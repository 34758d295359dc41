// Package auth implements the Ed25519 challenge/response handshake the
// mirror host serves inline while bulk video/audio traffic is flowing.
package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

const (
	pemBlockType = "PRIVATE KEY"
	seedOffset   = 16
	seedSize     = ed25519.SeedSize // 32
	minDERLen    = seedOffset + seedSize

	// ChallengeSize is the expected length of a signed challenge.
	ChallengeSize = 32
	// SignatureSize is the length of a detached Ed25519 signature.
	SignatureSize = ed25519.SignatureSize // 64
)

var (
	// ErrKeyNotLoaded is returned by Sign when called before LoadPEM.
	ErrKeyNotLoaded = errors.New("auth: signing key not loaded")
	// ErrBadChallengeSize is returned by Sign for anything but a 32-byte challenge.
	ErrBadChallengeSize = errors.New("auth: challenge must be 32 bytes")
	// ErrBadPEM covers any malformed PEM/DER input to LoadPEM.
	ErrBadPEM = errors.New("auth: invalid private key PEM")
)

// Authenticator holds an Ed25519 signing key, loaded once at startup and
// immutable for the life of the process. The zero value has no key loaded.
type Authenticator struct {
	key ed25519.PrivateKey
}

// LoadPEM parses a PKCS#8 "PRIVATE KEY" PEM block leniently: it only
// strips whitespace from the base64 body, then lifts the 32-byte Ed25519
// seed out of DER offset 16..48 without attempting a full DER parse. This
// matches the lenient parser the device-side peer uses for the same key
// format.
func (a *Authenticator) LoadPEM(pemData string) error {
	seed, err := parseSeed(pemData)
	if err != nil {
		return err
	}
	a.key = ed25519.NewKeyFromSeed(seed)
	return nil
}

func parseSeed(pemData string) ([]byte, error) {
	block, _ := pem.Decode([]byte(pemData))
	var body string
	if block != nil && block.Type == pemBlockType {
		return extractSeed(block.Bytes)
	}

	// Fall back to manual marker search: the encoder some peers use emits
	// PEM without a trailing newline before the END marker, which the
	// standard library's pem.Decode rejects outright.
	const begin = "-----BEGIN " + pemBlockType + "-----"
	const end = "-----END " + pemBlockType + "-----"
	start := strings.Index(pemData, begin)
	stop := strings.Index(pemData, end)
	if start < 0 || stop < 0 || stop < start {
		return nil, fmt.Errorf("%w: missing BEGIN/END %s markers", ErrBadPEM, pemBlockType)
	}
	body = pemData[start+len(begin) : stop]
	body = stripWhitespace(body)

	der, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode: %v", ErrBadPEM, err)
	}
	return extractSeed(der)
}

func extractSeed(der []byte) ([]byte, error) {
	if len(der) < minDERLen {
		return nil, fmt.Errorf("%w: DER body too short (%d bytes, need >= %d)", ErrBadPEM, len(der), minDERLen)
	}
	seed := make([]byte, seedSize)
	copy(seed, der[seedOffset:seedOffset+seedSize])
	return seed, nil
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsKeyLoaded reports whether a signing key has been loaded.
func (a *Authenticator) IsKeyLoaded() bool {
	return len(a.key) == ed25519.PrivateKeySize
}

// Sign produces a detached 64-byte Ed25519 signature over a 32-byte
// challenge. Key material never appears in the returned error.
func (a *Authenticator) Sign(challenge []byte) ([]byte, error) {
	if !a.IsKeyLoaded() {
		return nil, ErrKeyNotLoaded
	}
	if len(challenge) != ChallengeSize {
		return nil, ErrBadChallengeSize
	}
	return ed25519.Sign(a.key, challenge), nil
}

// PublicKey returns the public half of the loaded key, or nil if no key
// is loaded.
func (a *Authenticator) PublicKey() ed25519.PublicKey {
	if !a.IsKeyLoaded() {
		return nil
	}
	return a.key.Public().(ed25519.PublicKey)
}
