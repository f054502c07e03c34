package solana

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ErrKeyDestroyed is returned when signing with key material that has already
// been zeroed.
var ErrKeyDestroyed = errors.New("key material destroyed")

// KeyMaterial owns a signing key for the duration of a single request.
// Call Destroy (usually deferred) as soon as the key is no longer needed.
type KeyMaterial struct {
	mu        sync.Mutex
	priv      []byte
	pub       solana.PublicKey
	destroyed bool
}

// ParseKeyMaterial decodes a base58 64-byte ed25519 private key.
// The error never echoes the input.
func ParseKeyMaterial(encoded string) (*KeyMaterial, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("private key is not valid base58")
	}
	if len(raw) != ed25519.PrivateKeySize {
		zero(raw)
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}

	// The second half of an ed25519 private key is its public key. Check it
	// matches the seed so a corrupted key fails here, not at signing time.
	derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	defer zero(derived)
	if !ed25519.PublicKey(derived[ed25519.SeedSize:]).Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
		zero(raw)
		return nil, fmt.Errorf("private key public half does not match its seed")
	}

	return &KeyMaterial{
		priv: raw,
		pub:  solana.PublicKeyFromBytes(raw[ed25519.SeedSize:]),
	}, nil
}

// PublicKey returns the address derived from the key.
func (k *KeyMaterial) PublicKey() solana.PublicKey {
	return k.pub
}

// Sign signs message with the private key.
func (k *KeyMaterial) Sign(message []byte) (solana.Signature, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.destroyed {
		return solana.Signature{}, ErrKeyDestroyed
	}
	var sig solana.Signature
	copy(sig[:], ed25519.Sign(ed25519.PrivateKey(k.priv), message))
	return sig, nil
}

// Destroy overwrites the private key with zeros. Safe to call more than once.
func (k *KeyMaterial) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	zero(k.priv)
	k.destroyed = true
}

// Destroyed reports whether Destroy has been called.
func (k *KeyMaterial) Destroyed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.destroyed
}

// String only ever exposes the public address.
func (k *KeyMaterial) String() string {
	return "KeyMaterial(" + k.pub.String() + ")"
}

// LogValue keeps the private key out of structured logs.
func (k *KeyMaterial) LogValue() slog.Value {
	return slog.StringValue(k.pub.String())
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
