package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrInvalidSignature is returned when a signature does not verify under
// the claimed public key.
var ErrInvalidSignature = errors.New("crypto: invalid signature")

// VerifyCacheSize is the default number of (public key, message, signature)
// verification results kept in memory.
const VerifyCacheSize = 50_000

// KeyPair is an Ed25519 key pair: the public key hex-encoded for
// transport, the secret key as raw ed25519 bytes.
type KeyPair struct {
	PublicKey string
	SecretKey ed25519.PrivateKey
}

// Generate creates a new random Ed25519 key pair.
func Generate() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return &KeyPair{
		PublicKey: hex.EncodeToString(pub),
		SecretKey: priv,
	}, nil
}

// Sign returns the hex-encoded signature of msg under kp's secret key.
func (kp *KeyPair) Sign(msg []byte) string {
	sig := ed25519.Sign(kp.SecretKey, msg)
	return hex.EncodeToString(sig)
}

// Verifier verifies Ed25519 signatures, memoizing results in a bounded LRU
// so that gossip replay of the same operation avoids re-running the
// public-key operation.
type Verifier struct {
	cache *lru.Cache[string, bool]
}

// NewVerifier constructs a Verifier with the given cache capacity. A
// capacity of 0 selects VerifyCacheSize.
func NewVerifier(capacity int) (*Verifier, error) {
	if capacity <= 0 {
		capacity = VerifyCacheSize
	}
	c, err := lru.New[string, bool](capacity)
	if err != nil {
		return nil, fmt.Errorf("crypto: new verify cache: %w", err)
	}
	return &Verifier{cache: c}, nil
}

// Verify checks sigHex against msg under pubKeyHex, consulting and
// populating the verification cache. Returns ErrInvalidSignature when the
// signature does not check out, and the same ErrInvalidSignature when the
// key or signature is not hex of the expected length; both outcomes are
// cached as invalid.
func (v *Verifier) Verify(pubKeyHex, sigHex string, msg []byte) error {
	cacheKey := cacheKey(pubKeyHex, sigHex, msg)
	if ok, found := v.cache.Get(cacheKey); found {
		if ok {
			return nil
		}
		return ErrInvalidSignature
	}

	pub, err := hex.DecodeString(pubKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		v.cache.Add(cacheKey, false)
		return ErrInvalidSignature
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		v.cache.Add(cacheKey, false)
		return ErrInvalidSignature
	}

	ok := ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
	v.cache.Add(cacheKey, ok)
	if !ok {
		return ErrInvalidSignature
	}
	return nil
}

func cacheKey(pubKeyHex, sigHex string, msg []byte) string {
	h := sha256.New()
	h.Write([]byte(pubKeyHex))
	h.Write([]byte{0})
	h.Write([]byte(sigHex))
	h.Write([]byte{0})
	h.Write(msg)
	return hex.EncodeToString(h.Sum(nil))
}
