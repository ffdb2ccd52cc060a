// Package crypto provides Ed25519 key generation, signing and signature
// verification, with an LRU-backed cache so that repeated verification of
// the same (public key, message, signature) triple is close to free.
package crypto
