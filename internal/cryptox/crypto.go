// Package cryptox holds the content digest used to address local payloads.
package cryptox

import (
	"encoding/hex"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"
)

// DigestSize is the length in bytes of a content digest.
const DigestSize = blake2b.Size256

// NewHasher returns an unkeyed BLAKE2b-256 hash.
func NewHasher() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// only possible with an oversized key
		panic(err)
	}
	return h
}

// Digest hashes everything read from r and returns the hex digest together
// with the number of bytes consumed.
func Digest(r io.Reader) (string, int64, error) {
	h := NewHasher()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// DigestBytes is Digest for an in-memory payload.
func DigestBytes(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ValidDigest reports whether s looks like a hex digest produced here.
func ValidDigest(s string) bool {
	if len(s) != DigestSize*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
