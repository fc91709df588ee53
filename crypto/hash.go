// Package crypto holds the content hash and signature primitives exposed to
// contracts and used for cross-node result verification.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hex returns the lowercase hex sha256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256HexString is SHA256Hex for strings.
func SHA256HexString(s string) string {
	return SHA256Hex([]byte(s))
}

// ChainHash folds a nested call's content hash into its parent's hash.
func ChainHash(parent, child string) string {
	return SHA256HexString(parent + child)
}

// LegacyChainHash is the pre-fork combination: plain hex concatenation.
// Historical blocks carry hashes produced this way, so it must not change.
func LegacyChainHash(parent, child string) string {
	return parent + child
}

func sha256Sum(data []byte) [32]byte {
	return sha256.Sum256(data)
}
