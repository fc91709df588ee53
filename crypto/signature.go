package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/ripemd160"
)

const (
	compactSigLength = 65
	checksumLength   = 4
)

// PublicKeyPrefixes are the address prefixes accepted for base58 keys.
var PublicKeyPrefixes = []string{"STM", "TST"}

var (
	errInvalidPublicKey = errors.New("invalid public key")
	errInvalidChecksum  = errors.New("public key checksum mismatch")
)

// ParsePublicKey decodes a secp256k1 public key given either as hex (33 or
// 65 bytes) or as a prefixed base58 string carrying a ripemd160 checksum.
func ParsePublicKey(s string) (*btcec.PublicKey, error) {
	for _, prefix := range PublicKeyPrefixes {
		if strings.HasPrefix(s, prefix) {
			return parseBase58PublicKey(s[len(prefix):])
		}
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, errInvalidPublicKey
	}
	return btcec.ParsePubKey(raw)
}

func parseBase58PublicKey(s string) (*btcec.PublicKey, error) {
	raw := base58.Decode(s)
	if len(raw) <= checksumLength {
		return nil, errInvalidPublicKey
	}
	key, sum := raw[:len(raw)-checksumLength], raw[len(raw)-checksumLength:]
	h := ripemd160.New()
	h.Write(key)
	if !bytes.Equal(h.Sum(nil)[:checksumLength], sum) {
		return nil, errInvalidChecksum
	}
	return btcec.ParsePubKey(key)
}

// EncodePublicKey renders a compressed key in the prefixed base58 form.
func EncodePublicKey(prefix string, pub *btcec.PublicKey) string {
	key := pub.SerializeCompressed()
	h := ripemd160.New()
	h.Write(key)
	return prefix + base58.Encode(append(key, h.Sum(nil)[:checksumLength]...))
}

// VerifySignature checks sigHex over payload. When isHash is set, payload is
// the hex form of an already computed sha256 digest. Signatures are accepted
// in 65-byte compact (recoverable) form or DER. Any malformed input yields
// false.
func VerifySignature(payload []byte, isHash bool, sigHex, pubKey string) bool {
	pub, err := ParsePublicKey(pubKey)
	if err != nil {
		return false
	}
	var digest []byte
	if isHash {
		if digest, err = hex.DecodeString(string(payload)); err != nil || len(digest) != 32 {
			return false
		}
	} else {
		sum := sha256Sum(payload)
		digest = sum[:]
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	if len(sig) == compactSigLength {
		recovered, _, err := ecdsa.RecoverCompact(sig, digest)
		if err != nil {
			return false
		}
		return recovered.IsEqual(pub)
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(digest, pub)
}
