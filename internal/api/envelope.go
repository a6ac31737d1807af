package api

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"CoVault/internal/wallet"
)

// Operation names bound into request digests. Binding the operation keeps a
// signature for one endpoint from being replayed against another.
const (
	OpCreate  = "create"
	OpPropose = "propose"
	OpConfirm = "confirm"
	OpRevoke  = "revoke"
	OpExecute = "execute"
)

const signatureSize = ed25519.SignatureSize

// CreateDigest covers a wallet-creation request:
// blake3("create" || creator || nonce || owners... || required || dailyLimit).
func CreateDigest(creator wallet.Address, nonce uint64, owners []wallet.Address, required, dailyLimit uint64) [32]byte {
	buf := make([]byte, 0, len(OpCreate)+32+8+len(owners)*32+16)
	buf = append(buf, OpCreate...)
	buf = append(buf, creator[:]...)
	buf = appendUint64(buf, nonce)

	for _, o := range owners {
		buf = append(buf, o[:]...)
	}

	buf = appendUint64(buf, required)
	buf = appendUint64(buf, dailyLimit)

	return blake3.Sum256(buf)
}

// ProposeDigest covers a proposal:
// blake3("propose" || wallet || caller || nonce || destination || value || payload).
func ProposeDigest(walletAddr, caller wallet.Address, nonce uint64, destination wallet.Address, value uint64, payload []byte) [32]byte {
	buf := make([]byte, 0, len(OpPropose)+32*3+16+len(payload))
	buf = append(buf, OpPropose...)
	buf = append(buf, walletAddr[:]...)
	buf = append(buf, caller[:]...)
	buf = appendUint64(buf, nonce)
	buf = append(buf, destination[:]...)
	buf = appendUint64(buf, value)
	buf = append(buf, payload...)

	return blake3.Sum256(buf)
}

// ActionDigest covers confirm, revoke, and execute:
// blake3(op || wallet || caller || nonce || id).
func ActionDigest(op string, walletAddr, caller wallet.Address, nonce, id uint64) [32]byte {
	buf := make([]byte, 0, len(op)+32*2+16)
	buf = append(buf, op...)
	buf = append(buf, walletAddr[:]...)
	buf = append(buf, caller[:]...)
	buf = appendUint64(buf, nonce)
	buf = appendUint64(buf, id)

	return blake3.Sum256(buf)
}

// Sign produces the hex envelope signature over a digest.
func Sign(priv ed25519.PrivateKey, digest [32]byte) string {
	return hex.EncodeToString(ed25519.Sign(priv, digest[:]))
}

// verifySignature checks the Ed25519 envelope signature over a digest.
// The caller address doubles as the public key.
func verifySignature(caller wallet.Address, digest [32]byte, sigHex string) ([]byte, error) {
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != signatureSize {
		return nil, fmt.Errorf("invalid signature encoding")
	}

	if !ed25519.Verify(caller[:], digest[:], sig) {
		return nil, fmt.Errorf("invalid signature")
	}

	return sig, nil
}

// parseAddress decodes a hex-encoded 32-byte address.
func parseAddress(hexStr string) (wallet.Address, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil || len(b) != 32 {
		return wallet.Address{}, fmt.Errorf("invalid address: %q", hexStr)
	}

	return wallet.AddressFromBytes(b)
}

func appendUint64(buf []byte, v uint64) []byte {
	var num [8]byte
	binary.LittleEndian.PutUint64(num[:], v)

	return append(buf, num[:]...)
}
