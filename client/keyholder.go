package client

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"

	"CoVault/internal/wallet"
)

// Keyholder is one signing identity: an Ed25519 keypair whose public key
// doubles as the on-ledger address.
type Keyholder struct {
	priv ed25519.PrivateKey
	addr wallet.Address
}

// NewKeyholder generates a fresh random keypair.
func NewKeyholder() *Keyholder {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)

	k := &Keyholder{priv: priv}
	copy(k.addr[:], pub)

	return k
}

// KeyholderFromSeed derives a keypair from a 32-byte seed.
func KeyholderFromSeed(seed []byte) *Keyholder {
	priv := ed25519.NewKeyFromSeed(seed)

	k := &Keyholder{priv: priv}
	copy(k.addr[:], priv.Public().(ed25519.PublicKey))

	return k
}

// Address returns the keyholder's address.
func (k *Keyholder) Address() wallet.Address {
	return k.addr
}

// hexAddr returns the address hex-encoded for URLs and JSON fields.
func (k *Keyholder) hexAddr() string {
	return hex.EncodeToString(k.addr[:])
}

// newNonce draws a random envelope nonce.
func newNonce() uint64 {
	var buf [8]byte
	rand.Read(buf[:])

	return binary.LittleEndian.Uint64(buf[:])
}
