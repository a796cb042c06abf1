package securechannel

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/mcoot/skirmish/internal/dependencies/random"
)

const (
	keySize   = 32
	nonceSize = 24
)

// KeyPair is the server's long-lived x25519 identity
type KeyPair struct {
	Public  [keySize]byte
	Private [keySize]byte
}

// GenerateKeyPair creates a fresh server identity
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Public: *pub, Private: *priv}, nil
}

// KeyPairFromHex derives the key pair from a hex-encoded private key
func KeyPairFromHex(s string) (KeyPair, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return KeyPair{}, fmt.Errorf("decode server key: %w", err)
	}
	if len(raw) != keySize {
		return KeyPair{}, fmt.Errorf("server key must be %d bytes, got %d", keySize, len(raw))
	}
	pub, err := curve25519.X25519(raw, curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, err
	}
	var kp KeyPair
	copy(kp.Private[:], raw)
	copy(kp.Public[:], pub)
	return kp, nil
}

// PublicHex is the public key as clients embed it
func (k KeyPair) PublicHex() string {
	return hex.EncodeToString(k.Public[:])
}

// NaClFactory creates channels using box for the login exchange and secretbox afterwards
type NaClFactory struct {
	keys   KeyPair
	random random.Random
}

// NewNaClFactory creates a factory bound to the server identity
func NewNaClFactory(keys KeyPair, rnd random.Random) *NaClFactory {
	return &NaClFactory{keys: keys, random: rnd}
}

func (f *NaClFactory) NewChannel() Channel {
	return &naclChannel{
		keys:       f.keys,
		random:     f.random,
		sessionKey: f.random.Bytes(SessionKeySize),
	}
}

type naclChannel struct {
	keys       KeyPair
	random     random.Random
	sessionKey []byte

	clientPublic [keySize]byte
	shared       [keySize]byte
	clientNonce  [nonceSize]byte

	established  bool
	streamKey    [keySize]byte
	encryptNonce [nonceSize]byte
	decryptNonce [nonceSize]byte
}

func (c *naclChannel) SessionKey() []byte {
	return c.sessionKey
}

// OpenLogin expects clientPublicKey || box(sessionKey || clientNonce || body)
func (c *naclChannel) OpenLogin(payload []byte) ([]byte, error) {
	if len(payload) < keySize+box.Overhead {
		return nil, ErrShortPayload
	}
	copy(c.clientPublic[:], payload[:keySize])
	box.Precompute(&c.shared, &c.clientPublic, &c.keys.Private)

	nonce, err := deriveNonce(c.clientPublic[:], c.keys.Public[:])
	if err != nil {
		return nil, err
	}
	plain, ok := box.OpenAfterPrecomputation(nil, payload[keySize:], &nonce, &c.shared)
	if !ok {
		return nil, ErrDecrypt
	}
	if len(plain) < SessionKeySize+nonceSize {
		return nil, ErrShortPayload
	}
	if !bytes.Equal(plain[:SessionKeySize], c.sessionKey) {
		return nil, ErrSessionKey
	}
	copy(c.clientNonce[:], plain[SessionKeySize:SessionKeySize+nonceSize])
	return plain[SessionKeySize+nonceSize:], nil
}

// SealLoginResponse returns box(serverNonce || streamKey || body) and switches to secretbox
func (c *naclChannel) SealLoginResponse(payload []byte) ([]byte, error) {
	var serverNonce [nonceSize]byte
	copy(serverNonce[:], c.random.Bytes(nonceSize))
	copy(c.streamKey[:], c.random.Bytes(keySize))

	nonce, err := deriveNonce(c.clientNonce[:], c.clientPublic[:], c.keys.Public[:])
	if err != nil {
		return nil, err
	}

	plain := make([]byte, 0, nonceSize+keySize+len(payload))
	plain = append(plain, serverNonce[:]...)
	plain = append(plain, c.streamKey[:]...)
	plain = append(plain, payload...)

	sealed := box.SealAfterPrecomputation(nil, plain, &nonce, &c.shared)

	c.encryptNonce = serverNonce
	c.decryptNonce = c.clientNonce
	c.established = true
	return sealed, nil
}

func (c *naclChannel) Encrypt(payload []byte) ([]byte, error) {
	if !c.established {
		return nil, ErrNotEstablished
	}
	incrementNonce(&c.encryptNonce)
	return secretbox.Seal(nil, payload, &c.encryptNonce, &c.streamKey), nil
}

func (c *naclChannel) Decrypt(payload []byte) ([]byte, error) {
	if !c.established {
		return nil, ErrNotEstablished
	}
	incrementNonce(&c.decryptNonce)
	plain, ok := secretbox.Open(nil, payload, &c.decryptNonce, &c.streamKey)
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}

// deriveNonce hashes parts into a 24 byte nonce with blake2b
func deriveNonce(parts ...[]byte) ([nonceSize]byte, error) {
	var nonce [nonceSize]byte
	h, err := blake2b.New(nonceSize, nil)
	if err != nil {
		return nonce, err
	}
	for _, p := range parts {
		h.Write(p)
	}
	copy(nonce[:], h.Sum(nil))
	return nonce, nil
}

// incrementNonce adds 2 to the nonce as a little-endian integer.
// Each side only ever uses every other value so the directions never collide.
func incrementNonce(n *[nonceSize]byte) {
	carry := uint16(2)
	for i := 0; i < nonceSize && carry > 0; i++ {
		sum := uint16(n[i]) + carry
		n[i] = byte(sum)
		carry = sum >> 8
	}
}
