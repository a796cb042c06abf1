package securechannel

import (
	"errors"

	"github.com/mcoot/skirmish/internal/dependencies/random"
)

// SessionKeySize is the length of the key sent in ServerHello
const SessionKeySize = 24

var (
	ErrDecrypt        = errors.New("secure channel: decryption failed")
	ErrSessionKey     = errors.New("secure channel: session key mismatch")
	ErrNotEstablished = errors.New("secure channel: key exchange not complete")
	ErrShortPayload   = errors.New("secure channel: payload too short")
)

// Channel is the server side of one connection's encryption.
// Calls follow the handshake order: SessionKey, OpenLogin, SealLoginResponse,
// then any number of Encrypt/Decrypt.
type Channel interface {
	// SessionKey is the per-connection key sent in ServerHello
	SessionKey() []byte
	// OpenLogin recovers the plaintext Login payload
	OpenLogin(payload []byte) ([]byte, error)
	// SealLoginResponse protects LoginOk or LoginFailed and completes the key exchange
	SealLoginResponse(payload []byte) ([]byte, error)
	Encrypt(payload []byte) ([]byte, error)
	Decrypt(payload []byte) ([]byte, error)
}

// Factory creates a Channel per accepted connection
type Factory interface {
	NewChannel() Channel
}

// PlainFactory creates channels that pass payloads through unchanged
type PlainFactory struct {
	random random.Random
}

// NewPlainFactory is used when crypto is disabled
func NewPlainFactory(rnd random.Random) *PlainFactory {
	return &PlainFactory{random: rnd}
}

func (f *PlainFactory) NewChannel() Channel {
	return &plainChannel{sessionKey: f.random.Bytes(SessionKeySize)}
}

type plainChannel struct {
	sessionKey []byte
}

func (p *plainChannel) SessionKey() []byte { return p.sessionKey }
func (p *plainChannel) OpenLogin(payload []byte) ([]byte, error) { return payload, nil }
func (p *plainChannel) SealLoginResponse(payload []byte) ([]byte, error) { return payload, nil }
func (p *plainChannel) Encrypt(payload []byte) ([]byte, error) { return payload, nil }
func (p *plainChannel) Decrypt(payload []byte) ([]byte, error) { return payload, nil }
