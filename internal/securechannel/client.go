package securechannel

import (
	"crypto/rand"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// Client is the peer side of a Channel, used by test clients and tooling
type Client interface {
	SealLogin(sessionKey, body []byte) ([]byte, error)
	OpenLoginResponse(payload []byte) ([]byte, error)
	Encrypt(payload []byte) ([]byte, error)
	Decrypt(payload []byte) ([]byte, error)
}

// NewPlainClient pairs with PlainFactory channels
func NewPlainClient() Client {
	return plainClient{}
}

type plainClient struct{}

func (plainClient) SealLogin(_, body []byte) ([]byte, error) { return body, nil }
func (plainClient) OpenLoginResponse(payload []byte) ([]byte, error) { return payload, nil }
func (plainClient) Encrypt(payload []byte) ([]byte, error) { return payload, nil }
func (plainClient) Decrypt(payload []byte) ([]byte, error) { return payload, nil }

// NaClClient pairs with NaClFactory channels
type NaClClient struct {
	serverPublic [keySize]byte
	public       [keySize]byte
	private      [keySize]byte
	shared       [keySize]byte
	nonce        [nonceSize]byte

	established  bool
	streamKey    [keySize]byte
	encryptNonce [nonceSize]byte
	decryptNonce [nonceSize]byte
}

// NewNaClClient creates a client with a fresh ephemeral key pair
func NewNaClClient(serverPublic [keySize]byte) (*NaClClient, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	c := &NaClClient{serverPublic: serverPublic, public: *pub, private: *priv}
	box.Precompute(&c.shared, &c.serverPublic, &c.private)
	if _, err := rand.Read(c.nonce[:]); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *NaClClient) SealLogin(sessionKey, body []byte) ([]byte, error) {
	nonce, err := deriveNonce(c.public[:], c.serverPublic[:])
	if err != nil {
		return nil, err
	}
	plain := make([]byte, 0, len(sessionKey)+nonceSize+len(body))
	plain = append(plain, sessionKey...)
	plain = append(plain, c.nonce[:]...)
	plain = append(plain, body...)

	out := append([]byte(nil), c.public[:]...)
	return box.SealAfterPrecomputation(out, plain, &nonce, &c.shared), nil
}

func (c *NaClClient) OpenLoginResponse(payload []byte) ([]byte, error) {
	nonce, err := deriveNonce(c.nonce[:], c.public[:], c.serverPublic[:])
	if err != nil {
		return nil, err
	}
	plain, ok := box.OpenAfterPrecomputation(nil, payload, &nonce, &c.shared)
	if !ok {
		return nil, ErrDecrypt
	}
	if len(plain) < nonceSize+keySize {
		return nil, ErrShortPayload
	}
	copy(c.decryptNonce[:], plain[:nonceSize])
	copy(c.streamKey[:], plain[nonceSize:nonceSize+keySize])
	c.encryptNonce = c.nonce
	c.established = true
	return plain[nonceSize+keySize:], nil
}

func (c *NaClClient) Encrypt(payload []byte) ([]byte, error) {
	if !c.established {
		return nil, ErrNotEstablished
	}
	incrementNonce(&c.encryptNonce)
	return secretbox.Seal(nil, payload, &c.encryptNonce, &c.streamKey), nil
}

func (c *NaClClient) Decrypt(payload []byte) ([]byte, error) {
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
