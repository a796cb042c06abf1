package testutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/mcoot/skirmish/internal/protocol"
	"github.com/mcoot/skirmish/internal/securechannel"
)

// Client is a minimal game client for driving a server over TCP in tests
type Client struct {
	conn       net.Conn
	channel    securechannel.Client
	sessionKey []byte
	registry   protocol.Registry
}

// Dial connects to addr; channel must match the server's secure channel
func Dial(addr string, channel securechannel.Client) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, channel: channel, registry: protocol.ServerMessages()}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// WriteFrame writes a raw frame
func (c *Client) WriteFrame(msgType uint16, payload []byte) error {
	f, err := protocol.NewFrame(msgType, 1, payload)
	if err != nil {
		return err
	}
	_, err = c.conn.Write(f.Bytes())
	return err
}

// WriteRaw writes b to the socket unframed
func (c *Client) WriteRaw(b []byte) error {
	_, err := c.conn.Write(b)
	return err
}

// ReadFrame reads one raw frame
func (c *Client) ReadFrame(timeout time.Duration) (protocol.Header, []byte, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	head := make([]byte, protocol.HeaderSize)
	if _, err := io.ReadFull(c.conn, head); err != nil {
		return protocol.Header{}, nil, err
	}
	h, err := protocol.DecodeHeader(head)
	if err != nil {
		return protocol.Header{}, nil, err
	}
	payload := make([]byte, h.Length)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return protocol.Header{}, nil, err
	}
	return h, payload, nil
}

// Hello sends ClientHello and returns the server's plaintext reply:
// ServerHello, or LoginFailed when the version is rejected
func (c *Client) Hello(major int32) (protocol.Message, error) {
	if err := c.WriteFrame(protocol.TypeClientHello, protocol.Encode(&protocol.ClientHello{Major: major})); err != nil {
		return nil, err
	}
	h, payload, err := c.ReadFrame(2 * time.Second)
	if err != nil {
		return nil, err
	}
	msg, err := c.registry.Decode(h.Type, payload)
	if err != nil {
		return nil, err
	}
	if hello, ok := msg.(*protocol.ServerHello); ok {
		c.sessionKey = hello.SessionKey
	}
	return msg, nil
}

// Login sends a sealed Login and returns LoginOk or LoginFailed
func (c *Client) Login(login *protocol.Login) (protocol.Message, error) {
	if c.sessionKey == nil {
		return nil, errors.New("hello not completed")
	}
	sealed, err := c.channel.SealLogin(c.sessionKey, protocol.Encode(login))
	if err != nil {
		return nil, err
	}
	if err := c.WriteFrame(protocol.TypeLogin, sealed); err != nil {
		return nil, err
	}
	h, payload, err := c.ReadFrame(2 * time.Second)
	if err != nil {
		return nil, err
	}
	plain, err := c.channel.OpenLoginResponse(payload)
	if err != nil {
		return nil, err
	}
	return c.registry.Decode(h.Type, plain)
}

// Send encrypts and writes msg on an established channel
func (c *Client) Send(msg protocol.Message) error {
	payload, err := c.channel.Encrypt(protocol.Encode(msg))
	if err != nil {
		return err
	}
	return c.WriteFrame(msg.Type(), payload)
}

// Receive reads and decrypts the next message
func (c *Client) Receive(timeout time.Duration) (protocol.Message, error) {
	h, payload, err := c.ReadFrame(timeout)
	if err != nil {
		return nil, err
	}
	plain, err := c.channel.Decrypt(payload)
	if err != nil {
		return nil, err
	}
	return c.registry.Decode(h.Type, plain)
}

// Expect reads messages until one of type T arrives, discarding the rest
func Expect[T protocol.Message](c *Client, timeout time.Duration) (T, error) {
	var zero T
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return zero, fmt.Errorf("timed out waiting for %T", zero)
		}
		msg, err := c.Receive(remaining)
		if err != nil {
			return zero, err
		}
		if typed, ok := msg.(T); ok {
			return typed, nil
		}
	}
}
