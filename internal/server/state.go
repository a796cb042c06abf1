package server

// HandshakeState is where a connection is in the secure channel handshake.
// Only the message expected by the current state is accepted.
type HandshakeState int32

const (
	AwaitingHello HandshakeState = iota
	AwaitingLogin
	KeyExchanged
	SecureChannelActive
)

func (s HandshakeState) String() string {
	switch s {
	case AwaitingHello:
		return "awaiting_hello"
	case AwaitingLogin:
		return "awaiting_login"
	case KeyExchanged:
		return "key_exchanged"
	case SecureChannelActive:
		return "secure_channel_active"
	default:
		return "unknown"
	}
}
