package server

import (
	"errors"
	"fmt"

	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/protocol"
)

var (
	ErrOutOfOrder   = errors.New("message not allowed in current handshake state")
	ErrSlowConsumer = errors.New("outbound buffer full")
	ErrConnClosed   = errors.New("connection closed")
)

// ProtocolError is fatal to the connection it occurred on and to nothing else
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation during %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protocolError(op string, err error) error {
	return &ProtocolError{Op: op, Err: err}
}

// AuthError rejects a login. Code is sent to the client before the connection closes.
type AuthError struct {
	Code protocol.LoginFailureCode
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login rejected (code %d): %v", e.Code, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// loginFailureCode maps an auth rejection onto the code the client understands
func loginFailureCode(err error) protocol.LoginFailureCode {
	switch {
	case errors.Is(err, model.ErrMaintenance):
		return protocol.LoginFailedMaintenance
	case errors.Is(err, model.ErrUpdateRequired):
		return protocol.LoginFailedUpdateRequired
	case errors.Is(err, model.ErrAccountBanned):
		return protocol.LoginFailedBanned
	case errors.Is(err, model.ErrInvalidToken):
		return protocol.LoginFailedInvalidToken
	default:
		return protocol.LoginFailedAccountNotFound
	}
}

// failureReason is the metric label for a login failure
func failureReason(code protocol.LoginFailureCode) string {
	switch code {
	case protocol.LoginFailedMaintenance:
		return "maintenance"
	case protocol.LoginFailedUpdateRequired:
		return "update_required"
	case protocol.LoginFailedBanned:
		return "banned"
	case protocol.LoginFailedInvalidToken:
		return "invalid_token"
	default:
		return "account_not_found"
	}
}
