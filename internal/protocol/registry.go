package protocol

import (
	"errors"
	"fmt"
)

var ErrUnknownMessage = errors.New("unknown message type")

// Registry maps message type ids to constructors
type Registry map[uint16]func() Message

var clientMessages = Registry{
	TypeClientHello:       func() Message { return &ClientHello{} },
	TypeLogin:             func() Message { return &Login{} },
	TypeKeepAlive:         func() Message { return &KeepAlive{} },
	TypeMatchmakeRequest:  func() Message { return &MatchmakeRequest{} },
	TypeCancelMatchmaking: func() Message { return &CancelMatchmaking{} },
	TypeTeamCreate:        func() Message { return &TeamCreate{} },
	TypeTeamJoin:          func() Message { return &TeamJoin{} },
	TypeTeamLeave:         func() Message { return &TeamLeave{} },
	TypeTeamSetReady:      func() Message { return &TeamSetReady{} },
	TypeTeamToggleBotSeat: func() Message { return &TeamToggleBotSeat{} },
}

var serverMessages = Registry{
	TypeServerHello:          func() Message { return &ServerHello{} },
	TypeLoginFailed:          func() Message { return &LoginFailed{} },
	TypeLoginOk:              func() Message { return &LoginOk{} },
	TypeKeepAliveServer:      func() Message { return &KeepAliveServer{} },
	TypeMatchmakingStatus:    func() Message { return &MatchmakingStatus{} },
	TypeMatchmakingCancelled: func() Message { return &MatchmakingCancelled{} },
	TypeStartLoading:         func() Message { return &StartLoading{} },
	TypeBattleEnd:            func() Message { return &BattleEnd{} },
	TypeGameModeUnavailable:  func() Message { return &GameModeUnavailable{} },
	TypeUDPConnectionInfo:    func() Message { return &UDPConnectionInfo{} },
	TypeTeamUpdate:           func() Message { return &TeamUpdate{} },
	TypeTeamLeft:             func() Message { return &TeamLeft{} },
	TypeTeamGameStarting:     func() Message { return &TeamGameStarting{} },
}

// ClientMessages returns the registry of messages a server accepts
func ClientMessages() Registry { return clientMessages }

// ServerMessages returns the registry of messages a client accepts
func ServerMessages() Registry { return serverMessages }

// Decode builds the message for msgType and decodes payload into it.
// Trailing bytes are tolerated; truncated payloads are not.
func (reg Registry) Decode(msgType uint16, payload []byte) (Message, error) {
	ctor, ok := reg[msgType]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, msgType)
	}
	msg := ctor()
	r := NewReader(payload)
	msg.Decode(r)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode message %d: %w", msgType, err)
	}
	return msg, nil
}

// Encode returns the payload for msg
func Encode(msg Message) []byte {
	w := NewWriter()
	msg.Encode(w)
	return w.Bytes()
}
