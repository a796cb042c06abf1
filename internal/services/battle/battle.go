package battle

import (
	"context"

	"github.com/mcoot/skirmish/internal/catalog"
	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/services/session"
)

// TransportSession is the opaque handle a client uses on the battle transport
type TransportSession struct {
	ID    string
	Token []byte
}

// Transport binds human players to the real-time battle transport
type Transport interface {
	Bind(battle model.BattleID, account model.AccountID) (TransportSession, error)
	Release(sessionID string)
	Endpoint() (host string, port int)
}

// Spec is everything the simulation needs to run a battle
type Spec struct {
	ID       model.BattleID
	Location catalog.Location
	Mode     catalog.Mode
	Type     model.BattleType
	Players  []model.BattlePlayer
}

// Result is reported by the simulation when a battle ends
type Result struct {
	WinningTeam int
}

// Handle is a started battle
type Handle interface {
	ID() model.BattleID
	// Done is closed once the result is available
	Done() <-chan struct{}
	Result() Result
}

// Simulator runs battles. Gameplay is opaque to the server.
type Simulator interface {
	Start(ctx context.Context, spec Spec) (Handle, error)
}

// LaunchRequest is an assembled roster ready to be started
type LaunchRequest struct {
	Slot     int
	Location catalog.Location
	Mode     catalog.Mode
	Type     model.BattleType
	Players  []model.BattlePlayer
	Conns    map[model.AccountID]session.Conn
	Forced   bool
}
