package battle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mcoot/skirmish/internal/metrics"
	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/protocol"
	"github.com/mcoot/skirmish/internal/services/roster"
	"github.com/mcoot/skirmish/internal/services/session"
)

var ErrNoHumans = errors.New("battle has no reachable human players")

type binding struct {
	account   model.AccountID
	sessionID string
	teamIndex int
}

type active struct {
	spec     Spec
	handle   Handle
	bindings []binding
}

// Service starts battles and tracks them until the simulation reports completion
type Service struct {
	sessions  *session.Registry
	transport Transport
	simulator Simulator
	metrics   metrics.Metrics
	logger    *slog.Logger

	mu      sync.Mutex
	battles map[model.BattleID]*active
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewService creates a battle Service
func NewService(sessions *session.Registry, transport Transport, simulator Simulator, m metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		sessions:  sessions,
		transport: transport,
		simulator: simulator,
		metrics:   m,
		logger:    logger.With(slog.String("component", "battle")),
		battles:   make(map[model.BattleID]*active),
		stop:      make(chan struct{}),
	}
}

// Launch binds every reachable human to the transport, notifies them and starts
// the simulation. A player whose connection is gone or whose binding fails is
// skipped; the rest of the battle still starts.
func (s *Service) Launch(ctx context.Context, req LaunchRequest) (model.BattleID, error) {
	id := model.BattleID(uuid.NewString())
	logger := s.logger.With(slog.String("battle_id", string(id)), slog.Int("location", req.Location.ID))

	entries := make([]protocol.RosterEntry, 0, len(req.Players))
	for _, p := range req.Players {
		entries = append(entries, protocol.RosterEntry{
			PlayerIndex: int32(p.PlayerIndex),
			TeamIndex:   int32(p.TeamIndex),
			AccountID:   int64(p.AccountID),
			IsBot:       p.IsBot,
			CharacterID: int32(p.CharacterID),
			Name:        p.Name,
		})
	}

	host, port := s.transport.Endpoint()
	var bindings []binding
	for _, p := range req.Players {
		if p.IsBot {
			continue
		}
		conn, ok := req.Conns[p.AccountID]
		if !ok || !conn.IsOpen() {
			logger.Info("skipping disconnected player", slog.Int64("account_id", int64(p.AccountID)))
			continue
		}
		ts, err := s.transport.Bind(id, p.AccountID)
		if err != nil {
			logger.Warn("failed to bind battle transport",
				slog.Int64("account_id", int64(p.AccountID)),
				slog.String("error", err.Error()))
			continue
		}
		bindings = append(bindings, binding{account: p.AccountID, sessionID: ts.ID, teamIndex: p.TeamIndex})
		s.sessions.SetBattle(p.AccountID, id, ts.ID)

		// Transport info must reach the client before the loading screen
		_ = conn.Send(&protocol.UDPConnectionInfo{Port: int32(port), Host: host, SessionID: ts.Token})
		_ = conn.Send(&protocol.StartLoading{
			BattleID:    string(id),
			LocationID:  int32(req.Location.ID),
			PlayerIndex: int32(p.PlayerIndex),
			TeamIndex:   int32(p.TeamIndex),
			Players:     entries,
		})
	}

	if len(bindings) == 0 {
		return "", ErrNoHumans
	}

	spec := Spec{ID: id, Location: req.Location, Mode: req.Mode, Type: req.Type, Players: req.Players}
	handle, err := s.simulator.Start(ctx, spec)
	if err != nil {
		s.release(id, bindings)
		return "", fmt.Errorf("start battle simulation: %w", err)
	}

	s.mu.Lock()
	s.battles[id] = &active{spec: spec, handle: handle, bindings: bindings}
	s.mu.Unlock()

	bots := len(roster.Bots(req.Players))
	s.metrics.BattleStarted(req.Mode.Name, req.Type.String(), req.Forced, bots)
	logger.Info("battle started",
		slog.String("mode", req.Mode.Name),
		slog.Int("humans", len(bindings)),
		slog.Int("bots", bots),
		slog.Bool("forced", req.Forced))

	s.wg.Add(1)
	go s.watch(id, handle)
	return id, nil
}

func (s *Service) watch(id model.BattleID, handle Handle) {
	defer s.wg.Done()
	select {
	case <-handle.Done():
	case <-s.stop:
		return
	}

	s.mu.Lock()
	b, ok := s.battles[id]
	delete(s.battles, id)
	s.mu.Unlock()
	if !ok {
		return
	}

	s.release(id, b.bindings)
	result := handle.Result()
	for _, bnd := range b.bindings {
		rank := int32(2)
		if bnd.teamIndex == result.WinningTeam {
			rank = 1
		}
		s.sessions.Send(bnd.account, &protocol.BattleEnd{BattleID: string(id), Rank: rank})
	}
	s.metrics.BattleFinished(b.spec.Mode.Name)
	s.logger.Info("battle finished", slog.String("battle_id", string(id)), slog.Int("winning_team", result.WinningTeam))
}

func (s *Service) release(id model.BattleID, bindings []binding) {
	for _, b := range bindings {
		s.sessions.ClearBattle(b.account, id)
		s.transport.Release(b.sessionID)
	}
}

// Active returns the number of running battles
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.battles)
}

// Close stops watching running battles
func (s *Service) Close() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	s.wg.Wait()
}
