package team

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/elliotchance/pie/v2"

	"github.com/mcoot/skirmish/internal/catalog"
	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/protocol"
	"github.com/mcoot/skirmish/internal/services/battle"
	"github.com/mcoot/skirmish/internal/services/matchmaking"
	"github.com/mcoot/skirmish/internal/services/roster"
	"github.com/mcoot/skirmish/internal/services/session"
)

// Service manages parties: membership, readiness and routing a ready party
// into matchmaking or straight into a friendly battle.
type Service struct {
	sessions *session.Registry
	engine   *matchmaking.Engine
	launcher matchmaking.Launcher
	catalog  catalog.Catalog
	builder  *roster.Builder
	logger   *slog.Logger

	mu      sync.Mutex
	nextID  model.TeamID
	teams   map[model.TeamID]*model.TeamEntry
	members map[model.AccountID]model.TeamID
}

// NewService creates a team Service and subscribes it to matchmaking results
func NewService(
	sessions *session.Registry,
	engine *matchmaking.Engine,
	launcher matchmaking.Launcher,
	cat catalog.Catalog,
	builder *roster.Builder,
	logger *slog.Logger,
) *Service {
	s := &Service{
		sessions: sessions,
		engine:   engine,
		launcher: launcher,
		catalog:  cat,
		builder:  builder,
		logger:   logger.With(slog.String("component", "team")),
		teams:    make(map[model.TeamID]*model.TeamEntry),
		members:  make(map[model.AccountID]model.TeamID),
	}
	engine.OnMatched(s.BattleStarted)
	return s
}

// Create allocates a new party with creator as its only, not yet ready, member
func (s *Service) Create(ctx context.Context, creator model.TeamMember, slotID int, battleType model.BattleType) (*model.TeamEntry, error) {
	if _, _, _, err := s.engine.Event(slotID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[creator.AccountID]; ok {
		return nil, model.ErrAlreadyInTeam
	}

	s.nextID++
	creator.IsReady = false
	creator.TeamIndex = 0
	t := &model.TeamEntry{
		ID:               s.nextID,
		Members:          []model.TeamMember{creator},
		EventSlot:        slotID,
		BattleType:       battleType,
		DisabledBotSeats: map[int][]int{},
	}
	s.teams[t.ID] = t
	s.members[creator.AccountID] = t.ID

	s.logger.Info("team created",
		slog.Int64("team_id", int64(t.ID)),
		slog.Int64("account_id", int64(creator.AccountID)),
		slog.String("battle_type", battleType.String()))
	s.broadcast(t)
	return t.Clone(), nil
}

// Get returns a copy of the team
func (s *Service) Get(id model.TeamID) (*model.TeamEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, model.ErrTeamNotFound
	}
	return t.Clone(), nil
}

// TeamOf returns the id of the party account belongs to
func (s *Service) TeamOf(account model.AccountID) (model.TeamID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.members[account]
	return id, ok
}

// Count returns the number of open parties
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.teams)
}

// Join adds member to the party at the given team index
func (s *Service) Join(ctx context.Context, id model.TeamID, member model.TeamMember, teamIndex int) error {
	if teamIndex != 0 && teamIndex != 1 {
		return model.ErrInvalidTeamIndex
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.teams[id]
	if !ok {
		return model.ErrTeamNotFound
	}
	if _, ok := s.members[member.AccountID]; ok {
		return model.ErrAlreadyInTeam
	}
	if t.Searching {
		return model.ErrTeamSearching
	}
	_, _, mode, err := s.engine.Event(t.EventSlot)
	if err != nil {
		return err
	}
	if t.BattleType == model.BattleTypeMatchmaking {
		teamIndex = 0
	}
	if !s.hasRoom(t, mode, teamIndex) {
		return model.ErrTeamFull
	}

	member.IsReady = false
	member.TeamIndex = teamIndex
	t.Members = append(t.Members, member)
	s.members[member.AccountID] = t.ID

	s.logger.Info("team joined",
		slog.Int64("team_id", int64(t.ID)),
		slog.Int64("account_id", int64(member.AccountID)),
		slog.Int("team_index", teamIndex))
	s.broadcast(t)
	return nil
}

// hasRoom reports whether another member fits. A matchmaking party must fit on
// one side of the battle; a friendly party fills both sides by team index.
func (s *Service) hasRoom(t *model.TeamEntry, mode catalog.Mode, teamIndex int) bool {
	if t.BattleType == model.BattleTypeMatchmaking {
		return len(t.Members) < mode.PlayersPerTeam()
	}
	if !mode.HasTwoTeams() {
		return len(t.Members) < mode.HumanSeats()
	}
	onSide := pie.Filter(t.Members, func(m model.TeamMember) bool { return m.TeamIndex == teamIndex })
	return len(onSide) < mode.PlayersPerTeam()
}

// Leave removes account from its party, cancelling the party's search first
func (s *Service) Leave(ctx context.Context, account model.AccountID) error {
	return s.leave(account, true)
}

// Disconnect is Leave for a connection that is going away; the leaver is not notified
func (s *Service) Disconnect(account model.AccountID) {
	if err := s.leave(account, false); err != nil && !errors.Is(err, model.ErrNotInTeam) {
		s.logger.Warn("failed to remove disconnected member",
			slog.Int64("account_id", int64(account)),
			slog.String("error", err.Error()))
	}
}

func (s *Service) leave(account model.AccountID, notify bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.teamOf(account)
	if err != nil {
		return err
	}
	if t.Searching {
		s.cancelSearch(t)
	}

	t.Members = pie.Filter(t.Members, func(m model.TeamMember) bool { return m.AccountID != account })
	delete(s.members, account)
	if notify {
		s.sessions.Send(account, &protocol.TeamLeft{TeamID: int64(t.ID), Reason: protocol.TeamLeftByChoice})
	}

	if len(t.Members) == 0 {
		delete(s.teams, t.ID)
		s.logger.Info("team closed", slog.Int64("team_id", int64(t.ID)))
		return nil
	}
	s.broadcast(t)
	return nil
}

// SetReady records a member's readiness. Once every member is ready the party starts.
// Un-readying a searching party cancels its search.
func (s *Service) SetReady(ctx context.Context, account model.AccountID, ready bool) error {
	s.mu.Lock()
	t, err := s.teamOf(account)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !ready && t.Searching {
		s.cancelSearch(t)
	}
	t.GetMember(account).IsReady = ready
	s.broadcast(t)
	start := ready && !t.Searching && t.AllReady()
	id := t.ID
	s.mu.Unlock()

	if start {
		return s.StartGame(ctx, id)
	}
	return nil
}

// ToggleBotSeat flips whether a friendly seat is left empty instead of filled with a bot
func (s *Service) ToggleBotSeat(ctx context.Context, account model.AccountID, teamIndex, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.teamOf(account)
	if err != nil {
		return err
	}
	_, _, mode, err := s.engine.Event(t.EventSlot)
	if err != nil {
		return err
	}
	if (teamIndex != 0 && teamIndex != 1) || position < 0 || position >= mode.PlayersPerTeam() {
		return model.ErrInvalidTeamIndex
	}

	if t.SeatDisabled(teamIndex, position) {
		t.DisabledBotSeats[teamIndex] = pie.Filter(t.DisabledBotSeats[teamIndex], func(p int) bool { return p != position })
	} else {
		t.DisabledBotSeats[teamIndex] = append(t.DisabledBotSeats[teamIndex], position)
	}
	s.broadcast(t)
	return nil
}

// StartGame routes the party by battle type. Matchmaking parties are queued as
// one unit; friendly parties start a battle immediately and are disbanded.
func (s *Service) StartGame(ctx context.Context, id model.TeamID) error {
	s.mu.Lock()
	t, ok := s.teams[id]
	if !ok {
		s.mu.Unlock()
		return model.ErrTeamNotFound
	}
	if t.Searching {
		s.mu.Unlock()
		return model.ErrTeamSearching
	}
	_, loc, mode, err := s.engine.Event(t.EventSlot)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	conns, err := s.connections(t)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if t.BattleType == model.BattleTypeMatchmaking {
		defer s.mu.Unlock()
		return s.queue(t, loc, conns)
	}

	if !mode.FriendlyAllowed {
		for _, conn := range conns {
			_ = conn.Send(&protocol.GameModeUnavailable{LocationID: int32(loc.ID)})
		}
		s.resetReady(t)
		s.broadcast(t)
		s.mu.Unlock()
		return model.ErrModeNotAllowed
	}

	snapshot := t.Clone()
	s.disband(t)
	s.mu.Unlock()

	players := s.builder.Friendly(mode, snapshot, s.catalog.BotCharacters())
	_, err = s.launcher.Launch(ctx, battle.LaunchRequest{
		Slot:     snapshot.EventSlot,
		Location: loc,
		Mode:     mode,
		Type:     model.BattleTypeFriendly,
		Players:  players,
		Conns:    conns,
	})
	if err != nil {
		return fmt.Errorf("launching friendly battle: %w", err)
	}
	return nil
}

func (s *Service) queue(t *model.TeamEntry, loc catalog.Location, conns map[model.AccountID]session.Conn) error {
	for _, conn := range conns {
		_ = conn.Send(&protocol.TeamGameStarting{TeamID: int64(t.ID), LocationID: int32(loc.ID)})
	}

	entries := make([]matchmaking.Entry, 0, len(t.Members))
	for _, m := range t.Members {
		entries = append(entries, matchmaking.Entry{
			Conn:          conns[m.AccountID],
			AccountID:     m.AccountID,
			Name:          m.Name,
			CharacterID:   m.CharacterID,
			TeamID:        t.ID,
			PreferredTeam: roster.NoPreference,
		})
	}
	err := s.engine.Submit(entries, t.EventSlot)
	s.resetReady(t)
	if err != nil {
		s.broadcast(t)
		return fmt.Errorf("queueing team %d: %w", t.ID, err)
	}

	t.Searching = true
	s.logger.Info("team searching",
		slog.Int64("team_id", int64(t.ID)),
		slog.Int("slot", t.EventSlot),
		slog.Int("members", len(t.Members)))
	s.broadcast(t)
	return nil
}

// CancelMatchmaking cancels the search of account's party for every member
func (s *Service) CancelMatchmaking(ctx context.Context, account model.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.teamOf(account)
	if err != nil {
		return err
	}
	s.cancelSearch(t)
	s.broadcast(t)
	return nil
}

func (s *Service) cancelSearch(t *model.TeamEntry) {
	for _, m := range t.Members {
		if sess, ok := s.sessions.Get(m.AccountID); ok {
			s.engine.Cancel(sess.Conn)
		}
	}
	s.resetReady(t)
	t.Searching = false
}

// BattleStarted is told by matchmaking which parties left the queue. Parties
// that made it into a battle are disbanded; the rest return to the menu.
func (s *Service) BattleStarted(teams []model.TeamID, started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range teams {
		t, ok := s.teams[id]
		if !ok {
			continue
		}
		if started {
			s.disband(t)
			continue
		}
		t.Searching = false
		s.resetReady(t)
		s.broadcast(t)
	}
}

// disband removes the party and tells every member
func (s *Service) disband(t *model.TeamEntry) {
	for _, m := range t.Members {
		delete(s.members, m.AccountID)
		s.sessions.Send(m.AccountID, &protocol.TeamLeft{TeamID: int64(t.ID), Reason: protocol.TeamLeftDisbanded})
	}
	delete(s.teams, t.ID)
	s.logger.Info("team disbanded", slog.Int64("team_id", int64(t.ID)))
}

func (s *Service) teamOf(account model.AccountID) (*model.TeamEntry, error) {
	id, ok := s.members[account]
	if !ok {
		return nil, model.ErrNotInTeam
	}
	t, ok := s.teams[id]
	if !ok {
		return nil, model.ErrTeamNotFound
	}
	return t, nil
}

// connections resolves every member's live connection; a party with a member
// who has no session cannot start.
func (s *Service) connections(t *model.TeamEntry) (map[model.AccountID]session.Conn, error) {
	conns := make(map[model.AccountID]session.Conn, len(t.Members))
	for _, m := range t.Members {
		sess, ok := s.sessions.Get(m.AccountID)
		if !ok || !sess.Conn.IsOpen() {
			return nil, fmt.Errorf("member %d: %w", m.AccountID, model.ErrNoSession)
		}
		conns[m.AccountID] = sess.Conn
	}
	return conns, nil
}

func (s *Service) resetReady(t *model.TeamEntry) {
	for i := range t.Members {
		t.Members[i].IsReady = false
	}
}

func (s *Service) broadcast(t *model.TeamEntry) {
	update := &protocol.TeamUpdate{
		TeamID:     int64(t.ID),
		EventSlot:  int32(t.EventSlot),
		BattleType: int32(t.BattleType),
		Searching:  t.Searching,
		Members: pie.Map(t.Members, func(m model.TeamMember) protocol.TeamMemberInfo {
			return protocol.TeamMemberInfo{
				AccountID:   int64(m.AccountID),
				Name:        m.Name,
				CharacterID: int32(m.CharacterID),
				IsReady:     m.IsReady,
				TeamIndex:   int32(m.TeamIndex),
			}
		}),
	}
	for _, m := range t.Members {
		s.sessions.Send(m.AccountID, update)
	}
}
