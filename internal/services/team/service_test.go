package team

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/skirmish/internal/catalog"
	"github.com/mcoot/skirmish/internal/dependencies/mocks"
	"github.com/mcoot/skirmish/internal/dependencies/random"
	"github.com/mcoot/skirmish/internal/metrics"
	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/protocol"
	"github.com/mcoot/skirmish/internal/services/battle"
	"github.com/mcoot/skirmish/internal/services/matchmaking"
	"github.com/mcoot/skirmish/internal/services/roster"
	"github.com/mcoot/skirmish/internal/services/session"
	"github.com/mcoot/skirmish/internal/testutil"
)

const (
	gemGrabSlot  = 1
	showdownSlot = 2
)

type fakeLauncher struct {
	mu       sync.Mutex
	requests []battle.LaunchRequest
}

func (l *fakeLauncher) Launch(ctx context.Context, req battle.LaunchRequest) (model.BattleID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, req)
	return "battle", nil
}

func (l *fakeLauncher) launched() []battle.LaunchRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]battle.LaunchRequest(nil), l.requests...)
}

type ServiceSuite struct {
	suite.Suite
	clock    *mocks.MockClock
	sessions *session.Registry
	engine   *matchmaking.Engine
	launcher *fakeLauncher
	service  *Service
	conns    map[model.AccountID]*testutil.FakeConn
	ctx      context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	logger := testutil.NopLogger()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	cat, err := catalog.NewDefault()
	s.Require().NoError(err)

	builder := roster.NewBuilder(random.New())
	s.sessions = session.NewRegistry(s.clock, logger)
	s.launcher = &fakeLauncher{}
	s.engine = matchmaking.NewEngine(matchmaking.DefaultConfig(), s.clock, cat, builder, s.launcher, metrics.NewNop(), logger)
	s.Require().NoError(s.engine.SetEvents(cat.Events()))
	s.service = NewService(s.sessions, s.engine, s.launcher, cat, builder, logger)
	s.conns = map[model.AccountID]*testutil.FakeConn{}
	s.ctx = context.Background()
}

func (s *ServiceSuite) login(id model.AccountID) model.TeamMember {
	conn := testutil.NewFakeConn(uint64(id))
	_, err := s.sessions.Create(id, conn)
	s.Require().NoError(err)
	s.conns[id] = conn
	return model.TeamMember{AccountID: id, Name: "player", CharacterID: int(id)}
}

func (s *ServiceSuite) party(slot int, battleType model.BattleType, ids ...model.AccountID) model.TeamID {
	t, err := s.service.Create(s.ctx, s.login(ids[0]), slot, battleType)
	s.Require().NoError(err)
	for i, id := range ids[1:] {
		s.Require().NoError(s.service.Join(s.ctx, t.ID, s.login(id), (i+1)%2))
	}
	return t.ID
}

// solo queues id on its own in slot
func (s *ServiceSuite) solo(id model.AccountID, slot int) {
	m := s.login(id)
	s.Require().NoError(s.engine.Request(matchmaking.Entry{
		Conn:          s.conns[id],
		AccountID:     id,
		CharacterID:   m.CharacterID,
		PreferredTeam: roster.NoPreference,
	}, slot))
}

func (s *ServiceSuite) readyAll(ids ...model.AccountID) {
	for _, id := range ids {
		s.Require().NoError(s.service.SetReady(s.ctx, id, true))
	}
}

func (s *ServiceSuite) TestCreateMakesCreatorSoleUnreadyMember() {
	t, err := s.service.Create(s.ctx, s.login(1), gemGrabSlot, model.BattleTypeMatchmaking)
	s.Require().NoError(err)

	s.Len(t.Members, 1)
	s.Equal(model.AccountID(1), t.Members[0].AccountID)
	s.False(t.Members[0].IsReady)
	s.False(t.Searching)

	updates := testutil.SentOfType[*protocol.TeamUpdate](s.conns[1])
	s.Require().Len(updates, 1)
	s.Equal(int64(t.ID), updates[0].TeamID)
}

func (s *ServiceSuite) TestCreateAllocatesFreshIDs() {
	a, err := s.service.Create(s.ctx, s.login(1), gemGrabSlot, model.BattleTypeMatchmaking)
	s.Require().NoError(err)
	b, err := s.service.Create(s.ctx, s.login(2), gemGrabSlot, model.BattleTypeMatchmaking)
	s.Require().NoError(err)
	s.NotEqual(a.ID, b.ID)
	s.Equal(2, s.service.Count())
}

func (s *ServiceSuite) TestCreateErrors() {
	member := s.login(1)
	_, err := s.service.Create(s.ctx, member, 99, model.BattleTypeMatchmaking)
	s.ErrorIs(err, model.ErrSlotNotFound)

	_, err = s.service.Create(s.ctx, member, gemGrabSlot, model.BattleTypeMatchmaking)
	s.Require().NoError(err)
	_, err = s.service.Create(s.ctx, member, gemGrabSlot, model.BattleTypeMatchmaking)
	s.ErrorIs(err, model.ErrAlreadyInTeam)
}

func (s *ServiceSuite) TestJoinErrors() {
	id := s.party(gemGrabSlot, model.BattleTypeMatchmaking, 1)

	s.ErrorIs(s.service.Join(s.ctx, id, s.login(2), 2), model.ErrInvalidTeamIndex)
	s.ErrorIs(s.service.Join(s.ctx, 404, s.login(2), 0), model.ErrTeamNotFound)
	s.ErrorIs(s.service.Join(s.ctx, id, s.login(1), 0), model.ErrAlreadyInTeam)
}

func (s *ServiceSuite) TestMatchmakingPartyLimitedToOneSide() {
	id := s.party(gemGrabSlot, model.BattleTypeMatchmaking, 1, 2, 3)
	s.ErrorIs(s.service.Join(s.ctx, id, s.login(4), 0), model.ErrTeamFull)
}

func (s *ServiceSuite) TestFriendlyPartyFillsBySide() {
	id := s.party(gemGrabSlot, model.BattleTypeFriendly, 1)
	s.Require().NoError(s.service.Join(s.ctx, id, s.login(2), 0))
	s.Require().NoError(s.service.Join(s.ctx, id, s.login(3), 0))
	s.ErrorIs(s.service.Join(s.ctx, id, s.login(4), 0), model.ErrTeamFull)
	s.Require().NoError(s.service.Join(s.ctx, id, s.login(4), 1))

	t, err := s.service.Get(id)
	s.Require().NoError(err)
	s.Equal(1, t.GetMember(4).TeamIndex)
}

func (s *ServiceSuite) TestAllReadyQueuesPartyAtomically() {
	id := s.party(gemGrabSlot, model.BattleTypeMatchmaking, 1, 2, 3)

	s.readyAll(1, 2, 3)

	t, err := s.service.Get(id)
	s.Require().NoError(err)
	s.True(t.Searching)
	for _, m := range t.Members {
		s.False(m.IsReady)
		s.True(s.engine.IsQueued(s.conns[m.AccountID]))
		s.Len(testutil.SentOfType[*protocol.TeamGameStarting](s.conns[m.AccountID]), 1)
	}

	s.engine.Tick(s.ctx)
	s.Equal(3, s.engine.QueueDepths()[gemGrabSlot])
}

func (s *ServiceSuite) TestStartWithoutSessionQueuesNobody() {
	id := s.party(gemGrabSlot, model.BattleTypeMatchmaking, 1, 2)
	s.sessions.Remove(2)

	err := s.service.StartGame(s.ctx, id)
	s.ErrorIs(err, model.ErrNoSession)
	s.Equal(0, s.engine.QueuedCount())

	t, _ := s.service.Get(id)
	s.False(t.Searching)
}

func (s *ServiceSuite) TestCancelCascadesToWholeParty() {
	id := s.party(gemGrabSlot, model.BattleTypeMatchmaking, 1, 2, 3)
	s.readyAll(1, 2, 3)
	s.engine.Tick(s.ctx)

	s.Require().NoError(s.service.CancelMatchmaking(s.ctx, 2))

	for _, conn := range []*testutil.FakeConn{s.conns[1], s.conns[2], s.conns[3]} {
		s.False(s.engine.IsQueued(conn))
		s.Len(testutil.SentOfType[*protocol.MatchmakingCancelled](conn), 1)
	}
	s.engine.Tick(s.ctx)
	s.Equal(0, s.engine.QueueDepths()[gemGrabSlot])

	t, _ := s.service.Get(id)
	s.False(t.Searching)
}

func (s *ServiceSuite) TestUnreadyWhileSearchingCancels() {
	s.party(gemGrabSlot, model.BattleTypeMatchmaking, 1, 2)
	s.readyAll(1, 2)

	s.Require().NoError(s.service.SetReady(s.ctx, 1, false))
	s.False(s.engine.IsQueued(s.conns[2]))
}

func (s *ServiceSuite) TestLeaveWhileSearchingCancelsAndNotifies() {
	id := s.party(gemGrabSlot, model.BattleTypeMatchmaking, 1, 2)
	s.readyAll(1, 2)

	s.Require().NoError(s.service.Leave(s.ctx, 1))

	s.False(s.engine.IsQueued(s.conns[2]))
	left := testutil.SentOfType[*protocol.TeamLeft](s.conns[1])
	s.Require().Len(left, 1)
	s.Equal(protocol.TeamLeftByChoice, left[0].Reason)

	t, err := s.service.Get(id)
	s.Require().NoError(err)
	s.Len(t.Members, 1)
	_, inTeam := s.service.TeamOf(1)
	s.False(inTeam)
}

func (s *ServiceSuite) TestLastLeaveClosesTeam() {
	id := s.party(gemGrabSlot, model.BattleTypeMatchmaking, 1)
	s.Require().NoError(s.service.Leave(s.ctx, 1))

	_, err := s.service.Get(id)
	s.ErrorIs(err, model.ErrTeamNotFound)
	s.ErrorIs(s.service.Leave(s.ctx, 1), model.ErrNotInTeam)
}

func (s *ServiceSuite) TestDisconnectDoesNotNotifyLeaver() {
	s.party(gemGrabSlot, model.BattleTypeMatchmaking, 1, 2)
	s.service.Disconnect(2)

	s.Empty(testutil.SentOfType[*protocol.TeamLeft](s.conns[2]))
	_, inTeam := s.service.TeamOf(2)
	s.False(inTeam)
}

func (s *ServiceSuite) TestMatchedPartyIsDisbanded() {
	s.party(gemGrabSlot, model.BattleTypeMatchmaking, 1, 2, 3)
	s.readyAll(1, 2, 3)
	for id := model.AccountID(10); id < 13; id++ {
		s.solo(id, gemGrabSlot)
	}

	s.engine.Tick(s.ctx)

	s.Len(s.launcher.launched(), 1)
	s.Equal(0, s.service.Count())
	left := testutil.SentOfType[*protocol.TeamLeft](s.conns[1])
	s.Require().Len(left, 1)
	s.Equal(protocol.TeamLeftDisbanded, left[0].Reason)
}

func (s *ServiceSuite) TestPartyWaitsInsteadOfSplittingAcrossBattles() {
	for id := model.AccountID(10); id < 15; id++ {
		s.solo(id, gemGrabSlot)
	}
	s.engine.Tick(s.ctx)

	id := s.party(gemGrabSlot, model.BattleTypeMatchmaking, 1, 2)
	s.readyAll(1, 2)
	s.engine.Tick(s.ctx)

	s.Empty(s.launcher.launched(), "five solos and a pair cannot fill six seats whole")
	s.True(s.engine.IsQueued(s.conns[1]))
	s.True(s.engine.IsQueued(s.conns[2]))

	s.solo(15, gemGrabSlot)
	s.engine.Tick(s.ctx)

	launched := s.launcher.launched()
	s.Require().Len(launched, 1)
	for _, p := range roster.Humans(launched[0].Players) {
		s.GreaterOrEqual(p.AccountID, model.AccountID(10))
	}
	s.True(s.engine.IsQueued(s.conns[1]))
	s.True(s.engine.IsQueued(s.conns[2]))
	s.Equal(2, s.engine.QueueDepths()[gemGrabSlot])

	t, err := s.service.Get(id)
	s.Require().NoError(err)
	s.True(t.Searching)
	s.Len(t.Members, 2)
}

func (s *ServiceSuite) TestReloginWhileSearchingCancelsParty() {
	id := s.party(gemGrabSlot, model.BattleTypeMatchmaking, 1, 2)
	s.readyAll(1, 2)
	s.engine.Tick(s.ctx)
	evicted := s.conns[1]

	fresh := testutil.NewFakeConn(101)
	_, err := s.sessions.Create(1, fresh)
	s.Require().NoError(err)
	s.False(evicted.IsOpen())

	// The evicted connection no longer owns the session, so teardown only
	// forgets it in the engine
	s.engine.Forget(evicted)

	s.False(s.engine.IsQueued(s.conns[2]))
	s.Len(testutil.SentOfType[*protocol.MatchmakingCancelled](s.conns[2]), 1)
	s.Equal(0, s.engine.QueuedCount())

	t, err := s.service.Get(id)
	s.Require().NoError(err)
	s.False(t.Searching)
	s.Len(t.Members, 2)
	s.NotEmpty(testutil.SentOfType[*protocol.TeamUpdate](fresh))

	s.engine.Tick(s.ctx)
	s.Equal(0, s.engine.QueueDepths()[gemGrabSlot])
}

func (s *ServiceSuite) TestClosedMemberNoticedByTickCancelsParty() {
	id := s.party(gemGrabSlot, model.BattleTypeMatchmaking, 1, 2, 3)
	s.readyAll(1, 2, 3)
	s.engine.Tick(s.ctx)

	_, err := s.sessions.Create(1, testutil.NewFakeConn(101))
	s.Require().NoError(err)
	s.engine.Tick(s.ctx)

	for _, member := range []model.AccountID{2, 3} {
		s.False(s.engine.IsQueued(s.conns[member]))
		s.Len(testutil.SentOfType[*protocol.MatchmakingCancelled](s.conns[member]), 1)
	}
	s.Equal(0, s.engine.QueueDepths()[gemGrabSlot])

	t, err := s.service.Get(id)
	s.Require().NoError(err)
	s.False(t.Searching)

	// Teardown arriving after the tick finds nothing left to cancel
	s.engine.Forget(s.conns[1])
	s.Len(testutil.SentOfType[*protocol.MatchmakingCancelled](s.conns[2]), 1)
}

func (s *ServiceSuite) TestFriendlyStartsImmediatelyWithBots() {
	id := s.party(gemGrabSlot, model.BattleTypeFriendly, 1, 2)

	s.readyAll(1, 2)

	launched := s.launcher.launched()
	s.Require().Len(launched, 1)
	req := launched[0]
	s.Equal(model.BattleTypeFriendly, req.Type)
	s.Len(req.Players, 6)
	s.Len(roster.Bots(req.Players), 4)
	s.Len(req.Conns, 2)
	s.Equal(0, s.engine.QueuedCount())

	_, err := s.service.Get(id)
	s.ErrorIs(err, model.ErrTeamNotFound)
}

func (s *ServiceSuite) TestFriendlyDisabledSeatStaysEmpty() {
	s.party(gemGrabSlot, model.BattleTypeFriendly, 1, 2)
	s.Require().NoError(s.service.ToggleBotSeat(s.ctx, 1, 0, 2))
	s.Require().NoError(s.service.ToggleBotSeat(s.ctx, 1, 1, 2))
	s.Require().NoError(s.service.ToggleBotSeat(s.ctx, 1, 1, 2))
	s.ErrorIs(s.service.ToggleBotSeat(s.ctx, 1, 0, 3), model.ErrInvalidTeamIndex)

	s.readyAll(1, 2)

	launched := s.launcher.launched()
	s.Require().Len(launched, 1)
	s.Len(launched[0].Players, 5)
}

func (s *ServiceSuite) TestFriendlyModeNotAllowed() {
	id := s.party(showdownSlot, model.BattleTypeFriendly, 1)

	err := s.service.SetReady(s.ctx, 1, true)
	s.ErrorIs(err, model.ErrModeNotAllowed)

	s.Empty(s.launcher.launched())
	s.Len(testutil.SentOfType[*protocol.GameModeUnavailable](s.conns[1]), 1)
	t, err := s.service.Get(id)
	s.Require().NoError(err)
	s.False(t.Members[0].IsReady)
}
