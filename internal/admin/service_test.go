package admin

import (
	"context"
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
	"github.com/mcoot/skirmish/internal/services/maintenance"
	"github.com/mcoot/skirmish/internal/services/matchmaking"
	"github.com/mcoot/skirmish/internal/services/roster"
	"github.com/mcoot/skirmish/internal/services/session"
	"github.com/mcoot/skirmish/internal/services/team"
	"github.com/mcoot/skirmish/internal/storage/memory"
	"github.com/mcoot/skirmish/internal/testutil"
)

const gemGrabSlot = 1

type staticCount int

func (c staticCount) Count() int  { return int(c) }
func (c staticCount) Active() int { return int(c) }

type nopLauncher struct{}

func (nopLauncher) Launch(context.Context, battle.LaunchRequest) (model.BattleID, error) {
	return "battle", nil
}

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	clock    *mocks.MockClock
	store    *memory.Storage
	sessions *session.Registry
	engine   *matchmaking.Engine
	teams    *team.Service
	mode     *maintenance.Mode
	service  *Service
	commands *Commands
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	logger := testutil.NopLogger()
	s.ctx = context.Background()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	cat, err := catalog.NewDefault()
	s.Require().NoError(err)

	builder := roster.NewBuilder(random.New())
	s.store = memory.New()
	s.sessions = session.NewRegistry(s.clock, logger)
	s.engine = matchmaking.NewEngine(matchmaking.DefaultConfig(), s.clock, cat, builder, nopLauncher{}, metrics.NewNop(), logger)
	s.Require().NoError(s.engine.SetEvents(cat.Events()))
	s.teams = team.NewService(s.sessions, s.engine, nopLauncher{}, cat, builder, logger)
	s.mode = maintenance.NewMode(false, logger)

	s.service = NewService(Deps{
		Sessions:    s.sessions,
		Engine:      s.engine,
		Teams:       s.teams,
		Accounts:    s.store,
		Catalog:     cat,
		Connections: staticCount(7),
		Battles:     staticCount(2),
		Maintenance: s.mode,
		Clock:       s.clock,
	}, 3, logger)
	s.commands = NewCommands(s.service)
}

func (s *ServiceSuite) account(name string, trophies int) *model.Account {
	acc := &model.Account{Name: name, Trophies: trophies, CharacterID: 1}
	s.Require().NoError(s.store.CreateAccount(s.ctx, acc))
	return acc
}

func (s *ServiceSuite) login(id model.AccountID) *testutil.FakeConn {
	conn := testutil.NewFakeConn(uint64(id))
	_, err := s.sessions.Create(id, conn)
	s.Require().NoError(err)
	return conn
}

func (s *ServiceSuite) TestSetMaintenance() {
	s.True(s.service.SetMaintenance(true))
	s.True(s.mode.Enabled())
	s.False(s.service.SetMaintenance(true))
	s.True(s.service.SetMaintenance(false))
	s.False(s.mode.Enabled())
}

func (s *ServiceSuite) TestKickRemovesPartyQueueAndSession() {
	host := s.account("host", 0)
	guest := s.account("guest", 0)
	hostConn := s.login(host.ID)
	guestConn := s.login(guest.ID)

	t, err := s.teams.Create(s.ctx, model.TeamMember{AccountID: host.ID}, gemGrabSlot, model.BattleTypeMatchmaking)
	s.Require().NoError(err)
	s.Require().NoError(s.teams.Join(s.ctx, t.ID, model.TeamMember{AccountID: guest.ID}, 0))
	s.Require().NoError(s.teams.SetReady(s.ctx, host.ID, true))
	s.Require().NoError(s.teams.SetReady(s.ctx, guest.ID, true))
	s.Require().True(s.engine.IsQueued(hostConn))

	s.Require().NoError(s.service.Kick(s.ctx, host.ID))

	s.False(s.sessions.IsActive(host.ID))
	s.False(hostConn.IsOpen())
	s.False(s.engine.IsQueued(hostConn))
	s.False(s.engine.IsQueued(guestConn), "the whole party stops searching")
	_, inTeam := s.teams.TeamOf(host.ID)
	s.False(inTeam)
	s.True(s.sessions.IsActive(guest.ID))
	s.NotEmpty(testutil.SentOfType[*protocol.MatchmakingCancelled](guestConn))
}

func (s *ServiceSuite) TestKickOfflineAccount() {
	err := s.service.Kick(s.ctx, 99)
	s.ErrorIs(err, model.ErrNoSession)
}

func (s *ServiceSuite) TestBanPersistsAndKicks() {
	acc := s.account("cheater", 10)
	conn := s.login(acc.ID)

	s.Require().NoError(s.service.Ban(s.ctx, acc.ID))

	stored, err := s.store.GetAccount(s.ctx, acc.ID)
	s.Require().NoError(err)
	s.True(stored.Banned)
	s.False(conn.IsOpen())
	s.False(s.sessions.IsActive(acc.ID))

	s.Require().NoError(s.service.Unban(s.ctx, acc.ID))
	stored, err = s.store.GetAccount(s.ctx, acc.ID)
	s.Require().NoError(err)
	s.False(stored.Banned)
}

func (s *ServiceSuite) TestBanOfflineAccount() {
	acc := s.account("offline", 0)
	s.NoError(s.service.Ban(s.ctx, acc.ID))
}

func (s *ServiceSuite) TestBanUnknownAccount() {
	s.ErrorIs(s.service.Ban(s.ctx, 404), model.ErrAccountNotFound)
}

func (s *ServiceSuite) TestSetField() {
	acc := s.account("before", 0)

	tests := []struct {
		name    string
		field   string
		value   string
		wantErr error
		check   func(*model.Account)
	}{
		{"name", "name", "  after ", nil, func(a *model.Account) { s.Equal("after", a.Name) }},
		{"trophies", "trophies", "450", nil, func(a *model.Account) { s.Equal(450, a.Trophies) }},
		{"field names are case insensitive", "Trophies", "12", nil, func(a *model.Account) { s.Equal(12, a.Trophies) }},
		{"character", "character", "5", nil, func(a *model.Account) { s.Equal(5, a.CharacterID) }},
		{"empty name", "name", " ", ErrInvalidValue, nil},
		{"negative trophies", "trophies", "-1", ErrInvalidValue, nil},
		{"non numeric trophies", "trophies", "lots", ErrInvalidValue, nil},
		{"npc character", "character", "100", ErrInvalidValue, nil},
		{"unknown character", "character", "999", model.ErrCharacterNotFound, nil},
		{"unknown field", "banned", "true", ErrUnknownField, nil},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			updated, err := s.service.SetField(s.ctx, acc.ID, tt.field, tt.value)
			if tt.wantErr != nil {
				s.ErrorIs(err, tt.wantErr)
				return
			}
			s.Require().NoError(err)
			tt.check(updated)

			stored, err := s.store.GetAccount(s.ctx, acc.ID)
			s.Require().NoError(err)
			tt.check(stored)
		})
	}
}

func (s *ServiceSuite) TestFieldsAreSorted() {
	s.Equal([]string{"character", "name", "trophies"}, s.service.Fields())
}

func (s *ServiceSuite) TestStatus() {
	acc := s.account("queued", 0)
	conn := s.login(acc.ID)
	s.Require().NoError(s.engine.Request(matchmaking.Entry{
		Conn:        conn,
		AccountID:   acc.ID,
		CharacterID: 1,
	}, gemGrabSlot))
	s.engine.Tick(s.ctx)
	s.mode.Set(true)

	st := s.service.Status()

	s.True(st.Maintenance)
	s.Equal(1, st.Sessions)
	s.Equal(7, st.Connections)
	s.Equal(2, st.ActiveBattles)
	s.Equal(1, st.Queued[gemGrabSlot])
	s.Equal(1, st.QueuedTotal)
	s.Equal(s.clock.Now(), st.Time)
}

func (s *ServiceSuite) TestLeaderboardIsCachedUntilRefresh() {
	s.account("low", 10)
	high := s.account("high", 300)
	mid := s.account("mid", 120)
	banned := s.account("banned", 999)
	s.account("rest", 5)
	banned.Banned = true
	s.Require().NoError(s.store.SaveAccount(s.ctx, banned))

	s.Empty(s.service.Leaderboard().Entries)

	s.Require().NoError(s.service.RefreshLeaderboard(s.ctx))
	board := s.service.Leaderboard()

	s.Equal(s.clock.Now(), board.UpdatedAt)
	s.Require().Len(board.Entries, 2, "the banned account is skipped from the top three")
	s.Equal(LeaderboardEntry{Rank: 1, AccountID: high.ID, Name: "high", Trophies: 300}, board.Entries[0])
	s.Equal(LeaderboardEntry{Rank: 2, AccountID: mid.ID, Name: "mid", Trophies: 120}, board.Entries[1])

	s.account("newcomer", 1000)
	s.Len(s.service.Leaderboard().Entries, 2)
	s.Equal("high", s.service.Leaderboard().Entries[0].Name)
}

func (s *ServiceSuite) TestCommandsDispatch() {
	acc := s.account("target", 0)
	s.login(acc.ID)

	res, err := s.commands.Execute(s.ctx, Request{Command: "maintenance", Args: []string{"on"}})
	s.Require().NoError(err)
	s.Equal("maintenance", res.Command)
	s.True(s.mode.Enabled())

	res, err = s.commands.Execute(s.ctx, Request{Command: "set", Args: []string{"1", "trophies", "77"}})
	s.Require().NoError(err)
	s.Equal(77, res.Data.(AccountView).Trophies)

	_, err = s.commands.Execute(s.ctx, Request{Command: "kick", Args: []string{"1"}})
	s.Require().NoError(err)
	s.False(s.sessions.IsActive(acc.ID))

	res, err = s.commands.Execute(s.ctx, Request{Command: "status"})
	s.Require().NoError(err)
	s.IsType(Status{}, res.Data)
}

func (s *ServiceSuite) TestCommandErrors() {
	_, err := s.commands.Execute(s.ctx, Request{Command: "explode"})
	s.ErrorIs(err, ErrUnknownCommand)

	var usage *UsageError

	_, err = s.commands.Execute(s.ctx, Request{Command: "kick"})
	s.Require().ErrorAs(err, &usage)
	s.Equal("kick <account-id>", usage.Usage)

	_, err = s.commands.Execute(s.ctx, Request{Command: "ban", Args: []string{"abc"}})
	s.Require().ErrorAs(err, &usage)
	s.Equal("ban", usage.Command)

	_, err = s.commands.Execute(s.ctx, Request{Command: "maintenance", Args: []string{"maybe"}})
	s.Require().ErrorAs(err, &usage)
}

func (s *ServiceSuite) TestCommandNames() {
	s.Equal([]string{"ban", "kick", "leaderboard", "maintenance", "set", "status", "unban"}, s.commands.Names())
}
