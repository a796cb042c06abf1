package server_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/skirmish/internal/factory"
	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/protocol"
	"github.com/mcoot/skirmish/internal/securechannel"
	"github.com/mcoot/skirmish/internal/testutil"
)

const (
	readTimeout = 2 * time.Second
	gemGrabSlot = 1
)

type ServerSuite struct {
	suite.Suite
	app    *factory.TestApp
	cancel context.CancelFunc
	done   chan error
	addr   string
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.app = factory.NewTestApp()
	s.Require().NoError(s.app.Server.Listen())
	s.addr = s.app.Server.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() { s.done <- s.app.Server.Serve(ctx) }()
}

func (s *ServerSuite) TearDownTest() {
	s.cancel()
	select {
	case err := <-s.done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.Fail("server did not stop")
	}
	s.app.Battles.Close()
}

func (s *ServerSuite) dial() *testutil.Client {
	c, err := testutil.Dial(s.addr, securechannel.NewPlainClient())
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = c.Close() })
	return c
}

// connect completes the handshake, registering a new account when id is zero
func (s *ServerSuite) connect(id model.AccountID, token string) (*testutil.Client, *protocol.LoginOk) {
	c := s.dial()
	msg, err := c.Hello(1)
	s.Require().NoError(err)
	s.Require().IsType(&protocol.ServerHello{}, msg)

	msg, err = c.Login(&protocol.Login{AccountID: int64(id), Token: token, Major: 1, Build: 7})
	s.Require().NoError(err)
	ok, isOk := msg.(*protocol.LoginOk)
	s.Require().True(isOk, "got %T", msg)

	s.Require().Eventually(func() bool {
		return s.app.Sessions.IsActive(model.AccountID(ok.AccountID))
	}, readTimeout, 5*time.Millisecond)
	return c, ok
}

// assertClosed expects the server to hang up without sending anything else
func (s *ServerSuite) assertClosed(c *testutil.Client) {
	_, _, err := c.ReadFrame(readTimeout)
	s.Error(err)
}

func (s *ServerSuite) TestHandshakeRegistersNewAccount() {
	c := s.dial()

	msg, err := c.Hello(1)
	s.Require().NoError(err)
	hello := msg.(*protocol.ServerHello)
	s.Len(hello.SessionKey, securechannel.SessionKeySize)

	msg, err = c.Login(&protocol.Login{Major: 1, Build: 7})
	s.Require().NoError(err)
	ok := msg.(*protocol.LoginOk)
	s.Positive(ok.AccountID)
	s.NotEmpty(ok.Token)
	s.Equal(int32(7), ok.Build)

	s.Eventually(func() bool {
		return s.app.Sessions.IsActive(model.AccountID(ok.AccountID))
	}, readTimeout, 5*time.Millisecond)
}

func (s *ServerSuite) TestLoginWithToken() {
	first, created := s.connect(0, "")
	_ = first.Close()
	s.Eventually(func() bool {
		return !s.app.Sessions.IsActive(model.AccountID(created.AccountID))
	}, readTimeout, 5*time.Millisecond)

	_, again := s.connect(model.AccountID(created.AccountID), created.Token)
	s.Equal(created.AccountID, again.AccountID)
	s.Empty(again.Token, "the token is only handed out once")
}

func (s *ServerSuite) TestSecondLoginEvictsFirstConnection() {
	first, created := s.connect(0, "")
	second, _ := s.connect(model.AccountID(created.AccountID), created.Token)

	s.assertClosed(first)

	s.Require().NoError(second.Send(&protocol.KeepAlive{}))
	_, err := testutil.Expect[*protocol.KeepAliveServer](second, readTimeout)
	s.Require().NoError(err)
	s.True(s.app.Sessions.IsActive(model.AccountID(created.AccountID)), "the evicted connection must not release its successor")
}

func (s *ServerSuite) TestOutdatedClientRejectedInPlaintext() {
	c := s.dial()

	msg, err := c.Hello(0)
	s.Require().NoError(err)
	failed, ok := msg.(*protocol.LoginFailed)
	s.Require().True(ok, "got %T", msg)
	s.Equal(protocol.LoginFailedUpdateRequired, failed.Code)

	s.assertClosed(c)
}

func (s *ServerSuite) TestLoginRejections() {
	_, created := s.connect(0, "")

	tests := []struct {
		name  string
		setup func()
		login protocol.Login
		code  protocol.LoginFailureCode
	}{
		{
			name:  "unknown account",
			login: protocol.Login{AccountID: 999, Token: "x", Major: 1},
			code:  protocol.LoginFailedAccountNotFound,
		},
		{
			name:  "wrong token",
			login: protocol.Login{AccountID: created.AccountID, Token: "wrong", Major: 1},
			code:  protocol.LoginFailedInvalidToken,
		},
		{
			name:  "maintenance",
			setup: func() { s.app.Maintenance.Set(true) },
			login: protocol.Login{Major: 1},
			code:  protocol.LoginFailedMaintenance,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			if tt.setup != nil {
				tt.setup()
			}
			c := s.dial()
			_, err := c.Hello(1)
			s.Require().NoError(err)

			msg, err := c.Login(&tt.login)
			s.Require().NoError(err)
			failed, ok := msg.(*protocol.LoginFailed)
			s.Require().True(ok, "got %T", msg)
			s.Equal(tt.code, failed.Code)
			s.assertClosed(c)
		})
	}
}

func (s *ServerSuite) TestBannedAccountRejected() {
	first, created := s.connect(0, "")
	s.Require().NoError(s.app.Admin.Ban(context.Background(), model.AccountID(created.AccountID)))
	s.assertClosed(first)

	c := s.dial()
	_, err := c.Hello(1)
	s.Require().NoError(err)
	msg, err := c.Login(&protocol.Login{AccountID: created.AccountID, Token: created.Token, Major: 1})
	s.Require().NoError(err)
	s.Equal(protocol.LoginFailedBanned, msg.(*protocol.LoginFailed).Code)
}

func (s *ServerSuite) TestMessageBeforeHelloClosesConnection() {
	c := s.dial()
	s.Require().NoError(c.WriteFrame(protocol.TypeKeepAlive, nil))
	s.assertClosed(c)
}

func (s *ServerSuite) TestRepeatedHelloClosesConnection() {
	c, _ := s.connect(0, "")
	s.Require().NoError(c.WriteFrame(protocol.TypeClientHello, protocol.Encode(&protocol.ClientHello{Major: 1})))
	s.assertClosed(c)
}

func (s *ServerSuite) TestNonZeroReservedByteClosesConnection() {
	c := s.dial()
	head := protocol.Header{Type: protocol.TypeClientHello, Length: 0, Version: 1}.Bytes()
	head[2] = 1
	s.Require().NoError(c.WriteRaw(head))
	s.assertClosed(c)
}

func (s *ServerSuite) TestKeepAliveRefreshesHeartbeat() {
	c, ok := s.connect(0, "")
	s.app.MockClock.Advance(10 * time.Second)

	s.Require().NoError(c.Send(&protocol.KeepAlive{}))
	_, err := testutil.Expect[*protocol.KeepAliveServer](c, readTimeout)
	s.Require().NoError(err)

	sess, found := s.app.Sessions.Get(model.AccountID(ok.AccountID))
	s.Require().True(found)
	s.Equal(s.app.MockClock.Now(), sess.LastHeartbeat)
}

func (s *ServerSuite) TestUnknownMessageIsIgnored() {
	c, _ := s.connect(0, "")

	s.Require().NoError(c.WriteFrame(19999, []byte{1, 2, 3}))
	s.Require().NoError(c.Send(&protocol.KeepAlive{}))
	_, err := testutil.Expect[*protocol.KeepAliveServer](c, readTimeout)
	s.NoError(err)
}

func (s *ServerSuite) TestMatchmakeReportsStatusAndCancels() {
	c, ok := s.connect(0, "")

	s.Require().NoError(c.Send(&protocol.MatchmakeRequest{EventSlot: gemGrabSlot, CharacterID: 3}))
	s.Require().Eventually(func() bool { return s.app.Engine.QueuedCount() == 1 }, readTimeout, 5*time.Millisecond)

	s.app.Engine.Tick(context.Background())
	status, err := testutil.Expect[*protocol.MatchmakingStatus](c, readTimeout)
	s.Require().NoError(err)
	s.Equal(int32(1), status.Found)
	s.Equal(int32(6), status.Required)

	acc, err := s.app.Accounts.GetAccount(context.Background(), model.AccountID(ok.AccountID))
	s.Require().NoError(err)
	s.Equal(3, acc.CharacterID)

	s.Require().NoError(c.Send(&protocol.CancelMatchmaking{}))
	_, err = testutil.Expect[*protocol.MatchmakingCancelled](c, readTimeout)
	s.Require().NoError(err)
	s.Zero(s.app.Engine.QueuedCount())
}

func (s *ServerSuite) TestMatchmakeWithNPCCharacterIsCancelled() {
	c, _ := s.connect(0, "")

	s.Require().NoError(c.Send(&protocol.MatchmakeRequest{EventSlot: gemGrabSlot, CharacterID: 100}))
	_, err := testutil.Expect[*protocol.MatchmakingCancelled](c, readTimeout)
	s.Require().NoError(err)
	s.Zero(s.app.Engine.QueuedCount())
}

func (s *ServerSuite) TestTeamCreateSendsUpdate() {
	c, ok := s.connect(0, "")

	s.Require().NoError(c.Send(&protocol.TeamCreate{EventSlot: gemGrabSlot, BattleType: int32(model.BattleTypeFriendly)}))
	update, err := testutil.Expect[*protocol.TeamUpdate](c, readTimeout)
	s.Require().NoError(err)
	s.Require().Len(update.Members, 1)
	s.Equal(ok.AccountID, update.Members[0].AccountID)

	s.Require().NoError(c.Send(&protocol.TeamLeave{}))
	left, err := testutil.Expect[*protocol.TeamLeft](c, readTimeout)
	s.Require().NoError(err)
	s.Equal(protocol.TeamLeftByChoice, left.Reason)
	s.Zero(s.app.Teams.Count())
}

func (s *ServerSuite) TestDisconnectReleasesSessionAndQueue() {
	c, ok := s.connect(0, "")
	s.Require().NoError(c.Send(&protocol.MatchmakeRequest{EventSlot: gemGrabSlot, CharacterID: 1}))
	s.Require().Eventually(func() bool { return s.app.Engine.QueuedCount() == 1 }, readTimeout, 5*time.Millisecond)

	s.Require().NoError(c.Close())

	s.Eventually(func() bool {
		return !s.app.Sessions.IsActive(model.AccountID(ok.AccountID)) &&
			s.app.Engine.QueuedCount() == 0 &&
			s.app.Connections.Count() == 0
	}, readTimeout, 5*time.Millisecond)
}

func (s *ServerSuite) TestReloginWhileSearchingCancelsParty() {
	leader, created := s.connect(0, "")
	s.Require().NoError(leader.Send(&protocol.TeamCreate{EventSlot: gemGrabSlot, BattleType: int32(model.BattleTypeMatchmaking)}))
	update, err := testutil.Expect[*protocol.TeamUpdate](leader, readTimeout)
	s.Require().NoError(err)
	teamID := model.TeamID(update.TeamID)

	mate, _ := s.connect(0, "")
	s.Require().NoError(mate.Send(&protocol.TeamJoin{TeamID: update.TeamID}))
	_, err = testutil.Expect[*protocol.TeamUpdate](mate, readTimeout)
	s.Require().NoError(err)

	s.Require().NoError(leader.Send(&protocol.TeamSetReady{Ready: true}))
	s.Require().NoError(mate.Send(&protocol.TeamSetReady{Ready: true}))
	s.Require().Eventually(func() bool { return s.app.Engine.QueuedCount() == 2 }, readTimeout, 5*time.Millisecond)
	s.app.Engine.Tick(context.Background())

	s.connect(model.AccountID(created.AccountID), created.Token)
	s.assertClosed(leader)

	_, err = testutil.Expect[*protocol.MatchmakingCancelled](mate, readTimeout)
	s.Require().NoError(err)
	s.Eventually(func() bool {
		t, err := s.app.Teams.Get(teamID)
		return err == nil && !t.Searching && len(t.Members) == 2 && s.app.Engine.QueuedCount() == 0
	}, readTimeout, 5*time.Millisecond)

	s.app.Engine.Tick(context.Background())
	s.Zero(s.app.Engine.QueueDepths()[gemGrabSlot])
	s.Zero(s.app.Battles.Active())
}

func (s *ServerSuite) TestSilentConnectionIsReaped() {
	c, ok := s.connect(0, "")

	s.app.MockClock.Advance(16 * time.Second)
	s.Equal(1, s.app.Connections.Reconcile(context.Background()))

	s.assertClosed(c)
	s.False(s.app.Sessions.IsActive(model.AccountID(ok.AccountID)))
}

func (s *ServerSuite) TestShutdownClosesClients() {
	c, _ := s.connect(0, "")

	s.cancel()
	s.assertClosed(c)
}
