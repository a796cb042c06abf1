package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/skirmish/internal/dependencies/mocks"
	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/services/maintenance"
	"github.com/mcoot/skirmish/internal/storage/memory"
	"github.com/mcoot/skirmish/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	storage     *memory.Storage
	clock       *mocks.MockClock
	random      *mocks.MockRandom
	maintenance *maintenance.Mode
	service     *Service
	ctx         context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.maintenance = maintenance.NewMode(false, testutil.NopLogger())
	cfg := DefaultConfig()
	cfg.BcryptCost = bcrypt.MinCost
	cfg.MinClientMajor = 2
	s.service = New(s.storage, s.maintenance, s.clock, s.random, cfg, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *ServiceSuite) register() *Result {
	res, err := s.service.Login(s.ctx, 0, "", 2)
	s.Require().NoError(err)
	return res
}

func (s *ServiceSuite) TestRegisterCreatesAccount() {
	res := s.register()

	s.True(res.Created)
	s.NotEmpty(res.Token)
	s.NotZero(res.Account.ID)
	s.Equal(s.clock.Now(), res.Account.CreatedAt)

	stored, err := s.storage.GetAccount(s.ctx, res.Account.ID)
	s.Require().NoError(err)
	s.NotEqual(res.Token, stored.TokenHash)
	s.NotEmpty(stored.Name)
}

func (s *ServiceSuite) TestLoginWithIssuedToken() {
	created := s.register()

	res, err := s.service.Login(s.ctx, created.Account.ID, created.Token, 2)
	s.Require().NoError(err)
	s.False(res.Created)
	s.Empty(res.Token)
	s.Equal(created.Account.ID, res.Account.ID)
}

func (s *ServiceSuite) TestLoginRejections() {
	created := s.register()

	_, err := s.service.Login(s.ctx, created.Account.ID, "wrong", 2)
	s.ErrorIs(err, model.ErrInvalidToken)

	_, err = s.service.Login(s.ctx, 999, created.Token, 2)
	s.ErrorIs(err, model.ErrAccountNotFound)

	_, err = s.service.Login(s.ctx, created.Account.ID, created.Token, 1)
	s.ErrorIs(err, model.ErrUpdateRequired)
	s.True(IsRejection(err))
}

func (s *ServiceSuite) TestBannedAccountRejected() {
	created := s.register()
	acc, err := s.storage.GetAccount(s.ctx, created.Account.ID)
	s.Require().NoError(err)
	acc.Banned = true
	s.Require().NoError(s.storage.SaveAccount(s.ctx, acc))

	_, err = s.service.Login(s.ctx, created.Account.ID, created.Token, 2)
	s.ErrorIs(err, model.ErrAccountBanned)
}

func (s *ServiceSuite) TestMaintenanceRejectsEveryLogin() {
	s.maintenance.Set(true)

	_, err := s.service.Login(s.ctx, 0, "", 2)
	s.ErrorIs(err, model.ErrMaintenance)
}

func (s *ServiceSuite) TestCheckVersion() {
	s.ErrorIs(s.service.CheckVersion(1), model.ErrUpdateRequired)
	s.NoError(s.service.CheckVersion(2))
	s.NoError(s.service.CheckVersion(3))
}
