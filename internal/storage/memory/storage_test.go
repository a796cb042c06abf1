package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/skirmish/internal/model"
)

type StorageSuite struct {
	suite.Suite
	storage *Storage
	ctx     context.Context
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.storage = New()
	s.ctx = context.Background()
}

func (s *StorageSuite) TestCreateAssignsSequentialIDs() {
	a := &model.Account{Name: "Alice", CreatedAt: time.Now()}
	b := &model.Account{Name: "Bob"}

	s.Require().NoError(s.storage.CreateAccount(s.ctx, a))
	s.Require().NoError(s.storage.CreateAccount(s.ctx, b))

	s.Equal(model.AccountID(1), a.ID)
	s.Equal(model.AccountID(2), b.ID)
}

func (s *StorageSuite) TestGetAccountNotFound() {
	_, err := s.storage.GetAccount(s.ctx, 99)
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *StorageSuite) TestGetReturnsCopy() {
	a := &model.Account{Name: "Alice"}
	s.Require().NoError(s.storage.CreateAccount(s.ctx, a))

	got, err := s.storage.GetAccount(s.ctx, a.ID)
	s.Require().NoError(err)
	got.Name = "Mallory"

	again, _ := s.storage.GetAccount(s.ctx, a.ID)
	s.Equal("Alice", again.Name)
}

func (s *StorageSuite) TestSaveOverwrites() {
	a := &model.Account{Name: "Alice"}
	s.Require().NoError(s.storage.CreateAccount(s.ctx, a))

	a.Trophies = 120
	s.Require().NoError(s.storage.SaveAccount(s.ctx, a))

	got, _ := s.storage.GetAccount(s.ctx, a.ID)
	s.Equal(120, got.Trophies)
}

func (s *StorageSuite) TestSaveWithExplicitIDAdvancesCounter() {
	s.Require().NoError(s.storage.SaveAccount(s.ctx, &model.Account{ID: 10}))

	a := &model.Account{}
	s.Require().NoError(s.storage.CreateAccount(s.ctx, a))
	s.Equal(model.AccountID(11), a.ID)
}

func (s *StorageSuite) TestTopByTrophies() {
	for _, t := range []int{50, 300, 10, 300} {
		s.Require().NoError(s.storage.CreateAccount(s.ctx, &model.Account{Trophies: t}))
	}

	top, err := s.storage.TopByTrophies(s.ctx, 3)
	s.Require().NoError(err)
	s.Require().Len(top, 3)
	s.Equal(model.AccountID(2), top[0].ID)
	s.Equal(model.AccountID(4), top[1].ID)
	s.Equal(50, top[2].Trophies)
}
