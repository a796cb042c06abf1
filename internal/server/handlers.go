package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/protocol"
	"github.com/mcoot/skirmish/internal/services/matchmaking"
	"github.com/mcoot/skirmish/internal/services/roster"
)

var ErrInBattle = errors.New("account is in a battle")

func (s *Server) routes() map[uint16]handlerFunc {
	return map[uint16]handlerFunc{
		protocol.TypeKeepAlive:         s.handleKeepAlive,
		protocol.TypeMatchmakeRequest:  s.handleMatchmake,
		protocol.TypeCancelMatchmaking: s.handleCancelMatchmaking,
		protocol.TypeTeamCreate:        s.handleTeamCreate,
		protocol.TypeTeamJoin:          s.handleTeamJoin,
		protocol.TypeTeamLeave:         s.handleTeamLeave,
		protocol.TypeTeamSetReady:      s.handleTeamSetReady,
		protocol.TypeTeamToggleBotSeat: s.handleTeamToggleBotSeat,
	}
}

func (s *Server) handleKeepAlive(ctx context.Context, c *Connection, _ protocol.Message) error {
	c.touch()
	id, _ := c.AccountID()
	s.deps.Sessions.Touch(id)
	return c.Send(&protocol.KeepAliveServer{})
}

func (s *Server) handleMatchmake(ctx context.Context, c *Connection, msg protocol.Message) error {
	req := msg.(*protocol.MatchmakeRequest)
	id, _ := c.AccountID()

	err := s.matchmake(ctx, c, id, int(req.EventSlot), int(req.CharacterID))
	switch {
	case err == nil, errors.Is(err, model.ErrAlreadyQueued):
		return nil
	default:
		_ = c.Send(&protocol.MatchmakingCancelled{})
		return err
	}
}

func (s *Server) matchmake(ctx context.Context, c *Connection, id model.AccountID, slot, characterID int) error {
	if s.deps.Maintenance.Enabled() {
		return model.ErrMaintenance
	}
	if _, inTeam := s.deps.Teams.TeamOf(id); inTeam {
		return model.ErrAlreadyInTeam
	}
	if sess, ok := s.deps.Sessions.Get(id); ok && sess.InBattle() {
		return ErrInBattle
	}
	character, err := s.deps.Catalog.Character(characterID)
	if err != nil {
		return err
	}
	if character.NPC {
		return fmt.Errorf("%w: %d is not playable", model.ErrCharacterNotFound, characterID)
	}

	acc, err := s.selectCharacter(ctx, id, characterID)
	if err != nil {
		return err
	}
	return s.deps.Engine.Request(matchmaking.Entry{
		Conn:          c,
		AccountID:     id,
		Name:          acc.Name,
		CharacterID:   characterID,
		PreferredTeam: roster.NoPreference,
	}, slot)
}

// selectCharacter persists the character the client picked
func (s *Server) selectCharacter(ctx context.Context, id model.AccountID, characterID int) (*model.Account, error) {
	acc, err := s.deps.Accounts.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc.CharacterID == characterID {
		return acc, nil
	}
	acc.CharacterID = characterID
	acc.UpdatedAt = s.deps.Clock.Now()
	if err := s.deps.Accounts.SaveAccount(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *Server) handleCancelMatchmaking(ctx context.Context, c *Connection, _ protocol.Message) error {
	id, _ := c.AccountID()
	if _, inTeam := s.deps.Teams.TeamOf(id); inTeam {
		return s.deps.Teams.CancelMatchmaking(ctx, id)
	}
	s.deps.Engine.Cancel(c)
	return nil
}

func (s *Server) member(ctx context.Context, id model.AccountID) (model.TeamMember, error) {
	acc, err := s.deps.Accounts.GetAccount(ctx, id)
	if err != nil {
		return model.TeamMember{}, err
	}
	return model.TeamMember{AccountID: acc.ID, Name: acc.Name, CharacterID: acc.CharacterID}, nil
}

func (s *Server) handleTeamCreate(ctx context.Context, c *Connection, msg protocol.Message) error {
	req := msg.(*protocol.TeamCreate)
	if s.deps.Maintenance.Enabled() {
		return model.ErrMaintenance
	}
	battleType := model.BattleType(req.BattleType)
	if battleType != model.BattleTypeMatchmaking && battleType != model.BattleTypeFriendly {
		return fmt.Errorf("unknown battle type %d", req.BattleType)
	}
	id, _ := c.AccountID()
	if s.deps.Engine.IsQueued(c) {
		return model.ErrAlreadyQueued
	}
	m, err := s.member(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.deps.Teams.Create(ctx, m, int(req.EventSlot), battleType)
	return err
}

func (s *Server) handleTeamJoin(ctx context.Context, c *Connection, msg protocol.Message) error {
	req := msg.(*protocol.TeamJoin)
	id, _ := c.AccountID()
	if s.deps.Engine.IsQueued(c) {
		return model.ErrAlreadyQueued
	}
	m, err := s.member(ctx, id)
	if err != nil {
		return err
	}
	return s.deps.Teams.Join(ctx, model.TeamID(req.TeamID), m, int(req.TeamIndex))
}

func (s *Server) handleTeamLeave(ctx context.Context, c *Connection, _ protocol.Message) error {
	id, _ := c.AccountID()
	return s.deps.Teams.Leave(ctx, id)
}

func (s *Server) handleTeamSetReady(ctx context.Context, c *Connection, msg protocol.Message) error {
	req := msg.(*protocol.TeamSetReady)
	id, _ := c.AccountID()
	if req.Ready && s.deps.Maintenance.Enabled() {
		return model.ErrMaintenance
	}
	return s.deps.Teams.SetReady(ctx, id, req.Ready)
}

func (s *Server) handleTeamToggleBotSeat(ctx context.Context, c *Connection, msg protocol.Message) error {
	req := msg.(*protocol.TeamToggleBotSeat)
	id, _ := c.AccountID()
	return s.deps.Teams.ToggleBotSeat(ctx, id, int(req.TeamIndex), int(req.Position))
}
