package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/protocol"
	"github.com/mcoot/skirmish/internal/services/auth"
)

// handleHello checks the client version and answers with the session key.
// Everything here travels in the clear.
func (s *Server) handleHello(c *Connection, payload []byte) error {
	msg, err := s.registry.Decode(protocol.TypeClientHello, payload)
	if err != nil {
		return protocolError("hello", err)
	}
	hello := msg.(*protocol.ClientHello)

	if err := s.deps.Auth.CheckVersion(int(hello.Major)); err != nil {
		return &AuthError{Code: protocol.LoginFailedUpdateRequired, Err: err}
	}

	frame, err := c.frame(protocol.TypeServerHello, protocol.Encode(&protocol.ServerHello{SessionKey: c.channel.SessionKey()}))
	if err != nil {
		return err
	}
	if err := c.sendRaw(frame); err != nil {
		return err
	}
	c.setState(AwaitingLogin)
	return nil
}

// handleLogin opens the sealed Login, authenticates it and activates the secure channel
func (s *Server) handleLogin(ctx context.Context, c *Connection, payload []byte) error {
	plain, err := c.channel.OpenLogin(payload)
	if err != nil {
		return protocolError("login", err)
	}
	msg, err := s.registry.Decode(protocol.TypeLogin, plain)
	if err != nil {
		return protocolError("login", err)
	}
	login := msg.(*protocol.Login)
	c.setState(KeyExchanged)

	res, err := s.deps.Auth.Login(ctx, model.AccountID(login.AccountID), login.Token, int(login.Major))
	if err != nil {
		if auth.IsRejection(err) {
			return &AuthError{Code: loginFailureCode(err), Err: err}
		}
		return fmt.Errorf("login: %w", err)
	}
	acc := res.Account

	sealed, err := c.channel.SealLoginResponse(protocol.Encode(&protocol.LoginOk{
		AccountID: int64(acc.ID),
		Token:     res.Token,
		Name:      acc.Name,
		Trophies:  int32(acc.Trophies),
		Major:     login.Major,
		Build:     login.Build,
	}))
	if err != nil {
		return err
	}
	frame, err := c.frame(protocol.TypeLoginOk, sealed)
	if err != nil {
		return err
	}
	if err := c.sendRaw(frame); err != nil {
		return err
	}

	c.account.Store(int64(acc.ID))
	c.setState(SecureChannelActive)
	if _, err := s.deps.Sessions.Create(acc.ID, c); err != nil {
		return err
	}
	c.touch()
	s.deps.Metrics.SessionsActive(s.deps.Sessions.Count())
	c.logger.Info("logged in",
		slog.Int64("account_id", int64(acc.ID)),
		slog.Bool("created", res.Created))
	return nil
}

// rejectLogin sends LoginFailed, sealed if the client has already sent its
// Login, and closes the connection once it is written.
func (s *Server) rejectLogin(c *Connection, authErr *AuthError) {
	s.deps.Metrics.LoginFailed(failureReason(authErr.Code))
	c.logger.Info("login rejected",
		slog.Int("code", int(authErr.Code)),
		slog.String("error", authErr.Err.Error()))

	payload := protocol.Encode(&protocol.LoginFailed{Code: authErr.Code, Reason: authErr.Err.Error()})
	if c.State() != AwaitingHello {
		sealed, err := c.channel.SealLoginResponse(payload)
		if err != nil {
			_ = c.Close()
			return
		}
		payload = sealed
	}
	frame, err := c.frame(protocol.TypeLoginFailed, payload)
	if err != nil {
		_ = c.Close()
		return
	}
	if err := c.sendRaw(frame); err != nil {
		return
	}
	c.closeAfterFlush()
}
