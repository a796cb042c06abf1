package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/skirmish/internal/dependencies/clock"
	"github.com/mcoot/skirmish/internal/dependencies/random"
	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/services/maintenance"
	"github.com/mcoot/skirmish/internal/storage"
)

// tokenBytes is the entropy of a generated pass token
const tokenBytes = 24

// Config holds configuration for the auth service
type Config struct {
	// MinClientMajor is the oldest client major version allowed to log in
	MinClientMajor int
	// BcryptCost is the work factor for token hashes
	BcryptCost int
	// DefaultCharacter is selected for new accounts
	DefaultCharacter int
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		MinClientMajor:   1,
		BcryptCost:       bcrypt.DefaultCost,
		DefaultCharacter: 0,
	}
}

// Result is a successful login. Token is only set for newly created accounts.
type Result struct {
	Account *model.Account
	Token   string
	Created bool
}

// Service authenticates logins against the account store
type Service struct {
	accounts    storage.AccountStore
	maintenance *maintenance.Mode
	clock       clock.Clock
	random      random.Random
	cfg         Config
	logger      *slog.Logger
}

// New creates a new auth Service
func New(accounts storage.AccountStore, mode *maintenance.Mode, clk clock.Clock, rnd random.Random, cfg Config, logger *slog.Logger) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultConfig().BcryptCost
	}
	return &Service{
		accounts:    accounts,
		maintenance: mode,
		clock:       clk,
		random:      rnd,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "auth")),
	}
}

// CheckVersion rejects clients older than the configured minimum
func (s *Service) CheckVersion(major int) error {
	if major < s.cfg.MinClientMajor {
		return model.ErrUpdateRequired
	}
	return nil
}

// Login authenticates id with token. An id of zero registers a new account.
// Maintenance mode rejects every login.
func (s *Service) Login(ctx context.Context, id model.AccountID, token string, major int) (*Result, error) {
	if s.maintenance.Enabled() {
		return nil, model.ErrMaintenance
	}
	if err := s.CheckVersion(major); err != nil {
		return nil, err
	}
	if id == 0 {
		return s.register(ctx)
	}

	acc, err := s.accounts.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.TokenHash), []byte(token)); err != nil {
		return nil, model.ErrInvalidToken
	}
	if acc.Banned {
		return nil, model.ErrAccountBanned
	}
	return &Result{Account: acc}, nil
}

func (s *Service) register(ctx context.Context) (*Result, error) {
	token := base64.RawURLEncoding.EncodeToString(s.random.Bytes(tokenBytes))
	hash, err := bcrypt.GenerateFromPassword([]byte(token), s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	acc := &model.Account{
		TokenHash:   string(hash),
		CharacterID: s.cfg.DefaultCharacter,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.accounts.CreateAccount(ctx, acc); err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}
	if acc.Name == "" {
		acc.Name = fmt.Sprintf("Player %d", acc.ID)
		if err := s.accounts.SaveAccount(ctx, acc); err != nil {
			return nil, fmt.Errorf("naming account: %w", err)
		}
	}

	s.logger.Info("account registered", slog.Int64("account_id", int64(acc.ID)))
	return &Result{Account: acc, Token: token, Created: true}, nil
}

// IsRejection reports whether err is a login rejection the client should be told about
func IsRejection(err error) bool {
	return errors.Is(err, model.ErrMaintenance) ||
		errors.Is(err, model.ErrUpdateRequired) ||
		errors.Is(err, model.ErrAccountNotFound) ||
		errors.Is(err, model.ErrInvalidToken) ||
		errors.Is(err, model.ErrAccountBanned)
}
