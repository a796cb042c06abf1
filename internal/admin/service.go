package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/elliotchance/pie/v2"

	"github.com/mcoot/skirmish/internal/catalog"
	"github.com/mcoot/skirmish/internal/dependencies/clock"
	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/services/maintenance"
	"github.com/mcoot/skirmish/internal/services/matchmaking"
	"github.com/mcoot/skirmish/internal/services/session"
	"github.com/mcoot/skirmish/internal/services/team"
	"github.com/mcoot/skirmish/internal/storage"
)

var (
	ErrUnknownField = errors.New("unknown account field")
	ErrInvalidValue = errors.New("invalid field value")
)

// Counter reports how many of something are currently live
type Counter interface {
	Count() int
}

// BattleCounter reports the number of running battles
type BattleCounter interface {
	Active() int
}

// Deps holds the collaborators the admin service inspects and acts on
type Deps struct {
	Sessions    *session.Registry
	Engine      *matchmaking.Engine
	Teams       *team.Service
	Accounts    storage.AccountStore
	Catalog     catalog.Catalog
	Connections Counter
	Battles     BattleCounter
	Maintenance *maintenance.Mode
	Clock       clock.Clock
}

// Status is a point-in-time summary of the server
type Status struct {
	Time          time.Time   `json:"time"`
	Maintenance   bool        `json:"maintenance"`
	Sessions      int         `json:"sessions"`
	Connections   int         `json:"connections"`
	Teams         int         `json:"teams"`
	Queued        map[int]int `json:"queued"`
	QueuedTotal   int         `json:"queued_total"`
	ActiveBattles int         `json:"active_battles"`
}

// LeaderboardEntry is one ranked account
type LeaderboardEntry struct {
	Rank      int             `json:"rank"`
	AccountID model.AccountID `json:"account_id"`
	Name      string          `json:"name"`
	Trophies  int             `json:"trophies"`
}

// Leaderboard is the cached ranking and when it was computed
type Leaderboard struct {
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type fieldSetter func(acc *model.Account, value string) error

// Service implements the operator hooks
type Service struct {
	deps            Deps
	leaderboardSize int
	fields          map[string]fieldSetter
	logger          *slog.Logger

	mu          sync.RWMutex
	leaderboard Leaderboard
}

// NewService creates the admin service. leaderboardSize bounds the cached ranking.
func NewService(deps Deps, leaderboardSize int, logger *slog.Logger) *Service {
	s := &Service{
		deps:            deps,
		leaderboardSize: leaderboardSize,
		logger:          logger.With(slog.String("component", "admin")),
	}
	s.fields = map[string]fieldSetter{
		"name":      setName,
		"trophies":  setTrophies,
		"character": s.setCharacter,
	}
	return s
}

// SetMaintenance switches maintenance mode and reports whether it changed
func (s *Service) SetMaintenance(on bool) bool {
	return s.deps.Maintenance.Set(on)
}

// Kick drops the account's party membership and queue entry, then closes its session
func (s *Service) Kick(ctx context.Context, id model.AccountID) error {
	sess, ok := s.deps.Sessions.Get(id)
	if !ok {
		return fmt.Errorf("kick account %d: %w", id, model.ErrNoSession)
	}

	s.deps.Teams.Disconnect(id)
	s.deps.Engine.Cancel(sess.Conn)
	s.deps.Sessions.Remove(id)

	s.logger.Info("account kicked", slog.Int64("account_id", int64(id)))
	return nil
}

// Ban marks the account banned and kicks it if it is online
func (s *Service) Ban(ctx context.Context, id model.AccountID) error {
	if err := s.setBanned(ctx, id, true); err != nil {
		return err
	}
	if err := s.Kick(ctx, id); err != nil && !errors.Is(err, model.ErrNoSession) {
		return err
	}
	return nil
}

// Unban clears the banned flag
func (s *Service) Unban(ctx context.Context, id model.AccountID) error {
	return s.setBanned(ctx, id, false)
}

func (s *Service) setBanned(ctx context.Context, id model.AccountID, banned bool) error {
	acc, err := s.deps.Accounts.GetAccount(ctx, id)
	if err != nil {
		return fmt.Errorf("load account %d: %w", id, err)
	}
	acc.Banned = banned
	acc.UpdatedAt = s.deps.Clock.Now()
	if err := s.deps.Accounts.SaveAccount(ctx, acc); err != nil {
		return fmt.Errorf("save account %d: %w", id, err)
	}
	s.logger.Info("account ban changed",
		slog.Int64("account_id", int64(id)),
		slog.Bool("banned", banned))
	return nil
}

// Fields returns the names accepted by SetField, sorted
func (s *Service) Fields() []string {
	return pie.Sort(pie.Keys(s.fields))
}

// SetField updates one editable account field from its string form
func (s *Service) SetField(ctx context.Context, id model.AccountID, field, value string) (*model.Account, error) {
	set, ok := s.fields[strings.ToLower(field)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	acc, err := s.deps.Accounts.GetAccount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", id, err)
	}
	if err := set(acc, value); err != nil {
		return nil, err
	}
	acc.UpdatedAt = s.deps.Clock.Now()
	if err := s.deps.Accounts.SaveAccount(ctx, acc); err != nil {
		return nil, fmt.Errorf("save account %d: %w", id, err)
	}

	s.logger.Info("account field set",
		slog.Int64("account_id", int64(id)),
		slog.String("field", field))
	return acc, nil
}

func setName(acc *model.Account, value string) error {
	name := strings.TrimSpace(value)
	if name == "" || len(name) > 32 {
		return fmt.Errorf("%w: name must be 1-32 characters", ErrInvalidValue)
	}
	acc.Name = name
	return nil
}

func setTrophies(acc *model.Account, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("%w: trophies must be a non-negative integer", ErrInvalidValue)
	}
	acc.Trophies = n
	return nil
}

func (s *Service) setCharacter(acc *model.Account, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%w: character must be an integer id", ErrInvalidValue)
	}
	ch, err := s.deps.Catalog.Character(n)
	if err != nil {
		return err
	}
	if ch.NPC {
		return fmt.Errorf("%w: character %d is not playable", ErrInvalidValue, n)
	}
	acc.CharacterID = n
	return nil
}

// Status collects the current counters
func (s *Service) Status() Status {
	queued := s.deps.Engine.QueueDepths()
	total := 0
	for _, n := range queued {
		total += n
	}
	return Status{
		Time:          s.deps.Clock.Now(),
		Maintenance:   s.deps.Maintenance.Enabled(),
		Sessions:      s.deps.Sessions.Count(),
		Connections:   s.deps.Connections.Count(),
		Teams:         s.deps.Teams.Count(),
		Queued:        queued,
		QueuedTotal:   total,
		ActiveBattles: s.deps.Battles.Active(),
	}
}

// Leaderboard returns the ranking as of the last refresh
func (s *Service) Leaderboard() Leaderboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Leaderboard{
		Entries:   append([]LeaderboardEntry(nil), s.leaderboard.Entries...),
		UpdatedAt: s.leaderboard.UpdatedAt,
	}
}

// RefreshLeaderboard recomputes the cached ranking from the account store
func (s *Service) RefreshLeaderboard(ctx context.Context) error {
	accounts, err := s.deps.Accounts.TopByTrophies(ctx, s.leaderboardSize)
	if err != nil {
		return fmt.Errorf("load leaderboard: %w", err)
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].Trophies > accounts[j].Trophies
	})

	entries := make([]LeaderboardEntry, 0, len(accounts))
	for _, acc := range accounts {
		if acc.Banned {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			Rank:      len(entries) + 1,
			AccountID: acc.ID,
			Name:      acc.Name,
			Trophies:  acc.Trophies,
		})
	}

	s.mu.Lock()
	s.leaderboard = Leaderboard{Entries: entries, UpdatedAt: s.deps.Clock.Now()}
	s.mu.Unlock()
	return nil
}
