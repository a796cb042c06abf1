package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/mcoot/skirmish/internal/model"
)

//go:embed data/catalog.json
var defaultData []byte

// Mode describes the rules of a game mode that matter to roster assembly
type Mode struct {
	Name                  string `json:"name"`
	MaxPlayers            int    `json:"maxPlayers"`
	TimerSeconds          int    `json:"timerSeconds"`
	FreeForAll            bool   `json:"freeForAll"`
	BossFight             bool   `json:"bossFight"`
	BossCharacterID       int    `json:"bossCharacterId"`
	BotsCollectObjectives bool   `json:"botsCollectObjectives"`
	FriendlyAllowed       bool   `json:"friendlyAllowed"`
}

// RequiredPlayerCount is the number of queued entries a slot pops per battle.
// Free-for-all slots start as soon as one entry is queued and fill the rest with bots.
// Boss fights leave one seat for the boss.
func (m Mode) RequiredPlayerCount() int {
	switch {
	case m.FreeForAll:
		return 1
	case m.BossFight:
		return m.MaxPlayers - 1
	default:
		return m.MaxPlayers
	}
}

// HasTwoTeams reports whether humans are balanced across two teams
func (m Mode) HasTwoTeams() bool {
	return !m.FreeForAll && !m.BossFight
}

// IsFreeForAll reports whether every player is on their own team
func (m Mode) IsFreeForAll() bool {
	return m.FreeForAll
}

// PlayersPerTeam is the seat quota of each human team
func (m Mode) PlayersPerTeam() int {
	switch {
	case m.FreeForAll:
		return 1
	case m.BossFight:
		return m.MaxPlayers - 1
	default:
		return m.MaxPlayers / 2
	}
}

// HumanSeats is the number of roster seats filled by humans or bots, excluding any boss
func (m Mode) HumanSeats() int {
	if m.BossFight {
		return m.MaxPlayers - 1
	}
	return m.MaxPlayers
}

// Location is a map bound to a game mode
type Location struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Mode string `json:"mode"`
}

// Character is a playable (or NPC) character
type Character struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	NPC  bool   `json:"npc"`
}

// Event binds a matchmaking slot to a location in the active rotation
type Event struct {
	Slot       int `json:"slot"`
	LocationID int `json:"location"`
}

type data struct {
	Modes         []Mode      `json:"modes"`
	Locations     []Location  `json:"locations"`
	Characters    []Character `json:"characters"`
	BotCharacters []int       `json:"botCharacters"`
	Events        []Event     `json:"events"`
}

// Catalog is the read-only game data lookup used by matchmaking and team formation
type Catalog interface {
	Location(id int) (Location, error)
	Mode(name string) (Mode, error)
	LocationMode(locationID int) (Location, Mode, error)
	Character(id int) (Character, error)
	BotCharacters() []int
	Events() []Event
}

// Static is a Catalog backed by a JSON document loaded once
type Static struct {
	mu         sync.RWMutex
	modes      map[string]Mode
	locations  map[int]Location
	characters map[int]Character
	bots       []int
	events     []Event
}

// Ensure Static implements Catalog
var _ Catalog = (*Static)(nil)

// NewDefault loads the catalog compiled into the binary
func NewDefault() (*Static, error) {
	return Load(defaultData)
}

// LoadFromFile loads a catalog JSON document from disk
func LoadFromFile(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(raw)
}

// Load parses a catalog JSON document and checks its references
func Load(raw []byte) (*Static, error) {
	var d data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	s := &Static{
		modes:      make(map[string]Mode, len(d.Modes)),
		locations:  make(map[int]Location, len(d.Locations)),
		characters: make(map[int]Character, len(d.Characters)),
		bots:       d.BotCharacters,
		events:     d.Events,
	}
	for _, m := range d.Modes {
		s.modes[m.Name] = m
	}
	for _, c := range d.Characters {
		s.characters[c.ID] = c
	}
	for _, l := range d.Locations {
		if _, ok := s.modes[l.Mode]; !ok {
			return nil, fmt.Errorf("location %d references unknown mode %q", l.ID, l.Mode)
		}
		s.locations[l.ID] = l
	}
	for _, id := range d.BotCharacters {
		if _, ok := s.characters[id]; !ok {
			return nil, fmt.Errorf("bot character %d: %w", id, model.ErrCharacterNotFound)
		}
	}
	for _, e := range d.Events {
		if _, ok := s.locations[e.LocationID]; !ok {
			return nil, fmt.Errorf("event slot %d location %d: %w", e.Slot, e.LocationID, model.ErrLocationNotFound)
		}
	}
	if len(s.bots) == 0 {
		return nil, fmt.Errorf("catalog has no bot characters")
	}
	return s, nil
}

func (s *Static) Location(id int) (Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locations[id]
	if !ok {
		return Location{}, model.ErrLocationNotFound
	}
	return l, nil
}

func (s *Static) Mode(name string) (Mode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.modes[name]
	if !ok {
		return Mode{}, fmt.Errorf("mode %q: %w", name, model.ErrModeNotFound)
	}
	return m, nil
}

// LocationMode resolves a location and the mode it is played in
func (s *Static) LocationMode(locationID int) (Location, Mode, error) {
	l, err := s.Location(locationID)
	if err != nil {
		return Location{}, Mode{}, err
	}
	m, err := s.Mode(l.Mode)
	if err != nil {
		return Location{}, Mode{}, err
	}
	return l, m, nil
}

func (s *Static) Character(id int) (Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.characters[id]
	if !ok {
		return Character{}, model.ErrCharacterNotFound
	}
	return c, nil
}

// BotCharacters returns the allow-list of character ids bots may use
func (s *Static) BotCharacters() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.bots...)
}

// Events returns the default event rotation
func (s *Static) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}
