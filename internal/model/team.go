package model

// TeamID identifies a pre-formed party
type TeamID int64

// BattleType routes a party's start request
type BattleType int

const (
	BattleTypeMatchmaking BattleType = iota // queue into the event slot
	BattleTypeFriendly                      // start directly, no queue
)

func (t BattleType) String() string {
	switch t {
	case BattleTypeMatchmaking:
		return "matchmaking"
	case BattleTypeFriendly:
		return "friendly"
	default:
		return "unknown"
	}
}

// TeamMember is one account's seat in a party
type TeamMember struct {
	AccountID   AccountID
	Name        string
	CharacterID int
	IsReady     bool
	TeamIndex   int // 0 or 1 in friendly games; ignored by matchmaking
}

// TeamEntry is a party of accounts that enter battles together
type TeamEntry struct {
	ID         TeamID
	Members    []TeamMember
	EventSlot  int
	BattleType BattleType
	// DisabledBotSeats lists, per team index, seat positions that must stay
	// empty in a friendly battle instead of being filled with a bot.
	DisabledBotSeats map[int][]int
	Searching        bool
}

// GetMember returns the member with the given account id, or nil if not found
func (t *TeamEntry) GetMember(id AccountID) *TeamMember {
	for i := range t.Members {
		if t.Members[i].AccountID == id {
			return &t.Members[i]
		}
	}
	return nil
}

// AllReady reports whether every member has marked ready
func (t *TeamEntry) AllReady() bool {
	if len(t.Members) == 0 {
		return false
	}
	for _, m := range t.Members {
		if !m.IsReady {
			return false
		}
	}
	return true
}

// SeatDisabled reports whether the seat at position in team teamIndex is disabled
func (t *TeamEntry) SeatDisabled(teamIndex, position int) bool {
	for _, p := range t.DisabledBotSeats[teamIndex] {
		if p == position {
			return true
		}
	}
	return false
}

// Clone returns a deep copy
func (t *TeamEntry) Clone() *TeamEntry {
	c := *t
	c.Members = append([]TeamMember(nil), t.Members...)
	c.DisabledBotSeats = make(map[int][]int, len(t.DisabledBotSeats))
	for k, v := range t.DisabledBotSeats {
		c.DisabledBotSeats[k] = append([]int(nil), v...)
	}
	return &c
}
