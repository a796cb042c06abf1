package roster

import (
	"fmt"

	"github.com/elliotchance/pie/v2"

	"github.com/mcoot/skirmish/internal/catalog"
	"github.com/mcoot/skirmish/internal/dependencies/random"
	"github.com/mcoot/skirmish/internal/model"
)

// NoPreference marks a participant without a preferred team
const NoPreference = -1

// maxBotPicks bounds random retries when looking for an unused bot character
const maxBotPicks = 32

// Participant is a human about to be seated in a battle
type Participant struct {
	AccountID     model.AccountID
	Name          string
	CharacterID   int
	TeamID        model.TeamID // zero for solo players
	PreferredTeam int
}

// Builder assembles battle rosters: team balancing and bot fill
type Builder struct {
	random random.Random
}

// NewBuilder creates a roster Builder
func NewBuilder(rnd random.Random) *Builder {
	return &Builder{random: rnd}
}

type seat struct {
	participant *Participant
	botChar     int
}

// Matchmade seats queue participants (in queue order) for mode and fills every
// remaining seat with a bot drawn from bots.
func (b *Builder) Matchmade(mode catalog.Mode, participants []Participant, bots []int) []model.BattlePlayer {
	switch {
	case mode.IsFreeForAll():
		return b.freeForAll(mode, participants, bots)
	case mode.BossFight:
		return b.bossFight(mode, participants, bots)
	default:
		return b.twoTeams(mode, participants, bots)
	}
}

func (b *Builder) twoTeams(mode catalog.Mode, participants []Participant, bots []int) []model.BattlePlayer {
	perTeam := mode.PlayersPerTeam()
	teams := [2][]seat{}

	// Parties alternate between teams as whole units
	parties, order := groupParties(participants)
	next := 0
	for _, teamID := range order {
		members := parties[teamID]
		target := next
		if len(teams[target])+len(members) > perTeam {
			other := 1 - target
			if len(teams[other])+len(members) <= perTeam {
				target = other
			} else if perTeam-len(teams[other]) > perTeam-len(teams[target]) {
				// Fits neither team whole: start on the emptier team, overflow to the other
				target = other
			}
		}
		for _, p := range members {
			if len(teams[target]) >= perTeam {
				target = 1 - target
			}
			teams[target] = append(teams[target], seat{participant: p})
		}
		next = 1 - next
	}

	// Solos fill round-robin starting at the emptier team
	rr := 0
	if len(teams[1]) < len(teams[0]) {
		rr = 1
	}
	for i := range participants {
		p := &participants[i]
		if p.TeamID != 0 {
			continue
		}
		target := rr
		if p.PreferredTeam == 0 || p.PreferredTeam == 1 {
			target = p.PreferredTeam
		} else {
			rr = 1 - rr
		}
		if len(teams[target]) >= perTeam {
			target = 1 - target
		}
		if len(teams[target]) >= perTeam {
			// Both full: only reachable with more participants than seats
			target = 0
		}
		teams[target] = append(teams[target], seat{participant: p})
	}

	for t := range teams {
		teams[t] = b.fillBots(teams[t], perTeam, bots)
	}
	return flatten(teams[:])
}

func (b *Builder) freeForAll(mode catalog.Mode, participants []Participant, bots []int) []model.BattlePlayer {
	teams := make([][]seat, 0, mode.MaxPlayers)
	for i := range participants {
		teams = append(teams, []seat{{participant: &participants[i]}})
	}
	used := map[int]bool{}
	for len(teams) < mode.MaxPlayers {
		c := b.pickBot(bots, used)
		used[c] = true
		teams = append(teams, []seat{{botChar: c}})
	}
	return flatten(teams)
}

func (b *Builder) bossFight(mode catalog.Mode, participants []Participant, bots []int) []model.BattlePlayer {
	humans := make([]seat, 0, mode.HumanSeats())
	for i := range participants {
		humans = append(humans, seat{participant: &participants[i]})
	}
	humans = b.fillBots(humans, mode.HumanSeats(), bots)
	boss := []seat{{botChar: mode.BossCharacterID}}
	return flatten([][]seat{humans, boss})
}

// Friendly seats party members by their chosen team index and fills the open
// seats with bots, leaving seats the party disabled empty.
func (b *Builder) Friendly(mode catalog.Mode, team *model.TeamEntry, bots []int) []model.BattlePlayer {
	if !mode.HasTwoTeams() {
		members := make([]Participant, 0, len(team.Members))
		for _, m := range team.Members {
			members = append(members, participantFromMember(m))
		}
		return b.Matchmade(mode, members, bots)
	}

	perTeam := mode.PlayersPerTeam()
	teams := [2][]seat{}
	for _, m := range team.Members {
		idx := m.TeamIndex
		if idx != 0 && idx != 1 {
			idx = 0
		}
		p := participantFromMember(m)
		teams[idx] = append(teams[idx], seat{participant: &p})
	}

	for t := range teams {
		used := map[int]bool{}
		for pos := len(teams[t]); pos < perTeam; pos++ {
			if team.SeatDisabled(t, pos) {
				continue
			}
			c := b.pickBot(bots, used)
			used[c] = true
			teams[t] = append(teams[t], seat{botChar: c})
		}
	}
	return flatten(teams[:])
}

func (b *Builder) fillBots(team []seat, size int, bots []int) []seat {
	used := map[int]bool{}
	for _, s := range team {
		if s.participant == nil {
			used[s.botChar] = true
		}
	}
	for len(team) < size {
		c := b.pickBot(bots, used)
		used[c] = true
		team = append(team, seat{botChar: c})
	}
	return team
}

// pickBot draws a bot character not in used. Random draws are bounded; after
// that the first unused character is taken, and if the allow-list is exhausted
// a duplicate is accepted.
func (b *Builder) pickBot(bots []int, used map[int]bool) int {
	if len(bots) == 0 {
		return 0
	}
	for i := 0; i < maxBotPicks; i++ {
		c := bots[b.random.Intn(len(bots))]
		if !used[c] {
			return c
		}
	}
	unused := pie.Filter(bots, func(c int) bool { return !used[c] })
	if len(unused) > 0 {
		return unused[0]
	}
	return bots[b.random.Intn(len(bots))]
}

func groupParties(participants []Participant) (map[model.TeamID][]*Participant, []model.TeamID) {
	parties := map[model.TeamID][]*Participant{}
	var order []model.TeamID
	for i := range participants {
		p := &participants[i]
		if p.TeamID == 0 {
			continue
		}
		if _, ok := parties[p.TeamID]; !ok {
			order = append(order, p.TeamID)
		}
		parties[p.TeamID] = append(parties[p.TeamID], p)
	}
	return parties, order
}

func participantFromMember(m model.TeamMember) Participant {
	return Participant{
		AccountID:     m.AccountID,
		Name:          m.Name,
		CharacterID:   m.CharacterID,
		PreferredTeam: m.TeamIndex,
	}
}

// flatten numbers players team by team, humans before bots within a team
func flatten(teams [][]seat) []model.BattlePlayer {
	var out []model.BattlePlayer
	for t, team := range teams {
		for _, s := range team {
			bp := model.BattlePlayer{PlayerIndex: len(out), TeamIndex: t}
			if s.participant != nil {
				bp.AccountID = s.participant.AccountID
				bp.CharacterID = s.participant.CharacterID
				bp.Name = s.participant.Name
			} else {
				bp.IsBot = true
				bp.CharacterID = s.botChar
				bp.Name = fmt.Sprintf("Bot %d", len(out)+1)
			}
			out = append(out, bp)
		}
	}
	return out
}

// Humans returns the human players of a roster
func Humans(players []model.BattlePlayer) []model.BattlePlayer {
	return pie.Filter(players, func(p model.BattlePlayer) bool { return !p.IsBot })
}

// Bots returns the bot players of a roster
func Bots(players []model.BattlePlayer) []model.BattlePlayer {
	return pie.Filter(players, func(p model.BattlePlayer) bool { return p.IsBot })
}
