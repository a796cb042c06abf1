package model

// BattleID uniquely identifies a started battle
type BattleID string

// BattlePlayer is one roster seat handed to the battle simulation
type BattlePlayer struct {
	PlayerIndex int
	TeamIndex   int
	AccountID   AccountID // zero for bots
	IsBot       bool
	CharacterID int
	Name        string
}
