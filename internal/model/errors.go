package model

import "errors"

// Common errors used across the application
var (
	// Account errors
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidToken    = errors.New("invalid account token")
	ErrAccountBanned   = errors.New("account is banned")
	ErrUpdateRequired  = errors.New("client version is too old")

	// Session errors
	ErrNoSession = errors.New("account has no active session")

	// Team errors
	ErrTeamNotFound     = errors.New("team not found")
	ErrTeamFull         = errors.New("team is full")
	ErrAlreadyInTeam    = errors.New("account is already in a team")
	ErrNotInTeam        = errors.New("account is not in a team")
	ErrInvalidTeamIndex = errors.New("invalid team index")
	ErrTeamSearching    = errors.New("team is searching for a match")

	// Matchmaking errors
	ErrSlotNotFound   = errors.New("matchmaking slot not found")
	ErrAlreadyQueued  = errors.New("connection is already queued")
	ErrModeNotAllowed = errors.New("game mode not available for friendly battles")

	// Catalog errors
	ErrLocationNotFound  = errors.New("location not found")
	ErrModeNotFound      = errors.New("game mode not found")
	ErrCharacterNotFound = errors.New("character not found")

	// Server errors
	ErrMaintenance = errors.New("server is in maintenance")
)
