package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/elliotchance/pie/v2"

	"github.com/mcoot/skirmish/internal/model"
)

var ErrUnknownCommand = errors.New("unknown admin command")

// UsageError is returned when a command is called with the wrong arguments
type UsageError struct {
	Command string
	Usage   string
	Err     error
}

func (e *UsageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (usage: %s)", e.Command, e.Err, e.Usage)
	}
	return fmt.Sprintf("usage: %s", e.Usage)
}

func (e *UsageError) Unwrap() error { return e.Err }

// Request is one admin command invocation
type Request struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// Result is the outcome of a command; Data is command specific
type Result struct {
	Command string `json:"command"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type command struct {
	usage string
	nargs int
	run   func(ctx context.Context, args []string) (Result, error)
}

// Commands is the named dispatch table over the admin service
type Commands struct {
	service *Service
	table   map[string]command
}

// NewCommands builds the dispatch table for s
func NewCommands(s *Service) *Commands {
	c := &Commands{service: s}
	c.table = map[string]command{
		"maintenance": {usage: "maintenance on|off", nargs: 1, run: c.maintenance},
		"kick":        {usage: "kick <account-id>", nargs: 1, run: c.kick},
		"ban":         {usage: "ban <account-id>", nargs: 1, run: c.ban},
		"unban":       {usage: "unban <account-id>", nargs: 1, run: c.unban},
		"status":      {usage: "status", nargs: 0, run: c.status},
		"set":         {usage: "set <account-id> <name|trophies|character> <value>", nargs: 3, run: c.set},
		"leaderboard": {usage: "leaderboard", nargs: 0, run: c.leaderboard},
	}
	return c
}

// Names lists the registered commands, sorted
func (c *Commands) Names() []string {
	return pie.Sort(pie.Keys(c.table))
}

// Usage returns the usage line for name
func (c *Commands) Usage(name string) (string, bool) {
	cmd, ok := c.table[name]
	return cmd.usage, ok
}

// Execute runs the named command
func (c *Commands) Execute(ctx context.Context, req Request) (Result, error) {
	cmd, ok := c.table[req.Command]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
	}
	if len(req.Args) != cmd.nargs {
		return Result{}, &UsageError{Command: req.Command, Usage: cmd.usage}
	}
	res, err := cmd.run(ctx, req.Args)
	if err != nil {
		return Result{}, err
	}
	res.Command = req.Command
	return res, nil
}

func (c *Commands) maintenance(_ context.Context, args []string) (Result, error) {
	var on bool
	switch args[0] {
	case "on":
		on = true
	case "off":
		on = false
	default:
		return Result{}, &UsageError{Command: "maintenance", Usage: c.table["maintenance"].usage,
			Err: fmt.Errorf("expected on or off, got %q", args[0])}
	}
	changed := c.service.SetMaintenance(on)
	msg := "maintenance " + args[0]
	if !changed {
		msg += " (unchanged)"
	}
	return Result{Message: msg, Data: map[string]bool{"maintenance": on}}, nil
}

func (c *Commands) kick(ctx context.Context, args []string) (Result, error) {
	id, err := c.accountArg("kick", args[0])
	if err != nil {
		return Result{}, err
	}
	if err := c.service.Kick(ctx, id); err != nil {
		return Result{}, err
	}
	return Result{Message: fmt.Sprintf("kicked account %d", id)}, nil
}

func (c *Commands) ban(ctx context.Context, args []string) (Result, error) {
	id, err := c.accountArg("ban", args[0])
	if err != nil {
		return Result{}, err
	}
	if err := c.service.Ban(ctx, id); err != nil {
		return Result{}, err
	}
	return Result{Message: fmt.Sprintf("banned account %d", id)}, nil
}

func (c *Commands) unban(ctx context.Context, args []string) (Result, error) {
	id, err := c.accountArg("unban", args[0])
	if err != nil {
		return Result{}, err
	}
	if err := c.service.Unban(ctx, id); err != nil {
		return Result{}, err
	}
	return Result{Message: fmt.Sprintf("unbanned account %d", id)}, nil
}

func (c *Commands) status(_ context.Context, _ []string) (Result, error) {
	return Result{Data: c.service.Status()}, nil
}

func (c *Commands) set(ctx context.Context, args []string) (Result, error) {
	id, err := c.accountArg("set", args[0])
	if err != nil {
		return Result{}, err
	}
	acc, err := c.service.SetField(ctx, id, args[1], args[2])
	if err != nil {
		return Result{}, err
	}
	return Result{
		Message: fmt.Sprintf("set %s on account %d", args[1], id),
		Data: AccountView{
			ID:          acc.ID,
			Name:        acc.Name,
			Trophies:    acc.Trophies,
			CharacterID: acc.CharacterID,
			Banned:      acc.Banned,
		},
	}, nil
}

func (c *Commands) leaderboard(_ context.Context, _ []string) (Result, error) {
	return Result{Data: c.service.Leaderboard()}, nil
}

func (c *Commands) accountArg(name, raw string) (model.AccountID, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, &UsageError{Command: name, Usage: c.table[name].usage,
			Err: fmt.Errorf("invalid account id %q", raw)}
	}
	return model.AccountID(n), nil
}

// AccountView is the operator-facing projection of an account; the token hash is never exposed
type AccountView struct {
	ID          model.AccountID `json:"id"`
	Name        string          `json:"name"`
	Trophies    int             `json:"trophies"`
	CharacterID int             `json:"character_id"`
	Banned      bool            `json:"banned"`
}
