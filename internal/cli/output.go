package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/elliotchance/pie/v2"

	"github.com/mcoot/skirmish/internal/admin"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case admin.Status:
		o.printStatus(v)
	case admin.Leaderboard:
		o.printLeaderboard(v)
	case admin.AccountView:
		o.printAccount(v)
	case CommandResult:
		o.printCommandResult(v)
	case HealthResult:
		fmt.Fprintf(o.w, "Status: %s\n", v.Status)
	default:
		o.printJSON(data)
	}
}

// HealthResult response type
type HealthResult struct {
	Status string `json:"status"`
}

func (o *Output) printStatus(s admin.Status) {
	maint := "off"
	if s.Maintenance {
		maint = "on"
	}
	fmt.Fprintf(o.w, "Time: %s\n", s.Time.Format(time.RFC3339))
	fmt.Fprintf(o.w, "Maintenance: %s\n", maint)
	fmt.Fprintf(o.w, "Sessions: %d\n", s.Sessions)
	fmt.Fprintf(o.w, "Connections: %d\n", s.Connections)
	fmt.Fprintf(o.w, "Teams: %d\n", s.Teams)
	fmt.Fprintf(o.w, "Active battles: %d\n", s.ActiveBattles)
	fmt.Fprintf(o.w, "Queued: %d\n", s.QueuedTotal)

	for _, slot := range pie.Sort(pie.Keys(s.Queued)) {
		fmt.Fprintf(o.w, "  slot %d: %d\n", slot, s.Queued[slot])
	}
}

func (o *Output) printLeaderboard(l admin.Leaderboard) {
	if l.UpdatedAt.IsZero() {
		fmt.Fprintln(o.w, "Leaderboard not computed yet")
		return
	}
	fmt.Fprintf(o.w, "Leaderboard (updated %s):\n", l.UpdatedAt.Format(time.RFC3339))
	for _, e := range l.Entries {
		fmt.Fprintf(o.w, "  %3d. %s (%d) - %d trophies\n", e.Rank, e.Name, e.AccountID, e.Trophies)
	}
}

func (o *Output) printAccount(a admin.AccountView) {
	fmt.Fprintf(o.w, "Account: %s (%d)\n", a.Name, a.ID)
	fmt.Fprintf(o.w, "Trophies: %d\n", a.Trophies)
	fmt.Fprintf(o.w, "Character: %d\n", a.CharacterID)
	if a.Banned {
		fmt.Fprintln(o.w, "Banned: yes")
	}
}

func (o *Output) printCommandResult(r CommandResult) {
	if r.Message != "" {
		fmt.Fprintln(o.w, r.Message)
	}
}
