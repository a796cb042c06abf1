package matchmaking

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcoot/skirmish/internal/catalog"
	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/services/roster"
	"github.com/mcoot/skirmish/internal/services/session"
)

// Entry is one connection's ticket in a slot queue
type Entry struct {
	Conn          session.Conn
	AccountID     model.AccountID
	Name          string
	CharacterID   int
	TeamID        model.TeamID // zero for solo entries
	PreferredTeam int          // roster.NoPreference when unset
	QueuedAt      time.Time

	slotID int
}

func (e *Entry) participant() roster.Participant {
	return roster.Participant{
		AccountID:     e.AccountID,
		Name:          e.Name,
		CharacterID:   e.CharacterID,
		TeamID:        e.TeamID,
		PreferredTeam: e.PreferredTeam,
	}
}

// op is a pending queue mutation recorded by the request path and applied by the tick
type op struct {
	add    []*Entry // admitted as one unit
	remove uint64   // connection id, when add is nil
}

// slot is the queue for one event. pending is shared with request handlers;
// queue and the countdown fields are only touched by the tick.
type slot struct {
	event    catalog.Event
	location catalog.Location
	mode     catalog.Mode
	required int

	pendingMu sync.Mutex
	pending   []op

	queue                   []*Entry
	secondsUntilForcedStart int
	tickCounter             int

	depth atomic.Int32
}

func newSlot(ev catalog.Event, loc catalog.Location, mode catalog.Mode, timeoutSeconds int) *slot {
	return &slot{
		event:                   ev,
		location:                loc,
		mode:                    mode,
		required:                mode.RequiredPlayerCount(),
		secondsUntilForcedStart: timeoutSeconds,
	}
}

func (s *slot) push(o op) {
	s.pendingMu.Lock()
	s.pending = append(s.pending, o)
	s.pendingMu.Unlock()
}

func (s *slot) drain() []op {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	ops := s.pending
	s.pending = nil
	return ops
}

func (s *slot) indexOf(connID uint64) int {
	for i, e := range s.queue {
		if e.Conn.ID() == connID {
			return i
		}
	}
	return -1
}

// prune drops entries whose connection closed and returns them
func (s *slot) prune() []*Entry {
	var dropped []*Entry
	kept := s.queue[:0]
	for _, e := range s.queue {
		if e.Conn.IsOpen() {
			kept = append(kept, e)
		} else {
			dropped = append(dropped, e)
		}
	}
	s.queue = kept
	return dropped
}

// apply replays pending operations in arrival order. Returns true if anything
// was admitted, plus the entries turned away because their connection closed.
func (s *slot) apply(ops []op) (bool, []*Entry) {
	admitted := false
	var closed []*Entry
	for _, o := range ops {
		if o.add == nil {
			if i := s.indexOf(o.remove); i >= 0 {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
			}
			continue
		}
		for _, e := range o.add {
			if !e.Conn.IsOpen() {
				closed = append(closed, e)
				continue
			}
			if s.indexOf(e.Conn.ID()) >= 0 {
				continue
			}
			s.queue = append(s.queue, e)
			admitted = true
		}
	}
	return admitted, closed
}

// matchLimit caps the seats of a regular match. A free-for-all party may
// start on its own.
func (s *slot) matchLimit() int {
	if s.mode.IsFreeForAll() {
		return s.mode.HumanSeats()
	}
	return s.required
}

// units groups the queue into admission units in FIFO order: each solo entry
// is its own unit and a party's members form one unit at the position of its
// first member.
func (s *slot) units() [][]*Entry {
	var units [][]*Entry
	parties := make(map[model.TeamID]int)
	for _, e := range s.queue {
		if e.TeamID == 0 {
			units = append(units, []*Entry{e})
			continue
		}
		if i, ok := parties[e.TeamID]; ok {
			units[i] = append(units[i], e)
			continue
		}
		parties[e.TeamID] = len(units)
		units = append(units, []*Entry{e})
	}
	return units
}

// pick walks the units oldest first, skipping any that would overflow limit,
// and stops once want seats are filled. The queue is left untouched.
func (s *slot) pick(want, limit int) []*Entry {
	var batch []*Entry
	for _, u := range s.units() {
		if len(batch)+len(u) > limit {
			continue
		}
		batch = append(batch, u...)
		if len(batch) >= want {
			break
		}
	}
	return batch
}

// take removes batch from the queue
func (s *slot) take(batch []*Entry) {
	taken := make(map[*Entry]bool, len(batch))
	for _, e := range batch {
		taken[e] = true
	}
	kept := s.queue[:0]
	for _, e := range s.queue {
		if !taken[e] {
			kept = append(kept, e)
		}
	}
	s.queue = kept
}
