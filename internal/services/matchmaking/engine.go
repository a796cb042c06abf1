package matchmaking

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/elliotchance/pie/v2"

	"github.com/mcoot/skirmish/internal/catalog"
	"github.com/mcoot/skirmish/internal/dependencies/clock"
	"github.com/mcoot/skirmish/internal/metrics"
	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/protocol"
	"github.com/mcoot/skirmish/internal/services/battle"
	"github.com/mcoot/skirmish/internal/services/roster"
	"github.com/mcoot/skirmish/internal/services/session"
)

// Config holds matchmaking timing
type Config struct {
	TickInterval   time.Duration
	SearchTimeout  time.Duration
	StatusInterval time.Duration
}

// DefaultConfig returns default matchmaking configuration
func DefaultConfig() Config {
	return Config{
		TickInterval:   250 * time.Millisecond,
		SearchTimeout:  3600 * time.Second,
		StatusInterval: time.Second,
	}
}

// Launcher starts a matched battle
type Launcher interface {
	Launch(ctx context.Context, req battle.LaunchRequest) (model.BattleID, error)
}

// MatchedFunc is told which parties left the queue; started is false when the
// launch failed or the party lost a member while searching, and the members
// were sent back to the menu.
type MatchedFunc func(teams []model.TeamID, started bool)

// Engine owns one queue per active event slot and turns queued entries into battles
type Engine struct {
	cfg      Config
	clock    clock.Clock
	catalog  catalog.Catalog
	builder  *roster.Builder
	launcher Launcher
	metrics  metrics.Metrics
	logger   *slog.Logger

	// tickMu serializes ticks and event rotation
	tickMu sync.Mutex

	mu        sync.Mutex
	slots     map[int]*slot
	queued    map[uint64]*Entry // connection id -> live queue entry
	onMatched MatchedFunc
}

// NewEngine creates an Engine with no slots; call SetEvents to open queues
func NewEngine(cfg Config, clk clock.Clock, cat catalog.Catalog, builder *roster.Builder, launcher Launcher, m metrics.Metrics, logger *slog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = def.SearchTimeout
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = def.StatusInterval
	}
	return &Engine{
		cfg:      cfg,
		clock:    clk,
		catalog:  cat,
		builder:  builder,
		launcher: launcher,
		metrics:  m,
		logger:   logger.With(slog.String("component", "matchmaking")),
		slots:    make(map[int]*slot),
		queued:   make(map[uint64]*Entry),
	}
}

// OnMatched registers the callback for parties whose search ended
func (e *Engine) OnMatched(fn MatchedFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onMatched = fn
}

func (e *Engine) timeoutSeconds() int {
	return int(e.cfg.SearchTimeout / time.Second)
}

func (e *Engine) ticksPerSecond() int {
	n := int(time.Second / e.cfg.TickInterval)
	if n < 1 {
		return 1
	}
	return n
}

// SetEvents opens a slot per event. Slots whose location is unchanged keep their
// queue; everyone queued in a removed or changed slot is cancelled.
func (e *Engine) SetEvents(events []catalog.Event) error {
	next := make(map[int]*slot, len(events))
	for _, ev := range events {
		loc, mode, err := e.catalog.LocationMode(ev.LocationID)
		if err != nil {
			return err
		}
		next[ev.Slot] = newSlot(ev, loc, mode, e.timeoutSeconds())
	}

	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.mu.Lock()
	orphaned := map[int]bool{}
	for id, old := range e.slots {
		if fresh, ok := next[id]; ok && fresh.location.ID == old.location.ID {
			next[id] = old
			continue
		}
		orphaned[id] = true
		old.drain()
		e.metrics.QueueDepth(id, old.mode.Name, 0)
	}
	var cancelled []session.Conn
	var teams []model.TeamID
	for connID, entry := range e.queued {
		if !orphaned[entry.slotID] {
			continue
		}
		delete(e.queued, connID)
		cancelled = append(cancelled, entry.Conn)
		if entry.TeamID != 0 {
			teams = append(teams, entry.TeamID)
		}
	}
	e.slots = next
	onMatched := e.onMatched
	e.mu.Unlock()

	for _, conn := range cancelled {
		_ = conn.Send(&protocol.MatchmakingCancelled{})
	}
	if onMatched != nil && len(teams) > 0 {
		onMatched(pie.Unique(teams), false)
	}
	e.logger.Info("event rotation applied", slog.Int("slots", len(next)), slog.Int("cancelled", len(cancelled)))
	return nil
}

// Events returns the active slots in slot order
func (e *Engine) Events() []catalog.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	events := make([]catalog.Event, 0, len(e.slots))
	for _, s := range e.slots {
		events = append(events, s.event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Slot < events[j].Slot })
	return events
}

// Event returns the event bound to slotID
func (e *Engine) Event(slotID int) (catalog.Event, catalog.Location, catalog.Mode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.slots[slotID]
	if !ok {
		return catalog.Event{}, catalog.Location{}, catalog.Mode{}, model.ErrSlotNotFound
	}
	return s.event, s.location, s.mode, nil
}

// Request queues a solo entry. A connection already queued in this slot is
// ignored; one queued in another slot is moved.
func (e *Engine) Request(entry Entry, slotID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.slots[slotID]
	if !ok {
		return model.ErrSlotNotFound
	}
	connID := entry.Conn.ID()
	if current, queued := e.queued[connID]; queued {
		if current.slotID == slotID {
			return model.ErrAlreadyQueued
		}
		if old, ok := e.slots[current.slotID]; ok {
			old.push(op{remove: connID})
		}
	}
	entry.QueuedAt = e.clock.Now()
	entry.slotID = slotID
	e.queued[connID] = &entry
	s.push(op{add: []*Entry{&entry}})
	return nil
}

// Submit queues a party's entries as one unit: either every entry is admitted
// together or, if any connection is closed or already queued, none is.
func (e *Engine) Submit(entries []Entry, slotID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.slots[slotID]
	if !ok {
		return model.ErrSlotNotFound
	}
	for _, entry := range entries {
		if !entry.Conn.IsOpen() {
			return model.ErrNoSession
		}
		if _, queued := e.queued[entry.Conn.ID()]; queued {
			return model.ErrAlreadyQueued
		}
	}

	now := e.clock.Now()
	batch := make([]*Entry, 0, len(entries))
	for i := range entries {
		entry := entries[i]
		entry.QueuedAt = now
		entry.slotID = slotID
		e.queued[entry.Conn.ID()] = &entry
		batch = append(batch, &entry)
	}
	s.push(op{add: batch})
	return nil
}

// Cancel removes conn from whichever slot it is queued in and tells the client.
// Returns false if it was not queued.
func (e *Engine) Cancel(conn session.Conn) bool {
	e.mu.Lock()
	_, ok := e.unqueueLocked(conn.ID())
	e.mu.Unlock()

	if ok {
		_ = conn.Send(&protocol.MatchmakingCancelled{})
	}
	return ok
}

// Forget drops conn from the queues without notifying it, for connection
// teardown. A party member being forgotten takes the rest of its party out of
// the queue with it.
func (e *Engine) Forget(conn session.Conn) {
	e.mu.Lock()
	entry, ok := e.unqueueLocked(conn.ID())
	e.mu.Unlock()

	if ok && entry.TeamID != 0 {
		e.breakParties([]model.TeamID{entry.TeamID})
	}
}

func (e *Engine) unqueueLocked(connID uint64) (*Entry, bool) {
	entry, ok := e.queued[connID]
	if !ok {
		return nil, false
	}
	delete(e.queued, connID)
	if s, exists := e.slots[entry.slotID]; exists {
		s.push(op{remove: connID})
	}
	return entry, true
}

// breakParties cancels whoever is still queued from teams and hands the teams
// back to their owner as not started.
func (e *Engine) breakParties(teams []model.TeamID) {
	if len(teams) == 0 {
		return
	}
	e.mu.Lock()
	var cancelled []session.Conn
	for connID, entry := range e.queued {
		if entry.TeamID == 0 || !pie.Contains(teams, entry.TeamID) {
			continue
		}
		e.unqueueLocked(connID)
		cancelled = append(cancelled, entry.Conn)
	}
	onMatched := e.onMatched
	e.mu.Unlock()

	for _, conn := range cancelled {
		_ = conn.Send(&protocol.MatchmakingCancelled{})
	}
	e.logger.Info("party search interrupted",
		slog.Any("teams", teams),
		slog.Int("cancelled", len(cancelled)))
	if onMatched != nil {
		onMatched(teams, false)
	}
}

// IsQueued reports whether conn is waiting in any slot
func (e *Engine) IsQueued(conn session.Conn) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.queued[conn.ID()]
	return ok
}

// QueuedCount returns the number of connections queued or about to be admitted
func (e *Engine) QueuedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queued)
}

// QueueDepths returns the live queue length per slot as of the last tick
func (e *Engine) QueueDepths() map[int]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	depths := make(map[int]int, len(e.slots))
	for id, s := range e.slots {
		depths[id] = int(s.depth.Load())
	}
	return depths
}

// Tick advances every slot once: prune, admit, match, timeout, status.
func (e *Engine) Tick(ctx context.Context) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	start := time.Now()

	e.mu.Lock()
	slots := make([]*slot, 0, len(e.slots))
	for _, s := range e.slots {
		slots = append(slots, s)
	}
	e.mu.Unlock()
	sort.Slice(slots, func(i, j int) bool { return slots[i].event.Slot < slots[j].event.Slot })

	for _, s := range slots {
		e.tickSafely(ctx, s)
	}
	e.metrics.TickDuration(time.Since(start))
}

// tickSafely keeps a panic in one slot from stalling the others
func (e *Engine) tickSafely(ctx context.Context, s *slot) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("slot tick panicked",
				slog.Int("slot", s.event.Slot),
				slog.Any("panic", r))
		}
	}()
	e.tickSlot(ctx, s)
}

func (e *Engine) tickSlot(ctx context.Context, s *slot) {
	ops := s.drain()
	dropped := s.prune()
	admitted, closed := s.apply(ops)
	e.breakParties(e.forget(append(dropped, closed...)))

	for len(s.queue) >= s.required {
		batch := e.claim(s, s.required, s.matchLimit(), false)
		if batch == nil {
			break
		}
		e.start(ctx, s, batch, false)
	}
	e.sweep(s)

	statusDue := admitted
	if len(s.queue) == 0 {
		s.secondsUntilForcedStart = e.timeoutSeconds()
		s.tickCounter = 0
	} else {
		s.tickCounter++
		if s.tickCounter >= e.ticksPerSecond() {
			s.tickCounter = 0
			s.secondsUntilForcedStart--
			statusDue = true
		}
		if s.secondsUntilForcedStart <= 0 {
			seats := s.mode.HumanSeats()
			for {
				batch := e.claim(s, seats, seats, true)
				if batch == nil {
					break
				}
				e.start(ctx, s, batch, true)
			}
			s.secondsUntilForcedStart = e.timeoutSeconds()
			s.tickCounter = 0
			statusDue = false
		}
	}

	if statusDue {
		e.broadcastStatus(s)
	}
	s.depth.Store(int32(len(s.queue)))
	e.metrics.QueueDepth(s.event.Slot, s.mode.Name, len(s.queue))
}

// forget clears the connection index for entries that left the queue and
// returns the parties they belonged to. An index pointing at a newer entry for
// the same connection is left alone.
func (e *Engine) forget(entries []*Entry) []model.TeamID {
	if len(entries) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var teams []model.TeamID
	for _, entry := range entries {
		if e.queued[entry.Conn.ID()] != entry {
			continue
		}
		delete(e.queued, entry.Conn.ID())
		if entry.TeamID != 0 {
			teams = append(teams, entry.TeamID)
		}
	}
	return pie.Unique(teams)
}

// sweep drops queue entries that were cancelled, forgotten or replaced since
// they were admitted
func (e *Engine) sweep(s *slot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked(s)
}

func (e *Engine) sweepLocked(s *slot) {
	kept := s.queue[:0]
	for _, entry := range s.queue {
		if e.queued[entry.Conn.ID()] == entry {
			kept = append(kept, entry)
		}
	}
	s.queue = kept
}

// claim picks whole units for one battle and releases their index entries
// under the same lock, so a concurrent cancel either lands first or finds
// nothing to cancel. Unless partial is set, nothing is taken when fewer than
// want seats can be filled.
func (e *Engine) claim(s *slot, want, limit int, partial bool) []*Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked(s)

	batch := s.pick(want, limit)
	if len(batch) == 0 || (!partial && len(batch) < want) {
		return nil
	}
	s.take(batch)
	for _, entry := range batch {
		delete(e.queued, entry.Conn.ID())
	}
	return batch
}

func (e *Engine) start(ctx context.Context, s *slot, batch []*Entry, forced bool) {
	participants := pie.Map(batch, func(entry *Entry) roster.Participant { return entry.participant() })
	players := e.builder.Matchmade(s.mode, participants, e.catalog.BotCharacters())

	conns := make(map[model.AccountID]session.Conn, len(batch))
	for _, entry := range batch {
		conns[entry.AccountID] = entry.Conn
	}

	_, err := e.launcher.Launch(ctx, battle.LaunchRequest{
		Slot:     s.event.Slot,
		Location: s.location,
		Mode:     s.mode,
		Type:     model.BattleTypeMatchmaking,
		Players:  players,
		Conns:    conns,
		Forced:   forced,
	})
	if err != nil {
		// The popped entries are dropped; the rest of the queue carries on
		e.logger.Warn("failed to launch battle",
			slog.Int("slot", s.event.Slot),
			slog.Int("entries", len(batch)),
			slog.String("error", err.Error()))
		for _, entry := range batch {
			_ = entry.Conn.Send(&protocol.MatchmakingCancelled{})
		}
	}

	teams := pie.Unique(pie.Map(
		pie.Filter(batch, func(entry *Entry) bool { return entry.TeamID != 0 }),
		func(entry *Entry) model.TeamID { return entry.TeamID },
	))
	e.mu.Lock()
	onMatched := e.onMatched
	e.mu.Unlock()
	if onMatched != nil && len(teams) > 0 {
		onMatched(teams, err == nil)
	}
}

func (e *Engine) broadcastStatus(s *slot) {
	now := e.clock.Now()
	for _, entry := range s.queue {
		_ = entry.Conn.Send(&protocol.MatchmakingStatus{
			ElapsedSeconds:   int32(now.Sub(entry.QueuedAt) / time.Second),
			RemainingSeconds: int32(s.secondsUntilForcedStart),
			Found:            int32(len(s.queue)),
			Required:         int32(s.required),
		})
	}
}
