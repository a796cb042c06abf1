package battle

import (
	"context"
	"sync"
	"time"

	"github.com/mcoot/skirmish/internal/dependencies/random"
	"github.com/mcoot/skirmish/internal/model"
)

// LocalSimulator stands in for the gameplay server: each battle ends after the
// mode's timer with a random winning team.
type LocalSimulator struct {
	random random.Random
	// Scale multiplies the mode timer; tests shrink it
	Scale float64
}

// NewLocalSimulator creates a LocalSimulator running battles in real time
func NewLocalSimulator(rnd random.Random) *LocalSimulator {
	return &LocalSimulator{random: rnd, Scale: 1}
}

func (s *LocalSimulator) Start(ctx context.Context, spec Spec) (Handle, error) {
	teams := 2
	if spec.Mode.IsFreeForAll() {
		teams = len(spec.Players)
	}
	h := &localHandle{id: spec.ID, done: make(chan struct{})}
	winner := s.random.Intn(teams)
	d := time.Duration(float64(spec.Mode.TimerSeconds) * s.Scale * float64(time.Second))
	time.AfterFunc(d, func() { h.finish(Result{WinningTeam: winner}) })
	return h, nil
}

type localHandle struct {
	id   model.BattleID
	once sync.Once
	done chan struct{}

	mu     sync.Mutex
	result Result
}

func (h *localHandle) ID() model.BattleID { return h.id }

func (h *localHandle) Done() <-chan struct{} { return h.done }

func (h *localHandle) Result() Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

func (h *localHandle) finish(r Result) {
	h.once.Do(func() {
		h.mu.Lock()
		h.result = r
		h.mu.Unlock()
		close(h.done)
	})
}
