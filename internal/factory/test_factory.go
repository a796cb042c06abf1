package factory

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/skirmish/internal/config"
	"github.com/mcoot/skirmish/internal/dependencies/mocks"
	"github.com/mcoot/skirmish/internal/securechannel"
	"github.com/mcoot/skirmish/internal/services/auth"
	"github.com/mcoot/skirmish/internal/services/battle"
	"github.com/mcoot/skirmish/internal/storage/memory"
	"github.com/mcoot/skirmish/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	Store      *memory.Storage
	Simulator  *battle.LocalSimulator
}

// TestConfig is the server configuration used by NewTestApp: loopback
// listeners on ephemeral ports, plaintext channel, in-memory storage.
func TestConfig() config.Config {
	return config.Config{
		TCPAddr:                "127.0.0.1:0",
		UDPAddr:                "127.0.0.1:0",
		PublicHost:             "127.0.0.1",
		AdminAddr:              "127.0.0.1:0",
		StorageType:            config.StorageTypeMemory,
		MinClientMajor:         1,
		TickIntervalMS:         250,
		SearchTimeoutSeconds:   3600,
		StatusIntervalMS:       1000,
		HeartbeatWindowSeconds: 15,
		ReaperIntervalMS:       1000,
		FlushIntervalSeconds:   30,
		LeaderboardSeconds:     60,
		LeaderboardSize:        10,
		BattleTimeScale:        1,
		LogLevel:               "info",
	}
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	app, err := NewTestAppWithConfig(TestConfig())
	if err != nil {
		panic(err)
	}
	return app
}

// NewTestAppWithConfig is NewTestApp over a caller-adjusted configuration
func NewTestAppWithConfig(cfg config.Config) (*TestApp, error) {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	// Battles end almost immediately so tests can observe BattleEnd
	sim := battle.NewLocalSimulator(mockRandom)
	sim.Scale = 0.001

	authCfg := auth.DefaultConfig()
	authCfg.MinClientMajor = cfg.MinClientMajor
	authCfg.BcryptCost = bcrypt.MinCost

	app, err := newWithDependencies(cfg, dependencies{
		backend:   store,
		clock:     mockClock,
		random:    mockRandom,
		channels:  securechannel.NewPlainFactory(mockRandom),
		authCfg:   authCfg,
		simulator: sim,
	}, testutil.NopLogger())
	if err != nil {
		return nil, err
	}

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		Store:      store,
		Simulator:  sim,
	}, nil
}
