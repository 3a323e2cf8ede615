package commitrevealvoting

import (
	"log/slog"
	"time"

	httpadapter "commitreveal/contexts/governance/commit-reveal-voting/adapters/http"
	"commitreveal/contexts/governance/commit-reveal-voting/adapters/memory"
	"commitreveal/contexts/governance/commit-reveal-voting/application/commands"
	"commitreveal/contexts/governance/commit-reveal-voting/application/queries"
	"commitreveal/contexts/governance/commit-reveal-voting/domain/entities"
	"commitreveal/contexts/governance/commit-reveal-voting/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Sessions       ports.SessionRepository
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxWriter
	Metrics        ports.VotingMetrics
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	votingUseCase := commands.VotingUseCase{
		Sessions:       deps.Sessions,
		Idempotency:    deps.Idempotency,
		Outbox:         deps.Outbox,
		Metrics:        deps.Metrics,
		Clock:          deps.Clock,
		IDGen:          deps.IDGen,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	statusUseCase := queries.StatusUseCase{
		Sessions: deps.Sessions,
		Clock:    deps.Clock,
	}
	return Module{
		Handler: httpadapter.Handler{
			Voting: votingUseCase,
			Status: statusUseCase,
			Logger: deps.Logger,
		},
	}
}

// NewInMemoryModule wires every port to a single memory.Store. metrics may be
// nil.
func NewInMemoryModule(seed []entities.VotingSession, metrics ports.VotingMetrics, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Sessions:       store,
		Idempotency:    store,
		Outbox:         store,
		Metrics:        metrics,
		Clock:          store,
		IDGen:          store,
		IdempotencyTTL: 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	return module
}
