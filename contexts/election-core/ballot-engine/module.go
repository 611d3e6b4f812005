package ballotengine

import (
	"log/slog"
	"time"

	httpadapter "quorum/contexts/election-core/ballot-engine/adapters/http"
	"quorum/contexts/election-core/ballot-engine/adapters/memory"
	"quorum/contexts/election-core/ballot-engine/application/commands"
	"quorum/contexts/election-core/ballot-engine/application/queries"
	"quorum/contexts/election-core/ballot-engine/domain/entities"
	"quorum/contexts/election-core/ballot-engine/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Votes              ports.VoteRepository
	Clock              ports.Clock
	IDGen              ports.IDGenerator
	DefaultGracePeriod time.Duration
	Logger             *slog.Logger
}

func NewModule(deps Dependencies) Module {
	ballotUseCase := commands.BallotUseCase{
		Votes:              deps.Votes,
		Clock:              deps.Clock,
		IDGen:              deps.IDGen,
		DefaultGracePeriod: deps.DefaultGracePeriod,
		Logger:             deps.Logger,
	}
	statusUseCase := queries.VoteStatusUseCase{
		Votes: deps.Votes,
	}
	return Module{
		Handler: httpadapter.Handler{
			Ballots: ballotUseCase,
			Status:  statusUseCase,
			Logger:  deps.Logger,
		},
	}
}

func NewInMemoryModule(seed []entities.VoteRecord, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Votes:              store,
		Clock:              store,
		IDGen:              store,
		DefaultGracePeriod: 20 * time.Second,
		Logger:             logger,
	})
	module.Store = store
	return module
}
